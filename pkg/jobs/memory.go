package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emberq/emberq/pkg/observability/logger"
	"github.com/emberq/emberq/pkg/observability/tracing"
)

// Compile-time contract checks.
var (
	_ QueueStore  = (*MemoryStore)(nil)
	_ WorkerStore = (*MemoryStore)(nil)
)

// jobRecord is the store-internal representation of one job. Records are
// owned exclusively by the store; handlers only ever see copies.
type jobRecord struct {
	id     string
	name   string
	queue  string
	data   json.RawMessage
	status Status

	attemptsMade int
	dispatchOpts JobOptions
	readyAt      time.Time

	errMsg     string
	stackTrace string
	failedAt   time.Time

	progress    int
	finishedSeq int64
}

type handlerBinding struct {
	handler Handler
	opts    JobOptions
}

type memoryQueue struct {
	name    string
	records []*jobRecord
	paused  bool
}

// MemoryStore is the in-process reference driver. It implements both the
// QueueStore and WorkerStore contracts and defines the normative state
// machine behavior any replacement driver must preserve.
//
// Processing is single-threaded and cooperative: one Start pass executes
// ready jobs strictly sequentially, in insertion order per queue. Priority
// and timeout options are accepted and stored but not enforced.
type MemoryStore struct {
	log logger.Logger

	// Set at construction, immutable afterwards.
	defaultQueue string
	defaultOpts  JobOptions

	mu       sync.Mutex
	queues   map[string]*memoryQueue
	bindings map[string]map[string]handlerBinding
	finished int64
	stopped  bool
	closed   bool
}

// MemoryStoreConfig tunes store-wide defaults.
type MemoryStoreConfig struct {
	// DefaultQueue receives jobs enqueued without an explicit queue name.
	// Empty means "default".
	DefaultQueue string
	// DefaultOptions are the base job options for every job in this store.
	// Registration-time and dispatch-time options merge over them.
	DefaultOptions JobOptions
}

// NewMemoryStore creates an empty in-memory store with built-in defaults.
func NewMemoryStore(log logger.Logger) *MemoryStore {
	return NewMemoryStoreWithConfig(log, MemoryStoreConfig{})
}

// NewMemoryStoreWithConfig creates an empty in-memory store with the given
// store-wide defaults.
func NewMemoryStoreWithConfig(log logger.Logger, cfg MemoryStoreConfig) *MemoryStore {
	if log == nil {
		log = logger.Nop()
	}
	defaultQueue := strings.TrimSpace(cfg.DefaultQueue)
	if defaultQueue == "" {
		defaultQueue = DefaultQueue
	}
	return &MemoryStore{
		log:          log,
		defaultQueue: defaultQueue,
		defaultOpts:  cfg.DefaultOptions,
		queues:       map[string]*memoryQueue{},
		bindings:     map[string]map[string]handlerBinding{},
	}
}

// queueName resolves an empty queue to the store's configured default.
func (s *MemoryStore) queueName(queue string) string {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return s.defaultQueue
	}
	return queue
}

// queueFor returns the queue, creating it on first use.
// Caller must hold s.mu.
func (s *MemoryStore) queueFor(name string) *memoryQueue {
	q, ok := s.queues[name]
	if !ok {
		q = &memoryQueue{name: name}
		s.queues[name] = q
	}
	return q
}

// promoteReady flips delayed records whose readiness time has passed back to
// waiting. Caller must hold s.mu.
func (s *MemoryStore) promoteReady(now time.Time) {
	for _, q := range s.queues {
		for _, rec := range q.records {
			if rec.status == StatusDelayed && !rec.readyAt.After(now) {
				rec.status = StatusWaiting
			}
		}
	}
}

// Add enqueues one job. The payload and name are stored verbatim; schema
// validation is the QueueManager's responsibility.
func (s *MemoryStore) Add(ctx context.Context, jobName string, data json.RawMessage, opts AddOptions) (string, error) {
	if strings.TrimSpace(jobName) == "" {
		return "", jobsError(ErrInvalidArgument, "job name is required")
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if ctx == nil {
		ctx = context.Background()
	}
	queue := s.queueName(opts.Queue)

	_, span := tracing.StartJobSpan(
		ctx,
		tracing.SpanOperationJobEnqueue,
		tracing.WithJobQueue(queue),
		tracing.WithJobName(jobName),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		err := jobsError(ErrClosed, "store is closed")
		tracing.RecordError(span, err)
		return "", err
	}

	now := time.Now().UTC()

	rec := &jobRecord{
		id:           NewJobID(),
		name:         jobName,
		queue:        queue,
		data:         cloneData(data),
		status:       StatusWaiting,
		dispatchOpts: opts.Options,
		readyAt:      now,
	}
	if opts.Delay > 0 {
		rec.status = StatusDelayed
		rec.readyAt = now.Add(opts.Delay)
	}

	s.queueFor(queue).records = append(s.queueFor(queue).records, rec)
	recordJobEnqueued(queue, jobName)
	tracing.RecordSuccess(span)
	s.log.Debug("job enqueued", "job_id", rec.id, "job_name", jobName, "queue", queue, "status", string(rec.status))
	return rec.id, nil
}

// AddBulk enqueues each item independently. A failing item stops the loop
// but already-added items stay enqueued; the store offers no atomicity.
func (s *MemoryStore) AddBulk(ctx context.Context, items []BulkItem) ([]string, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := s.Add(ctx, item.Name, item.Data, item.Opts)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FailedJobs lists failed records, across all queues when queue is empty.
func (s *MemoryStore) FailedJobs(ctx context.Context, queue string, limit int) ([]FailedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, jobsError(ErrClosed, "store is closed")
	}

	out := []FailedJob{}
	for _, q := range s.queuesIn(queue) {
		for _, rec := range q.records {
			if rec.status != StatusFailed {
				continue
			}
			out = append(out, FailedJob{
				ID:           rec.id,
				Name:         rec.name,
				Queue:        rec.queue,
				Data:         cloneData(rec.data),
				Error:        rec.errMsg,
				StackTrace:   rec.stackTrace,
				AttemptsMade: rec.attemptsMade,
				FailedAt:     rec.failedAt,
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// RetryJob moves one failed record back to waiting. Attempt counting
// continues from where it left off.
func (s *MemoryStore) RetryJob(ctx context.Context, id, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, jobsError(ErrClosed, "store is closed")
	}

	q, ok := s.queues[s.queueName(queue)]
	if !ok {
		return false, nil
	}
	for _, rec := range q.records {
		if rec.id != id || rec.status != StatusFailed {
			continue
		}
		resetForRetry(rec)
		s.log.Debug("job moved back to waiting", "job_id", rec.id, "queue", rec.queue)
		return true, nil
	}
	return false, nil
}

// RetryAllFailed moves every failed record back to waiting, across all
// queues when queue is empty, and returns the number moved.
func (s *MemoryStore) RetryAllFailed(ctx context.Context, queue string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, jobsError(ErrClosed, "store is closed")
	}

	moved := 0
	for _, q := range s.queuesIn(queue) {
		for _, rec := range q.records {
			if rec.status != StatusFailed {
				continue
			}
			resetForRetry(rec)
			moved++
		}
	}
	return moved, nil
}

func resetForRetry(rec *jobRecord) {
	rec.status = StatusWaiting
	rec.readyAt = time.Now().UTC()
	rec.errMsg = ""
	rec.stackTrace = ""
	rec.failedAt = time.Time{}
}

// RemoveJob deletes a record by id regardless of its state.
func (s *MemoryStore) RemoveJob(ctx context.Context, id, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, jobsError(ErrClosed, "store is closed")
	}

	q, ok := s.queues[s.queueName(queue)]
	if !ok {
		return false, nil
	}
	for i, rec := range q.records {
		if rec.id == id {
			q.records = append(q.records[:i], q.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Stats reports per-queue counts by state. Ready jobs in a paused queue are
// counted under Paused instead of Waiting.
func (s *MemoryStore) Stats(ctx context.Context, queue string) ([]QueueStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, jobsError(ErrClosed, "store is closed")
	}

	s.promoteReady(time.Now().UTC())

	if trimmed := strings.TrimSpace(queue); trimmed != "" {
		q, ok := s.queues[trimmed]
		if !ok {
			return []QueueStats{{Name: trimmed}}, nil
		}
		return []QueueStats{queueStats(q)}, nil
	}

	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]QueueStats, 0, len(names))
	for _, name := range names {
		out = append(out, queueStats(s.queues[name]))
	}
	return out, nil
}

func queueStats(q *memoryQueue) QueueStats {
	stats := QueueStats{Name: q.name}
	for _, rec := range q.records {
		switch rec.status {
		case StatusWaiting:
			if q.paused {
				stats.Paused++
			} else {
				stats.Waiting++
			}
		case StatusDelayed:
			stats.Delayed++
		case StatusActive:
			stats.Active++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats
}

// PauseQueue excludes the queue from processing passes until resumed.
func (s *MemoryStore) PauseQueue(ctx context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobsError(ErrClosed, "store is closed")
	}
	s.queueFor(s.queueName(queue)).paused = true
	return nil
}

// ResumeQueue re-enables a paused queue.
func (s *MemoryStore) ResumeQueue(ctx context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobsError(ErrClosed, "store is closed")
	}
	s.queueFor(s.queueName(queue)).paused = false
	return nil
}

// ClearQueue removes every record in the queue. No-op for unknown queues.
func (s *MemoryStore) ClearQueue(ctx context.Context, queue string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobsError(ErrClosed, "store is closed")
	}
	if q, ok := s.queues[s.queueName(queue)]; ok {
		q.records = nil
	}
	return nil
}

// Close releases the store. Idempotent; never fails.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.queues = map[string]*memoryQueue{}
	s.bindings = map[string]map[string]handlerBinding{}
	return nil
}

// queuesIn returns the queues matching the filter in deterministic order.
// Caller must hold s.mu.
func (s *MemoryStore) queuesIn(queue string) []*memoryQueue {
	if trimmed := strings.TrimSpace(queue); trimmed != "" {
		if q, ok := s.queues[trimmed]; ok {
			return []*memoryQueue{q}
		}
		return nil
	}
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*memoryQueue, 0, len(names))
	for _, name := range names {
		out = append(out, s.queues[name])
	}
	return out
}

// RegisterHandler binds a handler to a job name within a queue. The last
// registration for a name wins.
func (s *MemoryStore) RegisterHandler(jobName string, handler Handler, opts RegisterOptions) error {
	if strings.TrimSpace(jobName) == "" {
		return jobsError(ErrInvalidArgument, "job name is required")
	}
	if handler == nil {
		return jobsError(ErrInvalidArgument, "handler is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return jobsError(ErrClosed, "store is closed")
	}

	queue := s.queueName(opts.Queue)
	if s.bindings[queue] == nil {
		s.bindings[queue] = map[string]handlerBinding{}
	}
	s.bindings[queue][jobName] = handlerBinding{handler: handler, opts: opts.Options}
	return nil
}

// Start performs one complete pass over every currently-ready job, in
// insertion order per queue, executing each strictly sequentially. A prior
// Stop request is cleared first so repeated passes pick up new work.
func (s *MemoryStore) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return jobsError(ErrClosed, "store is closed")
	}
	s.stopped = false

	now := time.Now().UTC()
	s.promoteReady(now)

	// Snapshot the pass up front: jobs becoming ready mid-pass (including
	// retries scheduled by this pass) wait for the next Start call.
	type passEntry struct {
		queue string
		id    string
	}
	var pass []passEntry
	for _, q := range s.queuesIn("") {
		if q.paused {
			continue
		}
		for _, rec := range q.records {
			if rec.status == StatusWaiting && !rec.readyAt.After(now) {
				pass = append(pass, passEntry{queue: q.name, id: rec.id})
			}
		}
	}
	s.mu.Unlock()

	for _, entry := range pass {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mu.Lock()
		if s.closed || s.stopped {
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
		s.processOne(ctx, entry.queue, entry.id)
	}
	return nil
}

// Stop requests that the current pass halt before its next job. It never
// interrupts an in-flight handler.
func (s *MemoryStore) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

// processOne claims one job and drives it through a single attempt.
func (s *MemoryStore) processOne(ctx context.Context, queue, id string) {
	s.mu.Lock()
	q, ok := s.queues[queue]
	if !ok || q.paused {
		s.mu.Unlock()
		return
	}
	rec := findRecord(q, id)
	if rec == nil || rec.status != StatusWaiting {
		s.mu.Unlock()
		return
	}

	rec.status = StatusActive
	attemptNumber := rec.attemptsMade + 1
	jobName := rec.name

	var binding handlerBinding
	var bound bool
	if byName, ok := s.bindings[queue]; ok {
		binding, bound = byName[jobName]
	}
	effective := resolveJobOptions(s.defaultOpts, binding.opts, rec.dispatchOpts)
	jobCtx := &JobContext{
		JobID:   rec.id,
		Queue:   rec.queue,
		Attempt: attemptNumber,
		data:    cloneData(rec.data),
		log:     s.log.With("job_id", rec.id, "queue", rec.queue),
	}
	jobCtx.progress = func(value int) {
		s.recordProgress(queue, id, value)
	}
	s.mu.Unlock()

	traceCtx, span := tracing.StartJobSpan(
		ctx,
		tracing.SpanOperationJobProcess,
		tracing.WithJobQueue(queue),
		tracing.WithJobID(id),
		tracing.WithJobName(jobName),
		tracing.WithJobAttempt(attemptNumber),
	)
	defer span.End()

	if !bound {
		// Permanent failure, not subject to the attempts counter.
		err := fmt.Errorf("No handler registered for job: %s", jobName)
		tracing.RecordError(span, err)
		s.failTerminally(queue, id, effective, err.Error(), "")
		return
	}

	incrementJobInFlight(queue)
	stack, execErr := runHandler(traceCtx, binding.handler, jobCtx)
	decrementJobInFlight(queue)

	if execErr == nil {
		tracing.RecordSuccess(span)
		s.complete(queue, id, effective)
		return
	}
	tracing.RecordError(span, execErr)
	s.fail(queue, id, attemptNumber, effective, execErr.Error(), stack)
}

// runHandler executes the handler, converting panics (of any value) into
// normalized failures with a captured stack trace.
func runHandler(ctx context.Context, handler Handler, jobCtx *JobContext) (stack string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%v", rec)
			stack = string(debug.Stack())
		}
	}()
	return "", handler(ctx, jobCtx)
}

func (s *MemoryStore) recordProgress(queue, id string, value int) {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	s.mu.Lock()
	if q, ok := s.queues[queue]; ok {
		if rec := findRecord(q, id); rec != nil {
			rec.progress = value
		}
	}
	s.mu.Unlock()
	s.log.Debug("job progress", "job_id", id, "queue", queue, "progress", value)
}

func (s *MemoryStore) complete(queue, id string, opts JobOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queue]
	if !ok {
		return
	}
	rec := findRecord(q, id)
	if rec == nil {
		return
	}

	rec.status = StatusCompleted
	s.finished++
	rec.finishedSeq = s.finished
	s.applyRetention(q, rec, StatusCompleted, opts.RemoveOnComplete)
	recordJobProcessed(queue, rec.name, "success")
	s.log.Debug("job completed", "job_id", id, "queue", queue)
}

func (s *MemoryStore) fail(queue, id string, attemptNumber int, opts JobOptions, errMsg, stack string) {
	s.mu.Lock()
	q, ok := s.queues[queue]
	if !ok {
		s.mu.Unlock()
		return
	}
	rec := findRecord(q, id)
	if rec == nil {
		s.mu.Unlock()
		return
	}

	rec.attemptsMade++
	if rec.attemptsMade < opts.Attempts {
		delay := opts.Backoff.NextDelay(attemptNumber)
		rec.readyAt = time.Now().UTC().Add(delay)
		if delay > 0 {
			rec.status = StatusDelayed
		} else {
			rec.status = StatusWaiting
		}
		rec.errMsg = errMsg
		rec.stackTrace = stack
		name := rec.name
		s.mu.Unlock()
		recordJobRetry(queue, name)
		recordJobProcessed(queue, name, "retry")
		s.log.Warn("job attempt failed, retry scheduled",
			"job_id", id, "queue", queue, "attempt", attemptNumber, "error", errMsg)
		return
	}
	s.mu.Unlock()
	s.failTerminally(queue, id, opts, errMsg, stack)
}

func (s *MemoryStore) failTerminally(queue, id string, opts JobOptions, errMsg, stack string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.queues[queue]
	if !ok {
		return
	}
	rec := findRecord(q, id)
	if rec == nil {
		return
	}

	rec.status = StatusFailed
	rec.errMsg = errMsg
	rec.stackTrace = stack
	rec.failedAt = time.Now().UTC()
	s.finished++
	rec.finishedSeq = s.finished
	s.applyRetention(q, rec, StatusFailed, opts.RemoveOnFail)
	recordJobProcessed(queue, rec.name, "failed")
	s.log.Warn("job failed terminally", "job_id", id, "queue", queue, "error", errMsg)
}

// applyRetention enforces the retention policy after finished moves to a
// terminal state. Discard removes only the finishing record; a numeric
// policy prunes the queue down to the N most recently finished records in
// that state. Caller must hold s.mu.
func (s *MemoryStore) applyRetention(q *memoryQueue, finished *jobRecord, status Status, policy Retention) {
	if policy.Discards() {
		kept := q.records[:0]
		for _, rec := range q.records {
			if rec.id != finished.id {
				kept = append(kept, rec)
			}
		}
		q.records = kept
		return
	}

	limit, ok := policy.Limit()
	if !ok {
		return
	}

	var terminal []*jobRecord
	for _, rec := range q.records {
		if rec.status == status {
			terminal = append(terminal, rec)
		}
	}
	if len(terminal) <= limit {
		return
	}

	// Keep only the most recently finished records.
	sort.Slice(terminal, func(i, j int) bool {
		return terminal[i].finishedSeq > terminal[j].finishedSeq
	})
	drop := map[string]struct{}{}
	for _, rec := range terminal[limit:] {
		drop[rec.id] = struct{}{}
	}
	kept := q.records[:0]
	for _, rec := range q.records {
		if _, gone := drop[rec.id]; !gone {
			kept = append(kept, rec)
		}
	}
	q.records = kept
}

func findRecord(q *memoryQueue, id string) *jobRecord {
	for _, rec := range q.records {
		if rec.id == id {
			return rec
		}
	}
	return nil
}

func cloneData(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(data))
	copy(out, data)
	return out
}
