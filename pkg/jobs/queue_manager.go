package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emberq/emberq/pkg/observability/logger"
)

// DispatchOptions configures a single dispatch.
type DispatchOptions struct {
	// Queue overrides the definition's target queue.
	Queue string
	// Delay postpones readiness. Accepts a duration string ("30s", "5m") or
	// a plain number of seconds; see ParseDelay.
	Delay any
	// Options override the definition's job options field by field for this
	// instance, and take precedence over handler-registration defaults.
	Options JobOptions
}

// QueueManager is the dispatch façade over a QueueStore. It validates
// payloads against the job definition's schema before any store mutation.
type QueueManager struct {
	store QueueStore
	log   logger.Logger
}

// NewQueueManager creates a queue manager over a store.
func NewQueueManager(store QueueStore, log logger.Logger) (*QueueManager, error) {
	if store == nil {
		return nil, jobsError(ErrInvalidArgument, "queue store is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &QueueManager{store: store, log: log}, nil
}

// Dispatch validates data against the definition's schema and enqueues one
// job instance. A validation failure aborts with no side effect.
func (m *QueueManager) Dispatch(ctx context.Context, def *JobDefinition, data any, opts DispatchOptions) (string, error) {
	if def == nil {
		return "", jobsError(ErrInvalidArgument, "job definition is required")
	}
	if def.schema != nil {
		if err := def.schema.Validate(data); err != nil {
			return "", fmt.Errorf("dispatch %s: %w", def.name, err)
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return "", errors.Join(jobsError(ErrValidation, fmt.Sprintf("marshal payload for %s failed", def.name)), err)
	}

	addOpts, err := m.resolveAddOptions(def, opts)
	if err != nil {
		return "", err
	}

	id, err := m.store.Add(ctx, def.name, raw, addOpts)
	if err != nil {
		return "", err
	}
	m.log.Debug("job dispatched", "job_id", id, "job_name", def.name, "queue", addOpts.Queue)
	return id, nil
}

// DispatchBatch validates every item against the schema first; if any item
// is invalid the entire call fails and nothing is enqueued.
func (m *QueueManager) DispatchBatch(ctx context.Context, def *JobDefinition, items []any, opts DispatchOptions) ([]string, error) {
	if def == nil {
		return nil, jobsError(ErrInvalidArgument, "job definition is required")
	}

	addOpts, err := m.resolveAddOptions(def, opts)
	if err != nil {
		return nil, err
	}

	// All-or-nothing validation gate: no store mutation until every item
	// has passed.
	bulk := make([]BulkItem, 0, len(items))
	for i, item := range items {
		if def.schema != nil {
			if err := def.schema.Validate(item); err != nil {
				return nil, fmt.Errorf("dispatch batch %s: item %d: %w", def.name, i, err)
			}
		}
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, errors.Join(jobsError(ErrValidation, fmt.Sprintf("marshal batch item %d for %s failed", i, def.name)), err)
		}
		bulk = append(bulk, BulkItem{Name: def.name, Data: raw, Opts: addOpts})
	}

	ids, err := m.store.AddBulk(ctx, bulk)
	if err != nil {
		return ids, err
	}
	m.log.Debug("job batch dispatched", "job_name", def.name, "queue", addOpts.Queue, "count", len(ids))
	return ids, nil
}

func (m *QueueManager) resolveAddOptions(def *JobDefinition, opts DispatchOptions) (AddOptions, error) {
	queue := strings.TrimSpace(opts.Queue)
	if queue == "" {
		queue = def.queue
	}

	delayMillis, err := ParseDelay(opts.Delay)
	if err != nil {
		return AddOptions{}, err
	}

	return AddOptions{
		Queue:   queue,
		Delay:   time.Duration(delayMillis) * time.Millisecond,
		Options: mergeJobOptions(def.options, opts.Options),
	}, nil
}

// Stats delegates to the underlying store.
func (m *QueueManager) Stats(ctx context.Context, queue string) ([]QueueStats, error) {
	return m.store.Stats(ctx, queue)
}

// FailedJobs delegates to the underlying store.
func (m *QueueManager) FailedJobs(ctx context.Context, queue string, limit int) ([]FailedJob, error) {
	return m.store.FailedJobs(ctx, queue, limit)
}

// RetryJob delegates to the underlying store.
func (m *QueueManager) RetryJob(ctx context.Context, id, queue string) (bool, error) {
	return m.store.RetryJob(ctx, id, queue)
}

// RetryAllFailed delegates to the underlying store.
func (m *QueueManager) RetryAllFailed(ctx context.Context, queue string) (int, error) {
	return m.store.RetryAllFailed(ctx, queue)
}

// RemoveJob delegates to the underlying store.
func (m *QueueManager) RemoveJob(ctx context.Context, id, queue string) (bool, error) {
	return m.store.RemoveJob(ctx, id, queue)
}

// PauseQueue delegates to the underlying store.
func (m *QueueManager) PauseQueue(ctx context.Context, queue string) error {
	return m.store.PauseQueue(ctx, queue)
}

// ResumeQueue delegates to the underlying store.
func (m *QueueManager) ResumeQueue(ctx context.Context, queue string) error {
	return m.store.ResumeQueue(ctx, queue)
}

// ClearQueue delegates to the underlying store.
func (m *QueueManager) ClearQueue(ctx context.Context, queue string) error {
	return m.store.ClearQueue(ctx, queue)
}

// Close releases the underlying store. Idempotent.
func (m *QueueManager) Close() error {
	return m.store.Close()
}
