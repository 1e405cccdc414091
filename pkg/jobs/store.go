package jobs

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job record.
type Status string

// Job lifecycle states
const (
	StatusWaiting   Status = "waiting"
	StatusDelayed   Status = "delayed"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// AddOptions configures a single enqueue operation.
type AddOptions struct {
	// Queue is the target queue; empty defaults to "default".
	Queue string
	// Delay postpones readiness. The job starts out delayed and becomes
	// waiting once the delay elapses.
	Delay time.Duration
	// Options overrides job options for this instance. Set fields take
	// precedence over handler-registration defaults.
	Options JobOptions
}

// BulkItem is one entry of a bulk enqueue.
type BulkItem struct {
	Name string
	Data json.RawMessage
	Opts AddOptions
}

// FailedJob is the read projection of a terminally failed record.
type FailedJob struct {
	ID           string
	Name         string
	Queue        string
	Data         json.RawMessage
	Error        string
	StackTrace   string
	AttemptsMade int
	FailedAt     time.Time
}

// QueueStats reports per-queue record counts by state.
type QueueStats struct {
	Name      string
	Waiting   int
	Active    int
	Completed int
	Failed    int
	Delayed   int
	Paused    int
}

// QueueStore is the storage-side driver contract. Every operation must be
// safe under concurrent invocation in a production driver; the in-memory
// driver serializes internally.
//
// Operations on a queue name that was never created return empty results or
// act as no-ops; they never fail.
type QueueStore interface {
	// Add enqueues one job and returns its generated id. It never validates
	// the payload against a job schema; that is the QueueManager's job.
	Add(ctx context.Context, jobName string, data json.RawMessage, opts AddOptions) (string, error)

	// AddBulk enqueues every item as an independent operation, possibly
	// spanning multiple queues. Empty input returns an empty result.
	// Atomicity is not a store-level guarantee.
	AddBulk(ctx context.Context, items []BulkItem) ([]string, error)

	// FailedJobs lists terminally failed records. An empty queue aggregates
	// across every queue that currently exists; limit > 0 bounds the
	// aggregate result size.
	FailedJobs(ctx context.Context, queue string, limit int) ([]FailedJob, error)

	// RetryJob moves exactly one failed record back to waiting. It returns
	// false, not an error, when the id is unknown.
	RetryJob(ctx context.Context, id, queue string) (bool, error)

	// RetryAllFailed moves failed records back to waiting, aggregating
	// across queues when queue is empty, and returns the number moved.
	RetryAllFailed(ctx context.Context, queue string) (int, error)

	// RemoveJob deletes a record by id. It returns false when not found.
	RemoveJob(ctx context.Context, id, queue string) (bool, error)

	// Stats reports per-queue counts. An empty queue returns one entry per
	// existing queue; a never-created queue returns a single zeroed entry.
	Stats(ctx context.Context, queue string) ([]QueueStats, error)

	// PauseQueue excludes a queue from processing passes until resumed.
	PauseQueue(ctx context.Context, queue string) error

	// ResumeQueue re-enables a paused queue.
	ResumeQueue(ctx context.Context, queue string) error

	// ClearQueue removes every record in a queue. No-op for unknown queues.
	ClearQueue(ctx context.Context, queue string) error

	// Close releases resources. Idempotent.
	Close() error
}

// RegisterOptions configures a handler binding.
type RegisterOptions struct {
	// Queue the binding applies to; empty defaults to "default".
	Queue string
	// Concurrency is accepted for driver compatibility; the in-memory
	// driver always executes sequentially.
	Concurrency int
	// Options are registration-time defaults for jobs of this name.
	// Dispatch-time options take precedence per instance.
	Options JobOptions
}

// WorkerStore is the execution-side driver contract.
type WorkerStore interface {
	// RegisterHandler binds a handler to a job name within a queue.
	// Re-registering the same name replaces the prior binding.
	RegisterHandler(jobName string, handler Handler, opts RegisterOptions) error

	// Start performs one complete pass over every currently-ready job across
	// all queues, invoking the bound handlers. It resets any prior stop
	// request, so repeated calls pick up newly-ready work.
	Start(ctx context.Context) error

	// Stop requests that the processing loop halt. It never interrupts an
	// in-flight handler.
	Stop()

	// Close releases resources. Idempotent.
	Close() error
}
