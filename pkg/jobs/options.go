package jobs

import "time"

// Option defaults applied by DefaultJobOptions.
const (
	DefaultAttempts     = 3
	DefaultBackoffDelay = time.Second
	DefaultQueue        = "default"
)

// BackoffType selects the delay policy between retry attempts.
type BackoffType string

const (
	// BackoffFixed waits a constant delay before every retry.
	BackoffFixed BackoffType = "fixed"
	// BackoffExponential doubles the delay on each attempt:
	// delay * 2^(attemptNumber-1).
	BackoffExponential BackoffType = "exponential"
)

// Backoff describes the retry delay policy for a job.
// The zero value means "unset"; merging falls back to the default policy.
type Backoff struct {
	Type  BackoffType
	Delay time.Duration
}

func (b Backoff) isZero() bool {
	return b.Type == "" && b.Delay == 0
}

// NextDelay returns the delay to apply before the retry that follows the
// given attempt number (1-indexed).
func (b Backoff) NextDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	switch b.Type {
	case BackoffFixed:
		return b.Delay
	default:
		d := b.Delay
		for i := 1; i < attemptNumber; i++ {
			d *= 2
		}
		return d
	}
}

type retentionMode int

const (
	retentionUnset retentionMode = iota
	retentionDiscard
	retentionKeep
	retentionKeepLast
)

// Retention controls whether finished job records are kept in the store.
// The zero value means "unset" so option merging can tell silence from intent.
type Retention struct {
	mode  retentionMode
	count int
}

// Discard removes the record as soon as the job finishes.
func Discard() Retention { return Retention{mode: retentionDiscard} }

// Keep retains every finished record.
func Keep() Retention { return Retention{mode: retentionKeep} }

// KeepLast retains only the n most recently finished records per queue.
func KeepLast(n int) Retention { return Retention{mode: retentionKeepLast, count: n} }

// IsZero reports whether the retention policy was left unset.
func (r Retention) IsZero() bool { return r.mode == retentionUnset }

// Discards reports whether a freshly finished record should be removed.
func (r Retention) Discards() bool { return r.mode == retentionDiscard }

// Limit returns the per-queue record cap and whether one applies.
func (r Retention) Limit() (int, bool) {
	if r.mode == retentionKeepLast {
		return r.count, true
	}
	return 0, false
}

// JobOptions configures per-job execution behavior. Zero-valued fields are
// treated as unset and fall back to defaults when merged.
type JobOptions struct {
	// Attempts is the total number of executions allowed before the job
	// fails terminally. Must be >= 1 once resolved.
	Attempts int

	// Backoff is the retry delay policy.
	Backoff Backoff

	// Priority is accepted and stored but does not reorder execution in the
	// in-memory driver.
	Priority int

	// RemoveOnComplete controls retention of successfully completed records.
	RemoveOnComplete Retention

	// RemoveOnFail controls retention of terminally failed records.
	RemoveOnFail Retention

	// Timeout is accepted and stored but not enforced by the in-memory
	// driver. A distributed driver must treat it as a wall-clock deadline
	// per execution.
	Timeout time.Duration
}

// DefaultJobOptions returns the documented option defaults.
func DefaultJobOptions() JobOptions {
	return JobOptions{
		Attempts:         DefaultAttempts,
		Backoff:          Backoff{Type: BackoffExponential, Delay: DefaultBackoffDelay},
		Priority:         0,
		RemoveOnComplete: Discard(),
		RemoveOnFail:     Keep(),
	}
}

// mergeJobOptions overlays src over dst field by field. Set fields in src win;
// unset fields keep the dst value.
func mergeJobOptions(dst, src JobOptions) JobOptions {
	out := dst
	if src.Attempts > 0 {
		out.Attempts = src.Attempts
	}
	if !src.Backoff.isZero() {
		out.Backoff = src.Backoff
	}
	if src.Priority != 0 {
		out.Priority = src.Priority
	}
	if !src.RemoveOnComplete.IsZero() {
		out.RemoveOnComplete = src.RemoveOnComplete
	}
	if !src.RemoveOnFail.IsZero() {
		out.RemoveOnFail = src.RemoveOnFail
	}
	if src.Timeout > 0 {
		out.Timeout = src.Timeout
	}
	return out
}

// resolveJobOptions merges a chain of option sets over the defaults.
// Later entries take precedence.
func resolveJobOptions(chain ...JobOptions) JobOptions {
	out := DefaultJobOptions()
	for _, opts := range chain {
		out = mergeJobOptions(out, opts)
	}
	if out.Attempts < 1 {
		out.Attempts = 1
	}
	if out.Backoff.isZero() {
		out.Backoff = Backoff{Type: BackoffExponential, Delay: DefaultBackoffDelay}
	}
	return out
}
