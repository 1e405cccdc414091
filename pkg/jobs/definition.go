package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/emberq/emberq/pkg/observability/logger"
)

// jobNamePattern accepts dot-separated identifiers: every segment starts with
// a letter and continues with letters or digits only.
var jobNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*(\.[A-Za-z][A-Za-z0-9]*)*$`)

// Handler processes one job execution. Returning a non-nil error (or
// panicking) marks the attempt as failed and feeds the retry counter.
type Handler func(ctx context.Context, job *JobContext) error

// JobContext is the execution-scoped view a handler receives. It exposes a
// copy of the payload, never the stored record, so handler mutation cannot
// corrupt store state.
type JobContext struct {
	// JobID is the unique identifier of the job instance.
	JobID string
	// Queue is the queue the job was claimed from.
	Queue string
	// Attempt is the 1-indexed attempt number of this execution.
	Attempt int

	data     json.RawMessage
	progress func(int)
	log      logger.Logger
}

// Data returns a copy of the raw payload bytes.
func (c *JobContext) Data() json.RawMessage {
	if len(c.data) == 0 {
		return nil
	}
	out := make(json.RawMessage, len(c.data))
	copy(out, c.data)
	return out
}

// Bind unmarshals the payload into v.
func (c *JobContext) Bind(v any) error {
	if err := json.Unmarshal(c.data, v); err != nil {
		return jobsError(ErrValidation, fmt.Sprintf("decode job payload: %v", err))
	}
	return nil
}

// Progress reports advisory completion progress. Values are clamped to 0-100.
func (c *JobContext) Progress(value int) {
	if c.progress != nil {
		c.progress(value)
	}
}

// Log writes a message to the operator-visible log sink, annotated with the
// job id and queue.
func (c *JobContext) Log(msg string, args ...any) {
	if c.log != nil {
		c.log.Info(msg, args...)
	}
}

// JobDefinitionConfig is the construction-time input for Define.
type JobDefinitionConfig struct {
	// Name identifies the job type. Must match dot-separated identifiers,
	// for example "email.send" or "reports.daily.cleanup".
	Name string
	// Schema is the payload contract enforced at dispatch time. Nil accepts
	// any payload.
	Schema Schema
	// Handler processes executions of this job.
	Handler Handler
	// Options are the default execution options for this job type.
	Options JobOptions
	// Queue is the target queue; empty defaults to "default".
	Queue string
}

// JobDefinition is an immutable description of a job type: its name, payload
// contract, handler, default options, and target queue.
type JobDefinition struct {
	name    string
	schema  Schema
	handler Handler
	options JobOptions
	queue   string
}

// Define validates the configuration and returns a frozen job definition.
// Name violations fail here, at construction time, never at dispatch. The
// name is taken verbatim: surrounding whitespace is a violation, not noise.
func Define(cfg JobDefinitionConfig) (*JobDefinition, error) {
	name := cfg.Name
	if strings.TrimSpace(name) == "" {
		return nil, jobsError(ErrConfiguration, "job name is required")
	}
	if !jobNamePattern.MatchString(name) {
		return nil, jobsError(ErrConfiguration, fmt.Sprintf(
			"invalid job name %q: segments must start with a letter, contain only letters and digits, and be joined by single dots", cfg.Name))
	}
	if cfg.Handler == nil {
		return nil, jobsError(ErrConfiguration, fmt.Sprintf("job %q requires a handler", name))
	}

	queue := strings.TrimSpace(cfg.Queue)
	if queue == "" {
		queue = DefaultQueue
	}

	return &JobDefinition{
		name:    name,
		schema:  cfg.Schema,
		handler: cfg.Handler,
		options: resolveJobOptions(cfg.Options),
		queue:   queue,
	}, nil
}

// MustDefine is like Define but panics on configuration errors. Use for
// package-level definitions.
func MustDefine(cfg JobDefinitionConfig) *JobDefinition {
	def, err := Define(cfg)
	if err != nil {
		panic(err)
	}
	return def
}

// Name returns the job type name.
func (d *JobDefinition) Name() string { return d.name }

// Schema returns the payload contract, which may be nil.
func (d *JobDefinition) Schema() Schema { return d.schema }

// Handler returns the handler function.
func (d *JobDefinition) Handler() Handler { return d.handler }

// Options returns a copy of the resolved default options.
func (d *JobDefinition) Options() JobOptions { return d.options }

// Queue returns the target queue name.
func (d *JobDefinition) Queue() string { return d.queue }
