// Package tracing provides OpenTelemetry span helpers for job processing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operation constants for queue-side and worker-side operations
const (
	// SpanOperationJobEnqueue represents enqueueing a job
	SpanOperationJobEnqueue SpanOperation = "job.enqueue"
	// SpanOperationJobProcess represents processing a job
	SpanOperationJobProcess SpanOperation = "job.process"
)

// StartJobSpan creates a new span for a job-queue operation.
// It includes job-specific attributes like queue, job id, name, and attempt.
func StartJobSpan(ctx context.Context, operation SpanOperation, opts ...JobSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("jobs")

	spanOpts := &jobSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("jobs.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("JOB %s", operation)
	if spanOpts.queue != "" {
		spanName = fmt.Sprintf("JOB %s %s", operation, spanOpts.queue)
	}

	spanKind := trace.SpanKindProducer
	if operation == SpanOperationJobProcess {
		spanKind = trace.SpanKindConsumer
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(spanKind))
	span.SetAttributes(spanOpts.attributes...)

	return ctx, span
}

// JobSpanOption configures a job span.
type JobSpanOption func(*jobSpanOptions)

type jobSpanOptions struct {
	queue      string
	attributes []attribute.KeyValue
}

// WithJobQueue sets the queue name for the span.
func WithJobQueue(queue string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.queue = queue
		opts.attributes = append(opts.attributes, attribute.String("jobs.queue", queue))
	}
}

// WithJobID sets the job identifier.
func WithJobID(jobID string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("jobs.job_id", jobID))
	}
}

// WithJobName sets the logical job name.
func WithJobName(name string) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("jobs.job_name", name))
	}
}

// WithJobAttempt sets the attempt number for the current execution.
func WithJobAttempt(attempt int) JobSpanOption {
	return func(opts *jobSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("jobs.attempt", attempt))
	}
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
