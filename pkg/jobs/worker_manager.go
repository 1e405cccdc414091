package jobs

import (
	"context"

	"github.com/emberq/emberq/pkg/observability/logger"
)

// WorkerManager is the execution façade over a WorkerStore. It turns job
// definitions into handler registrations and drives the processing loop.
type WorkerManager struct {
	store WorkerStore
	log   logger.Logger
}

// NewWorkerManager creates a worker manager over a store.
func NewWorkerManager(store WorkerStore, log logger.Logger) (*WorkerManager, error) {
	if store == nil {
		return nil, jobsError(ErrInvalidArgument, "worker store is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerManager{store: store, log: log}, nil
}

// Register binds the definition's handler to its name within its queue.
// Registering the same name again replaces the prior binding.
func (m *WorkerManager) Register(def *JobDefinition) error {
	if def == nil {
		return jobsError(ErrInvalidArgument, "job definition is required")
	}
	err := m.store.RegisterHandler(def.name, def.handler, RegisterOptions{
		Queue:   def.queue,
		Options: def.options,
	})
	if err != nil {
		return err
	}
	m.log.Debug("handler registered", "job_name", def.name, "queue", def.queue)
	return nil
}

// RegisterAll registers every definition, stopping at the first error.
func (m *WorkerManager) RegisterAll(defs []*JobDefinition) error {
	for _, def := range defs {
		if err := m.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Start delegates to the underlying store's processing pass.
func (m *WorkerManager) Start(ctx context.Context) error {
	return m.store.Start(ctx)
}

// Stop requests that the processing loop halt. Never fails.
func (m *WorkerManager) Stop() {
	m.store.Stop()
}

// Close releases the underlying store. Idempotent.
func (m *WorkerManager) Close() error {
	return m.store.Close()
}
