// Package factory selects a jobs driver from configuration.
package factory

import (
	"fmt"
	"strings"

	"github.com/emberq/emberq/pkg/config"
	"github.com/emberq/emberq/pkg/jobs"
	"github.com/emberq/emberq/pkg/observability/logger"
)

// Backend identifiers re-exported for callers that construct configs in code.
const (
	BackendMemory = config.JobsBackendMemory
	BackendBroker = config.JobsBackendBroker
)

// Config configures jobs driver selection.
type Config = config.JobsConfig

// Stores bundles the two driver contracts. The memory driver satisfies both
// with one instance, so Close on either side releases the same resources.
type Stores struct {
	Queue  jobs.QueueStore
	Worker jobs.WorkerStore
}

// NewStores creates the driver selected by cfg.Backend. Default is memory.
// The broker backend is a recognized contract with no in-tree
// implementation; selecting it returns an unsupported-backend error.
func NewStores(cfg Config, log logger.Logger) (*Stores, error) {
	if log == nil {
		log = logger.Nop()
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		store := jobs.NewMemoryStoreWithConfig(log, jobs.MemoryStoreConfig{
			DefaultQueue:   cfg.DefaultQueue,
			DefaultOptions: retryOptions(cfg.Retry),
		})
		return &Stores{Queue: store, Worker: store}, nil
	case BackendBroker:
		return nil, fmt.Errorf("%w: jobs.backend %q has no in-tree driver (supported: %s)",
			jobs.ErrUnsupported, cfg.Backend, BackendMemory)
	default:
		return nil, fmt.Errorf("%w: unknown jobs.backend %q (supported: %s)",
			jobs.ErrUnsupported, cfg.Backend, BackendMemory)
	}
}

// retryOptions translates the configured retry policy into the store-wide
// default job options. Unset fields stay zero so per-job options and the
// documented defaults fill the gaps.
func retryOptions(retry config.JobsRetryConfig) jobs.JobOptions {
	opts := jobs.JobOptions{Attempts: retry.Attempts}
	if t := strings.ToLower(strings.TrimSpace(retry.BackoffType)); t != "" {
		opts.Backoff = jobs.Backoff{
			Type:  jobs.BackoffType(t),
			Delay: retry.BackoffDelay,
		}
	}
	return opts
}

// NewManagers creates the queue and worker managers over the configured
// driver.
func NewManagers(cfg Config, log logger.Logger) (*jobs.QueueManager, *jobs.WorkerManager, error) {
	stores, err := NewStores(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	qm, err := jobs.NewQueueManager(stores.Queue, log)
	if err != nil {
		return nil, nil, err
	}
	wm, err := jobs.NewWorkerManager(stores.Worker, log)
	if err != nil {
		return nil, nil, err
	}
	return qm, wm, nil
}
