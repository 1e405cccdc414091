package config

import "time"

// Jobs backend identifiers.
const (
	// JobsBackendMemory selects the in-process reference driver.
	JobsBackendMemory = "memory"
	// JobsBackendBroker names the distributed broker-backed driver contract.
	// No broker driver ships with this module; selecting it fails with an
	// unsupported-backend error.
	JobsBackendBroker = "broker"
)

// Config is the root configuration for the engine.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger"`
	Jobs   JobsConfig   `mapstructure:"jobs"`
}

// LoggerConfig configures the structured logger.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// JobsConfig configures driver selection and queue defaults.
type JobsConfig struct {
	Backend      string          `mapstructure:"backend"`       // memory, broker
	DefaultQueue string          `mapstructure:"default_queue"` // default
	Retry        JobsRetryConfig `mapstructure:"retry"`
}

// JobsRetryConfig configures default retry behavior for jobs that do not
// set their own options.
type JobsRetryConfig struct {
	Attempts     int           `mapstructure:"attempts"`
	BackoffType  string        `mapstructure:"backoff_type"` // fixed, exponential
	BackoffDelay time.Duration `mapstructure:"backoff_delay"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "json",
		},
		Jobs: JobsConfig{
			Backend:      JobsBackendMemory,
			DefaultQueue: "default",
			Retry: JobsRetryConfig{
				Attempts:     3,
				BackoffType:  "exponential",
				BackoffDelay: time.Second,
			},
		},
	}
}
