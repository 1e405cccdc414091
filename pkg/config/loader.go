package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader.
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "EMBERQ")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers defaults so unset keys fall back rather than zero.
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)

	v.SetDefault("jobs.backend", cfg.Jobs.Backend)
	v.SetDefault("jobs.default_queue", cfg.Jobs.DefaultQueue)
	v.SetDefault("jobs.retry.attempts", cfg.Jobs.Retry.Attempts)
	v.SetDefault("jobs.retry.backoff_type", cfg.Jobs.Retry.BackoffType)
	v.SetDefault("jobs.retry.backoff_delay", cfg.Jobs.Retry.BackoffDelay)
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("logger.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("logger.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("jobs.backend", l.prefixedEnv("JOBS_BACKEND"))
	v.BindEnv("jobs.default_queue", l.prefixedEnv("JOBS_DEFAULT_QUEUE"))
	v.BindEnv("jobs.retry.attempts", l.prefixedEnv("JOBS_RETRY_ATTEMPTS"))
	v.BindEnv("jobs.retry.backoff_type", l.prefixedEnv("JOBS_RETRY_BACKOFF_TYPE"))
	v.BindEnv("jobs.retry.backoff_delay", l.prefixedEnv("JOBS_RETRY_BACKOFF_DELAY"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	if l.envPrefix == "" {
		return name
	}
	return l.envPrefix + "_" + name
}

// Validate checks cross-field constraints that viper cannot express.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logger.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logger.level %q", cfg.Logger.Level)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logger.Format)) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("invalid logger.format %q", cfg.Logger.Format)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Jobs.Backend)) {
	case JobsBackendMemory, JobsBackendBroker:
	default:
		return fmt.Errorf("invalid jobs.backend %q (supported: %s, %s)", cfg.Jobs.Backend, JobsBackendMemory, JobsBackendBroker)
	}

	if cfg.Jobs.Retry.Attempts < 1 {
		return fmt.Errorf("jobs.retry.attempts must be >= 1, got %d", cfg.Jobs.Retry.Attempts)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Jobs.Retry.BackoffType)) {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("invalid jobs.retry.backoff_type %q", cfg.Jobs.Retry.BackoffType)
	}
	if cfg.Jobs.Retry.BackoffDelay < 0 {
		return fmt.Errorf("jobs.retry.backoff_delay must be >= 0")
	}
	return nil
}
