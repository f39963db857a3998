package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of the protocol core.
type Config struct {
	Includes   []string         `yaml:"includes,omitempty"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Pagination PaginationConfig `yaml:"pagination"`
	Reducer    ReducerConfig    `yaml:"reducer"`
	Stream     StreamConfig     `yaml:"stream"`
	Actions    ActionsConfig    `yaml:"actions"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// MetricsConfig holds Prometheus collector settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// PaginationConfig bounds list requests.
type PaginationConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// ReducerConfig controls event reduction.
type ReducerConfig struct {
	// IgnoreLateUpdates turns updates against done or removed items into
	// logged no-ops instead of stream-fatal errors.
	IgnoreLateUpdates bool `yaml:"ignore_late_updates"`
	// ReplayConcurrency caps how many threads are replayed at once.
	// Zero means unlimited.
	ReplayConcurrency int `yaml:"replay_concurrency"`
}

// StreamConfig controls streaming request delivery.
type StreamConfig struct {
	// Buffer is the number of reduced events queued ahead of the consumer.
	Buffer int `yaml:"buffer"`
}

// ActionsConfig holds per-action payload schemas for threads.custom_action.
type ActionsConfig struct {
	// Schemas maps an action type to an inline JSON Schema document.
	Schemas map[string]string `yaml:"schemas"`
	// RejectUnknown fails actions whose type has no schema.
	RejectUnknown bool `yaml:"reject_unknown"`
}

// DispatchConfig protects the request backend.
type DispatchConfig struct {
	// RatePerSecond caps backend calls per second. Zero means unlimited.
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	Breaker       BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the backend circuit breaker.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32 `yaml:"max_failures"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "chatkit",
		},
		Pagination: PaginationConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
		},
		Reducer: ReducerConfig{
			ReplayConcurrency: 8,
		},
		Stream: StreamConfig{
			Buffer: 16,
		},
		Actions: ActionsConfig{
			Schemas: map[string]string{},
		},
		Dispatch: DispatchConfig{
			Burst: 1,
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
	}
}

// Load reads a YAML config file, merges its includes, applies CHATKIT_*
// environment overrides and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := loadFragments(cfg, absPath); err != nil {
			return nil, err
		}
		// The main file takes precedence over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps CHATKIT_* env vars to config fields. Unparseable
// numeric values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATKIT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("CHATKIT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("CHATKIT_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("CHATKIT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("CHATKIT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("CHATKIT_METRICS_ENABLED"); v == "false" {
		cfg.Metrics.Enabled = false
	}
	if v := os.Getenv("CHATKIT_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("CHATKIT_PAGINATION_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pagination.DefaultLimit = n
		}
	}
	if v := os.Getenv("CHATKIT_PAGINATION_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pagination.MaxLimit = n
		}
	}
	if v := os.Getenv("CHATKIT_REDUCER_IGNORE_LATE_UPDATES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reducer.IgnoreLateUpdates = b
		}
	}
	if v := os.Getenv("CHATKIT_REDUCER_REPLAY_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Reducer.ReplayConcurrency = n
		}
	}
	if v := os.Getenv("CHATKIT_STREAM_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Stream.Buffer = n
		}
	}
	if v := os.Getenv("CHATKIT_DISPATCH_RATE_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dispatch.RatePerSecond = f
		}
	}
	if v := os.Getenv("CHATKIT_DISPATCH_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dispatch.Burst = n
		}
	}
	if v := os.Getenv("CHATKIT_ACTIONS_REJECT_UNKNOWN"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Actions.RejectUnknown = b
		}
	}
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
