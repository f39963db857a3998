package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validatePagination(cfg, ve)
	validateReducer(cfg, ve)
	validateActions(cfg, ve)
	validateDispatch(cfg, ve)
	if cfg.Stream.Buffer < 0 {
		ve.Add("stream.buffer must be >= 0, got %d", cfg.Stream.Buffer)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Namespace == "" {
		ve.Add("metrics.namespace is required when metrics are enabled")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var (
	logLevels     = []string{"debug", "info", "warn", "warning", "error"}
	logFormats    = []string{"text", "json"}
	tracerOutputs = []string{"noop", "stdout", ""}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !slices.Contains(logLevels, strings.ToLower(cfg.Logger.Level)) {
		ve.Add("logger.level %q is not one of %s", cfg.Logger.Level, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(logFormats, strings.ToLower(cfg.Logger.Format)) {
		ve.Add("logger.format %q is not one of %s", cfg.Logger.Format, strings.Join(logFormats, ", "))
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !slices.Contains(tracerOutputs, cfg.Tracer.Exporter) {
		ve.Add("tracer.exporter %q is not supported (want noop or stdout)", cfg.Tracer.Exporter)
	}
}

func validatePagination(cfg *Config, ve *ValidationError) {
	p := cfg.Pagination
	if p.DefaultLimit <= 0 {
		ve.Add("pagination.default_limit must be > 0, got %d", p.DefaultLimit)
	}
	if p.MaxLimit <= 0 {
		ve.Add("pagination.max_limit must be > 0, got %d", p.MaxLimit)
	}
	if p.DefaultLimit > 0 && p.MaxLimit > 0 && p.DefaultLimit > p.MaxLimit {
		ve.Add("pagination.default_limit (%d) exceeds pagination.max_limit (%d)", p.DefaultLimit, p.MaxLimit)
	}
}

func validateReducer(cfg *Config, ve *ValidationError) {
	if cfg.Reducer.ReplayConcurrency < 0 {
		ve.Add("reducer.replay_concurrency must be >= 0, got %d", cfg.Reducer.ReplayConcurrency)
	}
}

func validateActions(cfg *Config, ve *ValidationError) {
	for name, schema := range cfg.Actions.Schemas {
		if strings.TrimSpace(name) == "" {
			ve.Add("actions.schemas has an entry with an empty action type")
		}
		if strings.TrimSpace(schema) == "" {
			ve.Add("actions.schemas[%s] is empty", name)
		}
	}
}

func validateDispatch(cfg *Config, ve *ValidationError) {
	d := cfg.Dispatch
	if d.RatePerSecond < 0 {
		ve.Add("dispatch.rate_per_second must be >= 0, got %g", d.RatePerSecond)
	}
	if d.RatePerSecond > 0 && d.Burst < 1 {
		ve.Add("dispatch.burst must be >= 1 when a rate is set, got %d", d.Burst)
	}
	if d.Breaker.Enabled {
		if d.Breaker.MaxFailures == 0 {
			ve.Add("dispatch.breaker.max_failures must be > 0")
		}
		if d.Breaker.OpenTimeout <= 0 {
			ve.Add("dispatch.breaker.open_timeout must be > 0, got %s", d.Breaker.OpenTimeout)
		}
	}
}
