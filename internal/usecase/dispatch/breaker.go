package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sony/gobreaker/v2"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
)

// guard wraps backend calls with an optional circuit breaker.
type guard struct {
	cb *gobreaker.CircuitBreaker[any]
}

func newGuard(cfg config.BreakerConfig, logger *slog.Logger) *guard {
	if !cfg.Enabled {
		return &guard{}
	}
	maxFailures := cfg.MaxFailures
	return &guard{cb: gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "backend",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !countsAsFailure(err)
		},
	})}
}

// countsAsFailure reports whether err reflects backend health. Caller
// mistakes, thread status and stream reduction errors do not.
func countsAsFailure(err error) bool {
	var locked *domain.LockedError
	switch {
	case errors.Is(err, context.Canceled):
	case errors.As(err, &locked):
	case errors.Is(err, domain.ErrThreadClosed):
	case errors.Is(err, domain.ErrNotFound):
	case errors.Is(err, domain.ErrInvalidInput):
	case errors.Is(err, domain.ErrRequestUnsupported):
	case domain.IsReductionError(err):
	default:
		return true
	}
	return false
}

func (g *guard) do(fn func() (any, error)) (any, error) {
	if g.cb == nil {
		return fn()
	}
	v, err := g.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}
	return v, err
}

func (g *guard) state() gobreaker.State {
	if g.cb == nil {
		return gobreaker.StateClosed
	}
	return g.cb.State()
}
