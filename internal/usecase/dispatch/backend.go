package dispatch

import (
	"context"
	"errors"

	"chatkit/internal/domain"
)

// Emit delivers one event produced by a streaming backend. A non-nil error
// means the stream must stop; the backend should return it unchanged.
type Emit func(domain.ThreadStreamEvent) error

// Backend answers validated requests. It owns the threads; the processor
// only reads their status.
type Backend interface {
	// LoadThread returns an existing thread with the items the processor
	// should know about before reducing events for it.
	LoadThread(ctx context.Context, threadID string) (domain.Thread, error)
	// Respond answers a non-streaming request.
	Respond(ctx context.Context, req domain.Request) (any, error)
	// Stream answers a streaming request by calling emit for each event, in
	// order.
	Stream(ctx context.Context, req domain.Request, emit Emit) error
}

// ErrBackendUnavailable is returned while the backend circuit breaker is open.
var ErrBackendUnavailable = errors.New("backend unavailable")
