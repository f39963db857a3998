// Package registry is the single entry point for turning raw JSON into
// protocol values. It resolves a union name to its parser, reports
// validation failures to metrics and checks custom action payloads.
package registry

import (
	"errors"
	"fmt"
	"log/slog"

	"chatkit/internal/domain"
	"chatkit/internal/infra/metrics"
)

// ErrUnknownUnion is returned for a union name the registry does not know.
var ErrUnknownUnion = fmt.Errorf("%w: unknown union", domain.ErrInvalidInput)

// Registry parses payloads into closed unions.
type Registry struct {
	actions *ActionSchemas
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Registry. actions and m may be nil.
func New(actions *ActionSchemas, m *metrics.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{actions: actions, metrics: m, logger: logger}
}

// Tags returns the discriminator values accepted by union u.
func Tags(u domain.Union) ([]string, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownUnion, u)
	}
	return u.Tags(), nil
}

// Parse decodes data as a variant of union u.
func (r *Registry) Parse(u domain.Union, data []byte) (any, error) {
	var (
		v   any
		err error
	)
	switch u {
	case domain.UnionRequest:
		v, err = domain.ParseRequest(data)
	case domain.UnionEvent:
		v, err = domain.ParseEvent(data)
	case domain.UnionItem:
		v, err = domain.ParseThreadItem(data)
	case domain.UnionUpdate:
		v, err = domain.ParseUpdate(data)
	case domain.UnionSource:
		v, err = domain.ParseSource(data)
	case domain.UnionTask:
		v, err = domain.ParseTask(data)
	case domain.UnionAttachment:
		v, err = domain.ParseAttachment(data)
	case domain.UnionStatus:
		v, err = domain.ParseStatus(data)
	case domain.UnionUserContent:
		v, err = domain.ParseUserContent(data)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownUnion, u)
	}
	if err != nil {
		r.failed(u, err)
		return nil, err
	}
	return v, nil
}

// ParseRequest decodes a request envelope. A custom action payload is
// also checked against its configured schema.
func (r *Registry) ParseRequest(data []byte) (domain.Request, error) {
	req, err := domain.ParseRequest(data)
	if err != nil {
		r.failed(domain.UnionRequest, err)
		return nil, err
	}
	if ca, ok := req.(domain.ThreadsCustomActionReq); ok {
		if err := r.ValidateAction(ca.Params.Action); err != nil {
			r.failed(domain.UnionRequest, err)
			return nil, err
		}
	}
	return req, nil
}

// ParseEvent decodes one stream event.
func (r *Registry) ParseEvent(data []byte) (domain.ThreadStreamEvent, error) {
	e, err := domain.ParseEvent(data)
	if err != nil {
		r.failed(domain.UnionEvent, err)
		return nil, err
	}
	return e, nil
}

// ValidateAction checks a custom action payload. Without configured
// schemas every action is accepted.
func (r *Registry) ValidateAction(a domain.Action) error {
	if r.actions == nil {
		return nil
	}
	return r.actions.Validate(a)
}

func (r *Registry) failed(u domain.Union, err error) {
	r.metrics.ValidationFailed(string(u))
	attrs := []any{"union", u, "code", domain.ErrorCodeOf(err)}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		attrs = append(attrs, "fields", len(ve.Fields))
	}
	r.logger.Debug("payload rejected", attrs...)
}
