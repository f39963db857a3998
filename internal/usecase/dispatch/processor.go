// Package dispatch runs validated requests against a backend: classify,
// check the target thread's status, call the backend and reduce whatever
// it streams back.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
	"chatkit/internal/infra/logger"
	"chatkit/internal/infra/metrics"
	"chatkit/internal/infra/tracer"
	"chatkit/internal/usecase/classifier"
	"chatkit/internal/usecase/pagination"
	"chatkit/internal/usecase/reducer"
	"chatkit/internal/usecase/registry"
)

// Deps holds the processor's collaborators. Backend, Registry and Hub are
// required.
type Deps struct {
	Backend  Backend
	Registry *registry.Registry
	Hub      *reducer.Hub
	Config   config.DispatchConfig
	// Buffer is the number of reduced events queued ahead of the consumer.
	Buffer int
	// Paginator resolves list page sizes; nil uses the config defaults.
	Paginator *pagination.Paginator
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Processor answers requests.
type Processor struct {
	backend  Backend
	registry *registry.Registry
	hub       *reducer.Hub
	guard     *guard
	limiter   *rate.Limiter
	paginator *pagination.Paginator
	buffer    int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Processor.
func New(deps Deps) *Processor {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}
	pg := deps.Paginator
	if pg == nil {
		pg = pagination.New(config.PaginationConfig{})
	}
	p := &Processor{
		backend:   deps.Backend,
		registry:  deps.Registry,
		hub:       deps.Hub,
		guard:     newGuard(deps.Config.Breaker, log),
		paginator: pg,
		buffer:    max(deps.Buffer, 0),
		metrics:   deps.Metrics,
		logger:    log,
	}
	if deps.Config.RatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(deps.Config.RatePerSecond), max(deps.Config.Burst, 1))
	}
	return p
}

// Process parses raw as a request envelope and handles it.
func (p *Processor) Process(ctx context.Context, raw []byte) (*Result, error) {
	req, err := p.registry.ParseRequest(raw)
	if err != nil {
		return nil, err
	}
	return p.Handle(ctx, req)
}

// Handle answers an already parsed request. Requests that mutate an
// existing thread are refused while it is locked or closed; callers turn
// the returned error into an error event with classifier.ErrorEvent.
// List requests reach the backend with their limit and order resolved and
// their cursor checked.
//
// A streaming Result must be drained, or ctx cancelled, for the backend
// call to finish.
func (p *Processor) Handle(ctx context.Context, req domain.Request) (*Result, error) {
	mode := classifier.ClassifyRequest(req)
	rt := req.RequestType()
	id := domain.NewID("req")
	ctx, span := tracer.StartSpan(ctx, "dispatch.handle",
		tracer.AttrRequestID.String(id),
		tracer.AttrRequestType.String(string(rt)),
		tracer.AttrMode.String(mode.String()),
	)
	threadID, scoped := req.ThreadID()
	if scoped {
		span.SetAttributes(tracer.AttrThreadID.String(threadID))
		ctx = domain.ContextWithThreadID(ctx, threadID)
	}
	p.metrics.RequestProcessed(string(rt), mode.String())

	fail := func(err error) (*Result, error) {
		tracer.End(span, err, codeOf(err))
		p.logger.DebugContext(ctx, "request refused", "request_id", id, "type", rt, "error", err)
		return nil, err
	}

	req, err := p.resolveList(req)
	if err != nil {
		return fail(err)
	}

	if classifier.Mutates(rt) {
		t, err := p.loadThread(ctx, threadID)
		if err != nil {
			return fail(err)
		}
		if err := classifier.Guard(req, t.Status); err != nil {
			return fail(err)
		}
		p.hub.Load(t)
	}

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return fail(fmt.Errorf("dispatch rate limit: %w", err))
		}
	}

	if mode == classifier.NonStreaming {
		v, err := p.guard.do(func() (any, error) { return p.backend.Respond(ctx, req) })
		if err != nil {
			return fail(err)
		}
		tracer.End(span, nil, "")
		res := completed(req, v)
		res.ID = id
		return res, nil
	}
	res := p.stream(ctx, span, req, threadID)
	res.ID = id
	return res, nil
}

// resolveList fills in the effective page size and order of a list
// request and rejects a cursor that cannot resume it.
func (p *Processor) resolveList(req domain.Request) (domain.Request, error) {
	switch r := req.(type) {
	case domain.ThreadsListReq:
		params, err := p.resolvePage(pagination.ThreadListParams(r.Params))
		if err != nil {
			return nil, err
		}
		r.Params.Limit, r.Params.Order = params.Limit, params.Order
		return r, nil
	case domain.ItemsListReq:
		params, err := p.resolvePage(pagination.ItemsListParams(r.Params))
		if err != nil {
			return nil, err
		}
		r.Params.Limit, r.Params.Order = params.Limit, params.Order
		return r, nil
	}
	return req, nil
}

func (p *Processor) resolvePage(params pagination.Params) (pagination.Params, error) {
	limit, err := p.paginator.Limit(params.Limit)
	if err != nil {
		return params, err
	}
	order, err := pagination.Order(params.Order)
	if err != nil {
		return params, err
	}
	if params.After != nil {
		if _, err := pagination.DecodeCursor(*params.After, order); err != nil {
			return params, err
		}
	}
	params.Limit, params.Order = &limit, order
	return params, nil
}

func (p *Processor) loadThread(ctx context.Context, threadID string) (domain.Thread, error) {
	v, err := p.guard.do(func() (any, error) { return p.backend.LoadThread(ctx, threadID) })
	if err != nil {
		return domain.Thread{}, err
	}
	return v.(domain.Thread), nil
}

func (p *Processor) stream(ctx context.Context, span trace.Span, req domain.Request, threadID string) *Result {
	events := make(chan domain.ThreadStreamEvent, p.buffer)
	res := &Result{Mode: classifier.Streaming, Request: req, Events: events, done: make(chan struct{})}

	go func() {
		defer close(res.done)
		defer close(events)

		var (
			delivered int
			stopErr   error
		)
		deliver := func(ev domain.ThreadStreamEvent) error {
			select {
			case events <- ev:
				delivered++
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		emit := func(ev domain.ThreadStreamEvent) error {
			if stopErr != nil {
				return stopErr
			}
			if err := p.reduce(ctx, &threadID, ev); err != nil {
				stopErr = err
				return err
			}
			if err := deliver(ev); err != nil {
				stopErr = err
				return err
			}
			return nil
		}

		_, err := p.guard.do(func() (any, error) { return nil, p.backend.Stream(ctx, req, emit) })
		if stopErr != nil {
			err = stopErr
		}
		if err != nil && ctx.Err() == nil {
			ev := classifier.ErrorEvent(err)
			if threadID != "" {
				// Transient: forwarded to subscribers, state untouched.
				_ = p.hub.Apply(ctx, threadID, ev)
			}
			_ = deliver(ev)
		}

		res.threadID = threadID
		res.err = err
		span.SetAttributes(tracer.AttrThreadID.String(threadID), tracer.AttrEventCount.Int(delivered))
		tracer.End(span, err, codeOf(err))
		if err != nil {
			p.logger.WarnContext(ctx, "stream aborted",
				"type", req.RequestType(), "thread_id", threadID, "delivered", delivered, "error", err)
		}
	}()
	return res
}

// reduce commits ev to the thread's state. A creation stream learns its
// thread id from thread.created; transient events before it pass through.
func (p *Processor) reduce(ctx context.Context, threadID *string, ev domain.ThreadStreamEvent) error {
	if ev == nil {
		return domain.NewDomainError("Processor.Stream", domain.ErrInvalidInput, "nil event")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if *threadID == "" {
		switch e := ev.(type) {
		case domain.ThreadCreatedEvent:
			*threadID = e.Thread.ID
		default:
			if domain.IsTransient(ev) {
				return nil
			}
			return domain.NewDomainError("Processor.Stream", domain.ErrStreamNotStarted, string(ev.EventType()))
		}
	}
	return p.hub.Apply(ctx, *threadID, ev)
}

// Snapshot returns the reduced state of a thread the processor has seen.
func (p *Processor) Snapshot(ctx context.Context, threadID string) (domain.Thread, error) {
	return p.hub.Snapshot(ctx, threadID)
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return string(domain.ErrorCodeOf(err))
}
