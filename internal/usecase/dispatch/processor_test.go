package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
	"chatkit/internal/infra/metrics"
	"chatkit/internal/usecase/classifier"
	"chatkit/internal/usecase/pagination"
	"chatkit/internal/usecase/reducer"
	"chatkit/internal/usecase/registry"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	threads  map[string]domain.Thread
	respond  func(domain.Request) (any, error)
	stream   func(ctx context.Context, emit Emit) error
	calls    int
	streamed int
}

func (f *fakeBackend) LoadThread(_ context.Context, id string) (domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[id]
	if !ok {
		return domain.Thread{}, domain.NewDomainError("fake.LoadThread", domain.ErrThreadNotFound, id)
	}
	return t, nil
}

func (f *fakeBackend) Respond(_ context.Context, req domain.Request) (any, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.respond == nil {
		return nil, domain.ErrRequestUnsupported
	}
	return f.respond(req)
}

func (f *fakeBackend) Stream(ctx context.Context, _ domain.Request, emit Emit) error {
	f.mu.Lock()
	f.streamed++
	f.mu.Unlock()
	return f.stream(ctx, emit)
}

func emitAll(events ...domain.ThreadStreamEvent) func(context.Context, Emit) error {
	return func(_ context.Context, emit Emit) error {
		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
		}
		return nil
	}
}

func thread(id string, status domain.ThreadStatus) domain.Thread {
	return domain.Thread{ThreadMetadata: domain.ThreadMetadata{ID: id, CreatedAt: t0, Status: status}}
}

func msg(threadID, id string, texts ...string) domain.AssistantMessageItem {
	m := domain.AssistantMessageItem{ItemBase: domain.ItemBase{ID: id, ThreadID: threadID, CreatedAt: t0}}
	for _, s := range texts {
		m.Content = append(m.Content, domain.AssistantMessageContent{Text: s})
	}
	return m
}

type processorOpts struct {
	cfg     config.DispatchConfig
	pages   *pagination.Paginator
	actions *registry.ActionSchemas
	metrics *metrics.Metrics
	signals reducer.SignalSink
}

func newProcessor(t *testing.T, b Backend, o processorOpts) *Processor {
	t.Helper()
	return New(Deps{
		Backend:   b,
		Registry:  registry.New(o.actions, o.metrics, nil),
		Hub:       reducer.NewHub(reducer.Options{Signals: o.signals, Metrics: o.metrics}, 0),
		Config:    o.cfg,
		Buffer:    4,
		Paginator: o.pages,
		Metrics:   o.metrics,
	})
}

func addMessage(threadID string) domain.Request {
	return domain.ThreadsAddUserMessageReq{Params: domain.ThreadAddUserMessageParams{ThreadID: threadID}}
}

func TestNonStreaming(t *testing.T) {
	m := metrics.New(config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
	b := &fakeBackend{respond: func(req domain.Request) (any, error) {
		id, _ := req.ThreadID()
		return thread(id, nil), nil
	}}
	p := newProcessor(t, b, processorOpts{metrics: m})

	res, err := p.Process(context.Background(), []byte(`{"type":"threads.get_by_id","params":{"thread_id":"thr_1"}}`))
	require.NoError(t, err)
	assert.Equal(t, classifier.NonStreaming, res.Mode)
	assert.Equal(t, "thr_1", res.Value.(domain.Thread).ID)
	assert.Nil(t, res.Events)
	assert.True(t, strings.HasPrefix(res.ID, "req_"), res.ID)
	assert.NoError(t, res.Wait())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("threads.get_by_id", "non_streaming")))
}

func TestProcessRejectsInvalidPayload(t *testing.T) {
	p := newProcessor(t, &fakeBackend{}, processorOpts{})
	_, err := p.Process(context.Background(), []byte(`{"type":"threads.explode","params":{}}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcessRejectsActionPayload(t *testing.T) {
	actions, err := registry.NewActionSchemas(config.ActionsConfig{Schemas: map[string]string{
		"submit": `{"type":"object","required":["email"]}`,
	}})
	require.NoError(t, err)
	b := &fakeBackend{threads: map[string]domain.Thread{"thr_1": thread("thr_1", nil)}}
	p := newProcessor(t, b, processorOpts{actions: actions})

	_, err = p.Process(context.Background(), []byte(
		`{"type":"threads.custom_action","params":{"thread_id":"thr_1","item_id":null,"action":{"type":"submit","payload":{}}}}`))
	assert.ErrorIs(t, err, domain.ErrActionSchema)
	assert.Zero(t, b.streamed)
}

func TestStreamingCreate(t *testing.T) {
	b := &fakeBackend{stream: emitAll(
		domain.ProgressUpdateEvent{Text: "starting"},
		domain.ThreadCreatedEvent{Thread: thread("thr_new", nil)},
		domain.ThreadItemAddedEvent{Item: msg("thr_new", "m1")},
		domain.ThreadItemUpdatedEvent{ItemID: "m1", Update: domain.ContentPartAdded{Content: domain.AssistantMessageContent{Text: "Hel"}}},
		domain.ThreadItemUpdatedEvent{ItemID: "m1", Update: domain.ContentPartTextDelta{Delta: "lo"}},
		domain.ThreadItemDoneEvent{Item: msg("thr_new", "m1", "Hello")},
	)}
	p := newProcessor(t, b, processorOpts{})

	res, err := p.Handle(context.Background(), domain.ThreadsCreateReq{})
	require.NoError(t, err)
	assert.Equal(t, classifier.Streaming, res.Mode)

	events, err := res.Collect()
	require.NoError(t, err)
	require.Len(t, events, 6)
	assert.Equal(t, domain.EventProgressUpdate, events[0].EventType())
	assert.Equal(t, domain.EventThreadItemDone, events[5].EventType())
	assert.Equal(t, "thr_new", res.ThreadID())

	th, err := p.Snapshot(context.Background(), "thr_new")
	require.NoError(t, err)
	require.Len(t, th.Items.Data, 1)
	assert.Equal(t, "Hello", th.Items.Data[0].(domain.AssistantMessageItem).Content[0].Text)
}

func TestStreamingCreateWithoutThreadCreated(t *testing.T) {
	b := &fakeBackend{stream: emitAll(domain.ThreadItemAddedEvent{Item: msg("thr_x", "m1")})}
	p := newProcessor(t, b, processorOpts{})

	res, err := p.Handle(context.Background(), domain.ThreadsCreateReq{})
	require.NoError(t, err)
	events, err := res.Collect()
	require.ErrorIs(t, err, domain.ErrStreamNotStarted)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventError, events[0].EventType())
}

func TestGuardRefusesLockedAndClosed(t *testing.T) {
	reason := "review"
	b := &fakeBackend{threads: map[string]domain.Thread{
		"locked": thread("locked", domain.LockedStatus{Reason: &reason}),
		"closed": thread("closed", domain.ClosedStatus{}),
	}}
	p := newProcessor(t, b, processorOpts{})
	ctx := context.Background()

	_, err := p.Handle(ctx, addMessage("locked"))
	var le *domain.LockedError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "review", le.Reason)
	assert.True(t, classifier.ErrorEvent(err).AllowRetry)

	_, err = p.Handle(ctx, addMessage("closed"))
	require.ErrorIs(t, err, domain.ErrThreadClosed)
	assert.False(t, classifier.ErrorEvent(err).AllowRetry)

	_, err = p.Handle(ctx, addMessage("missing"))
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
	assert.Zero(t, b.streamed)
}

func TestStreamingIntoExistingThread(t *testing.T) {
	stored := thread("thr_1", nil)
	stored.Items.Data = []domain.ThreadItem{msg("thr_1", "old", "hi")}
	b := &fakeBackend{
		threads: map[string]domain.Thread{"thr_1": stored},
		stream: emitAll(
			domain.ThreadItemRemovedEvent{ItemID: "old"},
			domain.ThreadItemDoneEvent{Item: msg("thr_1", "new", "fresh")},
		),
	}
	p := newProcessor(t, b, processorOpts{})

	res, err := p.Handle(context.Background(),
		domain.ThreadsRetryAfterItemReq{Params: domain.ThreadRetryAfterItemParams{ThreadID: "thr_1", ItemID: "old"}})
	require.NoError(t, err)
	_, err = res.Collect()
	require.NoError(t, err)

	th, err := p.Snapshot(context.Background(), "thr_1")
	require.NoError(t, err)
	require.Len(t, th.Items.Data, 1)
	assert.Equal(t, "new", th.Items.Data[0].Base().ID)
}

type sink struct {
	mu      sync.Mutex
	signals []domain.Signal
}

func (s *sink) Publish(_ context.Context, sig domain.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func TestReductionErrorAbortsStream(t *testing.T) {
	var emitErr error
	signals := &sink{}
	b := &fakeBackend{
		threads: map[string]domain.Thread{"thr_1": thread("thr_1", nil)},
		stream: func(_ context.Context, emit Emit) error {
			_ = emit(domain.ThreadItemAddedEvent{Item: msg("thr_1", "m1")})
			emitErr = emit(domain.ThreadItemUpdatedEvent{ItemID: "ghost", Update: domain.ContentPartTextDelta{Delta: "x"}})
			// A misbehaving backend keeps going; the stream has already stopped.
			_ = emit(domain.ThreadItemAddedEvent{Item: msg("thr_1", "m2")})
			return nil
		},
	}
	p := newProcessor(t, b, processorOpts{signals: signals})

	res, err := p.Handle(context.Background(), addMessage("thr_1"))
	require.NoError(t, err)
	events, err := res.Collect()
	require.ErrorIs(t, err, domain.ErrUnknownItem)
	require.ErrorIs(t, emitErr, domain.ErrUnknownItem)

	require.Len(t, events, 2)
	errEv, ok := events[1].(domain.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, domain.StreamErrorStream, errEv.Code)
	assert.True(t, errEv.AllowRetry)

	th, err := p.Snapshot(context.Background(), "thr_1")
	require.NoError(t, err)
	assert.Len(t, th.Items.Data, 1, "state stops at the last committed event")

	require.Len(t, signals.signals, 1)
	assert.Equal(t, domain.EventError, signals.signals[0].Type())
}

func TestStreamCancellation(t *testing.T) {
	b := &fakeBackend{stream: func(ctx context.Context, emit Emit) error {
		if err := emit(domain.ThreadCreatedEvent{Thread: thread("thr_c", nil)}); err != nil {
			return err
		}
		for {
			item := msg("thr_c", domain.NewID("msg"))
			if err := emit(domain.ThreadItemDoneEvent{Item: item}); err != nil {
				return err
			}
		}
	}}
	p := newProcessor(t, b, processorOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	res, err := p.Handle(ctx, domain.ThreadsCreateReq{})
	require.NoError(t, err)

	<-res.Events
	<-res.Events
	cancel()
	for range res.Events {
	}
	err = res.Wait()
	require.ErrorIs(t, err, context.Canceled)

	th, err := p.Snapshot(context.Background(), "thr_c")
	require.NoError(t, err)
	for _, item := range th.Items.Data {
		assert.Equal(t, domain.ItemAssistantMessage, item.ItemType())
	}
}

func TestBreakerOpensOnBackendFailures(t *testing.T) {
	boom := errors.New("boom")
	b := &fakeBackend{respond: func(domain.Request) (any, error) { return nil, boom }}
	p := newProcessor(t, b, processorOpts{cfg: config.DispatchConfig{
		Breaker: config.BreakerConfig{Enabled: true, MaxFailures: 2, OpenTimeout: time.Minute},
	}})
	ctx := context.Background()
	req := domain.ThreadsListReq{}

	for range 2 {
		_, err := p.Handle(ctx, req)
		require.ErrorIs(t, err, boom)
	}
	_, err := p.Handle(ctx, req)
	require.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, 2, b.calls, "open breaker does not reach the backend")
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	b := &fakeBackend{respond: func(domain.Request) (any, error) {
		return nil, domain.NewDomainError("fake", domain.ErrInvalidInput, "bad")
	}}
	p := newProcessor(t, b, processorOpts{cfg: config.DispatchConfig{
		Breaker: config.BreakerConfig{Enabled: true, MaxFailures: 1, OpenTimeout: time.Minute},
	}})

	for range 3 {
		_, err := p.Handle(context.Background(), domain.ThreadsListReq{})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Equal(t, 3, b.calls)
}

func TestRateLimit(t *testing.T) {
	b := &fakeBackend{respond: func(domain.Request) (any, error) { return "ok", nil }}
	p := newProcessor(t, b, processorOpts{cfg: config.DispatchConfig{RatePerSecond: 0.01, Burst: 1}})

	_, err := p.Handle(context.Background(), domain.ThreadsListReq{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Handle(ctx, domain.ThreadsListReq{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
	assert.Equal(t, 1, b.calls)
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{errors.New("io"), true},
		{context.Canceled, false},
		{&domain.LockedError{ThreadID: "t"}, false},
		{domain.ErrThreadClosed, false},
		{domain.ErrThreadNotFound, false},
		{domain.ErrUnknownItem, false},
		{domain.ErrRequestUnsupported, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countsAsFailure(tt.err), "%v", tt.err)
	}
}

func TestListRequestsReachBackendResolved(t *testing.T) {
	var got []domain.Request
	b := &fakeBackend{respond: func(req domain.Request) (any, error) {
		got = append(got, req)
		return domain.Page[domain.ThreadMetadata]{}, nil
	}}
	p := newProcessor(t, b, processorOpts{pages: pagination.New(config.PaginationConfig{DefaultLimit: 5, MaxLimit: 10})})
	ctx := context.Background()

	_, err := p.Handle(ctx, domain.ThreadsListReq{})
	require.NoError(t, err)
	_, err = p.Handle(ctx, domain.ItemsListReq{Params: domain.ItemsListParams{
		ThreadID: "thr_1", Limit: domain.Ptr(50), Order: "ASC",
	}})
	require.NoError(t, err)

	require.Len(t, got, 2)
	threads := got[0].(domain.ThreadsListReq).Params
	require.NotNil(t, threads.Limit)
	assert.Equal(t, 5, *threads.Limit)
	assert.Equal(t, domain.OrderDesc, threads.Order)

	items := got[1].(domain.ItemsListReq).Params
	require.NotNil(t, items.Limit)
	assert.Equal(t, 10, *items.Limit, "capped at the maximum")
	assert.Equal(t, domain.OrderAsc, items.Order)
	assert.Equal(t, "thr_1", items.ThreadID)
}

func TestListRequestsRejectedBeforeBackend(t *testing.T) {
	b := &fakeBackend{respond: func(domain.Request) (any, error) { return "ok", nil }}
	p := newProcessor(t, b, processorOpts{})
	ctx := context.Background()
	descCursor := pagination.EncodeCursor(pagination.Key{CreatedAt: t0, ID: "thr_1"}, domain.OrderDesc)

	tests := []struct {
		name string
		req  domain.Request
		want error
	}{
		{"zero limit", domain.ThreadsListReq{Params: domain.ThreadListParams{Limit: domain.Ptr(0)}}, domain.ErrInvalidInput},
		{"unknown order", domain.ItemsListReq{Params: domain.ItemsListParams{ThreadID: "thr_1", Order: "sideways"}}, domain.ErrInvalidInput},
		{"garbage cursor", domain.ThreadsListReq{Params: domain.ThreadListParams{After: domain.Ptr("%%%")}}, domain.ErrInvalidCursor},
		{"cursor for other order", domain.ItemsListReq{Params: domain.ItemsListParams{
			ThreadID: "thr_1", Order: domain.OrderAsc, After: &descCursor,
		}}, domain.ErrInvalidCursor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Handle(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, b.calls)

	_, err := p.Handle(ctx, domain.ThreadsListReq{Params: domain.ThreadListParams{After: &descCursor}})
	require.NoError(t, err)
	assert.Equal(t, 1, b.calls)
}
