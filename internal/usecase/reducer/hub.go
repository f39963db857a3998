package reducer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"chatkit/internal/domain"
	"chatkit/internal/infra/tracer"
)

// Hub keeps one State per thread. Writers to the same thread are
// serialized; different threads are reduced independently.
type Hub struct {
	mu          sync.Mutex
	states      map[string]*State
	locker      *ThreadLocker
	opts        Options
	concurrency int
}

// NewHub creates a Hub. concurrency caps ReplayAll parallelism; zero or
// less means unlimited.
func NewHub(opts Options, concurrency int) *Hub {
	return &Hub{
		states:      make(map[string]*State),
		locker:      NewThreadLocker(),
		opts:        opts.withDefaults(),
		concurrency: concurrency,
	}
}

// Load seeds the hub with a stored thread unless it already tracks it.
func (h *Hub) Load(t domain.Thread) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.states[t.ID]; !ok {
		h.states[t.ID] = FromThread(t, h.opts)
	}
}

func (h *Hub) state(threadID string) *State {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[threadID]
	if !ok {
		s = NewState(threadID, h.opts)
		h.states[threadID] = s
	}
	return s
}

// Apply commits ev to the thread's state under the thread's lock.
func (h *Hub) Apply(ctx context.Context, threadID string, ev domain.ThreadStreamEvent) error {
	unlock, err := h.locker.Lock(ctx, threadID)
	if err != nil {
		return err
	}
	defer unlock()
	return h.state(threadID).Apply(domain.ContextWithThreadID(ctx, threadID), ev)
}

// Snapshot returns the materialized thread.
func (h *Hub) Snapshot(ctx context.Context, threadID string) (domain.Thread, error) {
	h.mu.Lock()
	_, ok := h.states[threadID]
	h.mu.Unlock()
	if !ok {
		return domain.Thread{}, domain.NewDomainError("Hub.Snapshot", domain.ErrThreadNotFound, threadID)
	}
	unlock, err := h.locker.Lock(ctx, threadID)
	if err != nil {
		return domain.Thread{}, err
	}
	defer unlock()
	return h.state(threadID).Thread(), nil
}

// Forget drops the thread's state.
func (h *Hub) Forget(threadID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.states, threadID)
}

// Threads returns the ids of tracked threads, sorted.
func (h *Hub) Threads() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.states))
	for id := range h.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReplayAll reduces one event log per thread, in parallel across threads
// and in order within each. The first failure cancels the remaining work.
func (h *Hub) ReplayAll(ctx context.Context, logs map[string][]domain.ThreadStreamEvent) (map[string]domain.Thread, error) {
	ctx, span := tracer.StartSpan(ctx, "reducer.replay_all", tracer.AttrEventCount.Int(len(logs)))

	g, gctx := errgroup.WithContext(ctx)
	if h.concurrency > 0 {
		g.SetLimit(h.concurrency)
	}

	var mu sync.Mutex
	out := make(map[string]domain.Thread, len(logs))
	for threadID, events := range logs {
		g.Go(func() error {
			tctx := domain.ContextWithThreadID(gctx, threadID)
			unlock, err := h.locker.Lock(tctx, threadID)
			if err != nil {
				return err
			}
			defer unlock()

			s := h.state(threadID)
			if err := s.ApplyAll(tctx, events); err != nil {
				return fmt.Errorf("thread %s: %w", threadID, err)
			}
			h.opts.Metrics.Replayed(len(events))

			mu.Lock()
			out[threadID] = s.Thread()
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	tracer.End(span, err, codeOf(err))
	if err != nil {
		return nil, err
	}
	return out, nil
}
