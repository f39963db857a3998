// Package eventbus fans transient stream signals out to subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"chatkit/internal/domain"
	"chatkit/internal/infra/metrics"
)

type delivery struct {
	ctx    context.Context
	signal domain.Signal
}

// subscription delivers signals to its handler one at a time, in publish
// order. A drain goroutine runs only while the queue is non-empty.
type subscription struct {
	id      uint64
	handler domain.SignalHandler

	mu      sync.Mutex
	queue   []delivery
	running bool
}

// Bus is an in-process, goroutine-safe signal bus. It also serves as the
// reducer's signal sink.
type Bus struct {
	mu       sync.RWMutex
	byType   map[domain.EventType][]*subscription
	byThread map[string][]*subscription
	allSubs  []*subscription
	closed   bool
	nextID   atomic.Uint64
	logger   *slog.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

var _ domain.SignalBus = (*Bus)(nil)

// New creates a signal bus. m may be nil.
func New(logger *slog.Logger, m *metrics.Metrics) *Bus {
	return &Bus{
		byType:   make(map[domain.EventType][]*subscription),
		byThread: make(map[string][]*subscription),
		logger:   logger,
		metrics:  m,
	}
}

// Publish fans a signal out to subscribers of its event type, of its
// thread, and of everything. Publish never blocks on a handler. Each
// subscriber sees signals in the order they were published; panicking
// handlers are recovered.
func (b *Bus) Publish(ctx context.Context, signal domain.Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	b.metrics.SignalPublished(string(signal.Type()))
	d := delivery{ctx: ctx, signal: signal}
	for _, sub := range b.byType[signal.Type()] {
		b.enqueue(sub, d)
	}
	if signal.ThreadID != "" {
		for _, sub := range b.byThread[signal.ThreadID] {
			b.enqueue(sub, d)
		}
	}
	for _, sub := range b.allSubs {
		b.enqueue(sub, d)
	}
}

// enqueue must be called with b.mu held so Close cannot start waiting
// while a drain goroutine is being added.
func (b *Bus) enqueue(sub *subscription, d delivery) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.queue = append(sub.queue, d)
	if sub.running {
		return
	}
	sub.running = true
	b.wg.Add(1)
	go b.drain(sub)
}

func (b *Bus) drain(sub *subscription) {
	defer b.wg.Done()
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.running = false
			sub.queue = nil
			sub.mu.Unlock()
			return
		}
		d := sub.queue[0]
		sub.queue[0] = delivery{}
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("signal handler panicked",
				"signal", string(d.signal.Type()),
				"thread_id", d.signal.ThreadID,
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.signal)
}

// Subscribe registers a handler for one event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.SignalHandler) func() {
	return subscribe(b, b.byType, eventType, handler)
}

// SubscribeThread registers a handler for every signal of one thread.
// Returns an unsubscribe function.
func (b *Bus) SubscribeThread(threadID string, handler domain.SignalHandler) func() {
	return subscribe(b, b.byThread, threadID, handler)
}

// SubscribeAll registers a handler that receives every signal.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.SignalHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	b.allSubs = append(b.allSubs, &subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.allSubs = without(b.allSubs, id)
	}
}

func subscribe[K comparable](b *Bus, table map[K][]*subscription, key K, handler domain.SignalHandler) func() {
	id := b.nextID.Add(1)

	b.mu.Lock()
	table[key] = append(table[key], &subscription{id: id, handler: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if rest := without(table[key], id); len(rest) > 0 {
			table[key] = rest
		} else {
			delete(table, key)
		}
	}
}

func without(subs []*subscription, id uint64) []*subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Close prevents new publishes and waits for queued signals to be
// delivered. It is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
