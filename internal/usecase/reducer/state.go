// Package reducer folds ordered stream events into the materialized state
// of a thread. The same rules apply to live streams and to replayed logs.
package reducer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"chatkit/internal/domain"
	"chatkit/internal/infra/logger"
	"chatkit/internal/infra/metrics"
)

// SignalSink receives transient signals (progress, error, notice).
type SignalSink interface {
	Publish(ctx context.Context, signal domain.Signal)
}

// Options configure a reducer.
type Options struct {
	// IgnoreLateUpdates makes updates addressed to done or removed items
	// logged no-ops instead of errors.
	IgnoreLateUpdates bool
	Signals           SignalSink
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	// Now stamps forwarded signals. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// entry is the materialized form of one item plus its streaming bookkeeping.
type entry struct {
	item       domain.ThreadItem
	done       bool
	closedPart map[int]bool    // assistant content parts closed by content_part.done
	closedComp map[string]bool // widget components closed by a final value delta
}

func (e *entry) clone() *entry {
	out := &entry{item: e.item, done: e.done}
	if len(e.closedPart) > 0 {
		out.closedPart = make(map[int]bool, len(e.closedPart))
		for k, v := range e.closedPart {
			out.closedPart[k] = v
		}
	}
	if len(e.closedComp) > 0 {
		out.closedComp = make(map[string]bool, len(e.closedComp))
		for k, v := range e.closedComp {
			out.closedComp[k] = v
		}
	}
	return out
}

// State is the materialized state of one thread. It is not safe for
// concurrent use; Hub serializes writers per thread.
type State struct {
	threadID string
	meta     *domain.ThreadMetadata
	order    []string
	items    map[string]*entry
	removed  map[string]bool
	applied  int
	opts     Options
}

// NewState returns an empty state. threadID may be empty, in which case the
// first thread.created or item event fixes it.
func NewState(threadID string, opts Options) *State {
	return &State{
		threadID: threadID,
		items:    make(map[string]*entry),
		removed:  make(map[string]bool),
		opts:     opts.withDefaults(),
	}
}

// FromThread seeds a state with a stored thread. Seeded items are treated
// as done.
func FromThread(t domain.Thread, opts Options) *State {
	s := NewState(t.ID, opts)
	meta := t.ThreadMetadata
	s.meta = &meta
	for _, item := range t.Items.Data {
		id := item.Base().ID
		if _, dup := s.items[id]; dup {
			continue
		}
		s.order = append(s.order, id)
		s.items[id] = &entry{item: item, done: true}
	}
	return s
}

// ThreadID returns the id of the thread being reduced.
func (s *State) ThreadID() string { return s.threadID }

// Applied returns the number of events committed so far.
func (s *State) Applied() int { return s.applied }

// Metadata returns the latest thread metadata snapshot.
func (s *State) Metadata() (domain.ThreadMetadata, bool) {
	if s.meta == nil {
		return domain.ThreadMetadata{}, false
	}
	return *s.meta, true
}

// Item returns the materialized item with the given id.
func (s *State) Item(id string) (domain.ThreadItem, bool) {
	e, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return e.item, true
}

// IsDone reports whether the item has received its final snapshot.
func (s *State) IsDone(id string) bool {
	e, ok := s.items[id]
	return ok && e.done
}

// Items returns the items in insertion order.
func (s *State) Items() []domain.ThreadItem {
	out := make([]domain.ThreadItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].item)
	}
	return out
}

// Thread returns the materialized thread with every item on one page.
func (s *State) Thread() domain.Thread {
	var t domain.Thread
	if s.meta != nil {
		t.ThreadMetadata = *s.meta
	} else {
		t.ID = s.threadID
	}
	t.Items = domain.Page[domain.ThreadItem]{Data: s.Items()}
	return t
}

// Apply commits one event. On error the state is left exactly as it was
// before the call.
func (s *State) Apply(ctx context.Context, ev domain.ThreadStreamEvent) error {
	if ev == nil {
		return domain.NewDomainError("Reducer.Apply", domain.ErrInvalidInput, "nil event")
	}
	if domain.IsTransient(ev) {
		s.forward(ctx, ev)
		s.opts.Metrics.EventApplied(string(ev.EventType()))
		return nil
	}

	var err error
	switch e := ev.(type) {
	case domain.ThreadCreatedEvent:
		err = s.threadCreated(e.Thread)
	case domain.ThreadUpdatedEvent:
		err = s.threadUpdated(e.Thread)
	case domain.ThreadItemAddedEvent:
		err = s.itemAdded(e.Item)
	case domain.ThreadItemUpdatedEvent:
		err = s.itemUpdated(ctx, e.ItemID, e.Update)
	case domain.ThreadItemDoneEvent:
		err = s.itemDone(e.Item)
	case domain.ThreadItemRemovedEvent:
		err = s.itemRemoved(e.ItemID)
	case domain.ThreadItemReplacedEvent:
		err = s.itemReplaced(e.Item)
	default:
		err = domain.NewDomainError("Reducer.Apply", domain.ErrInvalidInput, fmt.Sprintf("unhandled event %T", ev))
	}
	if err != nil {
		s.opts.Metrics.ReductionFailed(string(domain.ErrorCodeOf(err)))
		s.opts.Logger.WarnContext(ctx, "event rejected",
			"thread_id", s.threadID, "event", ev.EventType(), "error", err)
		return err
	}
	s.applied++
	s.opts.Metrics.EventApplied(string(ev.EventType()))
	return nil
}

func (s *State) forward(ctx context.Context, ev domain.ThreadStreamEvent) {
	if s.opts.Signals == nil {
		return
	}
	s.opts.Signals.Publish(ctx, domain.Signal{ThreadID: s.threadID, Timestamp: s.opts.Now(), Event: ev})
}

func (s *State) adopt(threadID string) error {
	if s.threadID == "" {
		s.threadID = threadID
		return nil
	}
	if threadID != s.threadID {
		return domain.NewDomainError("Reducer.Apply", domain.ErrThreadMismatch,
			fmt.Sprintf("got %s, reducing %s", threadID, s.threadID))
	}
	return nil
}

func (s *State) threadCreated(t domain.Thread) error {
	if err := s.adopt(t.ID); err != nil {
		return err
	}
	meta := t.ThreadMetadata
	s.meta = &meta
	return nil
}

func (s *State) threadUpdated(t domain.Thread) error {
	if s.meta == nil {
		return domain.NewDomainError("Reducer.Apply", domain.ErrStreamNotStarted, "thread.updated without prior thread snapshot")
	}
	if err := s.adopt(t.ID); err != nil {
		return err
	}
	// An unchanged status is a metadata update, not a transition.
	if !domain.SameStatus(s.meta.Status, t.Status) {
		if err := domain.Transition(s.meta.Status, t.Status); err != nil {
			return domain.NewDomainError("Reducer.Apply", err, t.ID)
		}
	}
	meta := t.ThreadMetadata
	s.meta = &meta
	return nil
}

func (s *State) itemAdded(item domain.ThreadItem) error {
	b := item.Base()
	if err := s.adopt(b.ThreadID); err != nil {
		return err
	}
	if _, ok := s.items[b.ID]; ok || s.removed[b.ID] {
		return domain.NewDomainError("Reducer.Apply", domain.ErrDuplicateItem, b.ID)
	}
	s.order = append(s.order, b.ID)
	s.items[b.ID] = &entry{item: item}
	return nil
}

func (s *State) itemDone(item domain.ThreadItem) error {
	b := item.Base()
	if err := s.adopt(b.ThreadID); err != nil {
		return err
	}
	if s.removed[b.ID] {
		return domain.NewDomainError("Reducer.Apply", domain.ErrUnknownItem, b.ID+" was removed")
	}
	prev, ok := s.items[b.ID]
	if !ok {
		s.order = append(s.order, b.ID)
		s.items[b.ID] = &entry{item: item, done: true}
		return nil
	}
	if prev.item.ItemType() != item.ItemType() {
		return domain.NewDomainError("Reducer.Apply", domain.ErrIncompatibleUpdate,
			fmt.Sprintf("%s is %s, done snapshot is %s", b.ID, prev.item.ItemType(), item.ItemType()))
	}
	if err := checkToolCall(prev.item, item); err != nil {
		return err
	}
	s.items[b.ID] = &entry{item: item, done: true}
	return nil
}

func (s *State) itemRemoved(id string) error {
	if _, ok := s.items[id]; !ok {
		return domain.NewDomainError("Reducer.Apply", domain.ErrUnknownItem, id)
	}
	delete(s.items, id)
	s.removed[id] = true
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *State) itemReplaced(item domain.ThreadItem) error {
	b := item.Base()
	if err := s.adopt(b.ThreadID); err != nil {
		return err
	}
	if _, ok := s.items[b.ID]; !ok {
		s.order = append(s.order, b.ID)
	}
	delete(s.removed, b.ID)
	s.items[b.ID] = &entry{item: item}
	return nil
}

func (s *State) itemUpdated(ctx context.Context, id string, u domain.ThreadItemUpdate) error {
	prev, ok := s.items[id]
	switch {
	case !ok && s.removed[id] && s.opts.IgnoreLateUpdates:
		s.opts.Logger.DebugContext(ctx, "ignoring update for removed item", "item_id", id, "update", u.UpdateType())
		return nil
	case !ok:
		return domain.NewDomainError("Reducer.Apply", domain.ErrUnknownItem, id)
	case prev.done && s.opts.IgnoreLateUpdates:
		s.opts.Logger.DebugContext(ctx, "ignoring update for done item", "item_id", id, "update", u.UpdateType())
		return nil
	case prev.done:
		return domain.NewDomainError("Reducer.Apply", domain.ErrItemAlreadyDone, id)
	case prev.item.ItemType() != u.TargetType():
		return domain.NewDomainError("Reducer.Apply", domain.ErrIncompatibleUpdate,
			fmt.Sprintf("%s on %s item %s", u.UpdateType(), prev.item.ItemType(), id))
	}

	next := prev.clone()
	if err := applyUpdate(next, u); err != nil {
		return domain.NewDomainError("Reducer.Apply", err, id)
	}
	s.items[id] = next
	return nil
}

// checkToolCall rejects a snapshot that changes a tool call's identity or
// arguments, reverts a completed call, or rewrites its output.
func checkToolCall(prev, next domain.ThreadItem) error {
	p, ok := prev.(domain.ClientToolCallItem)
	if !ok {
		return nil
	}
	n := next.(domain.ClientToolCallItem)
	if p.CallID != n.CallID || p.Name != n.Name {
		return domain.NewDomainError("Reducer.Apply", domain.ErrIncompatibleUpdate,
			fmt.Sprintf("tool call %s changed identity", p.ID))
	}
	if !sameArguments(p.Arguments, n.Arguments) {
		return domain.NewDomainError("Reducer.Apply", domain.ErrIncompatibleUpdate,
			fmt.Sprintf("tool call %s changed arguments", p.ID))
	}
	if p.Status != domain.ToolCallCompleted {
		return nil
	}
	if n.Status != domain.ToolCallCompleted {
		return domain.NewDomainError("Reducer.Apply", domain.ErrToolCallCompleted, p.CallID)
	}
	if !sameJSON(p.Output, n.Output) {
		return domain.NewDomainError("Reducer.Apply", domain.ErrToolCallCompleted, p.CallID+": output already set")
	}
	return nil
}

func sameArguments(a, b domain.JSONMap) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !sameJSON(av, bv) {
			return false
		}
	}
	return true
}

// sameJSON compares two values by meaning; an absent value equals null.
func sameJSON(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var av, bv any
	if len(bytes.TrimSpace(a)) > 0 {
		if err := json.Unmarshal(a, &av); err != nil {
			return false
		}
	}
	if len(bytes.TrimSpace(b)) > 0 {
		if err := json.Unmarshal(b, &bv); err != nil {
			return false
		}
	}
	return reflect.DeepEqual(av, bv)
}
