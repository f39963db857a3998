package reducer

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
	"chatkit/internal/infra/metrics"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func base(id string) domain.ItemBase {
	return domain.ItemBase{ID: id, ThreadID: "thr_1", CreatedAt: t0}
}

func assistant(id string, texts ...string) domain.AssistantMessageItem {
	msg := domain.AssistantMessageItem{ItemBase: base(id)}
	for _, s := range texts {
		msg.Content = append(msg.Content, domain.AssistantMessageContent{Text: s})
	}
	return msg
}

func created() domain.ThreadCreatedEvent {
	return domain.ThreadCreatedEvent{Thread: domain.Thread{
		ThreadMetadata: domain.ThreadMetadata{ID: "thr_1", CreatedAt: t0},
	}}
}

func added(item domain.ThreadItem) domain.ThreadItemAddedEvent {
	return domain.ThreadItemAddedEvent{Item: item}
}

func updated(id string, u domain.ThreadItemUpdate) domain.ThreadItemUpdatedEvent {
	return domain.ThreadItemUpdatedEvent{ItemID: id, Update: u}
}

func done(item domain.ThreadItem) domain.ThreadItemDoneEvent {
	return domain.ThreadItemDoneEvent{Item: item}
}

func apply(t *testing.T, s *State, events ...domain.ThreadStreamEvent) {
	t.Helper()
	for i, ev := range events {
		require.NoError(t, s.Apply(context.Background(), ev), "event %d (%s)", i, ev.EventType())
	}
}

func TestStreamingTextAssembly(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s,
		created(),
		added(assistant("1")),
		updated("1", domain.ContentPartAdded{ContentIndex: 0, Content: domain.AssistantMessageContent{Text: "Hel"}}),
		updated("1", domain.ContentPartTextDelta{ContentIndex: 0, Delta: "lo"}),
	)

	item, ok := s.Item("1")
	require.True(t, ok)
	assert.Equal(t, "Hello", item.(domain.AssistantMessageItem).Content[0].Text)
	assert.False(t, s.IsDone("1"))

	apply(t, s, done(assistant("1", "Hello")))
	assert.True(t, s.IsDone("1"))
	assert.Equal(t, "thr_1", s.ThreadID())
	assert.Equal(t, 5, s.Applied())

	th := s.Thread()
	require.Len(t, th.Items.Data, 1)
	assert.Equal(t, "Hello", th.Items.Data[0].(domain.AssistantMessageItem).Content[0].Text)
}

func TestUpdateUnknownItemLeavesStateUnchanged(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1", "a")))
	before := s.Thread()

	err := s.Apply(context.Background(), updated("2", domain.ContentPartTextDelta{ContentIndex: 0, Delta: "x"}))
	require.ErrorIs(t, err, domain.ErrUnknownItem)
	assert.Equal(t, domain.CodeUnknownItem, domain.ErrorCodeOf(err))
	assert.Equal(t, before, s.Thread())
	assert.Equal(t, 2, s.Applied())
}

func TestFailedUpdateIsAtomic(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1", "keep")))

	err := s.Apply(context.Background(), updated("1", domain.ContentPartAnnotationAdded{
		ContentIndex: 0, AnnotationIndex: 3,
	}))
	require.ErrorIs(t, err, domain.ErrOutOfOrderIndex)

	item, _ := s.Item("1")
	assert.Empty(t, item.(domain.AssistantMessageItem).Content[0].Annotations)
	assert.Equal(t, "keep", item.(domain.AssistantMessageItem).Content[0].Text)
}

func TestContentIndices(t *testing.T) {
	tests := []struct {
		name    string
		update  domain.ThreadItemUpdate
		wantErr error
	}{
		{"append at count", domain.ContentPartAdded{ContentIndex: 1}, nil},
		{"skip ahead", domain.ContentPartAdded{ContentIndex: 2}, domain.ErrOutOfOrderIndex},
		{"overwrite", domain.ContentPartAdded{ContentIndex: 0}, domain.ErrOutOfOrderIndex},
		{"delta missing part", domain.ContentPartTextDelta{ContentIndex: 4, Delta: "x"}, domain.ErrUnknownContentIndex},
		{"negative delta", domain.ContentPartTextDelta{ContentIndex: -1}, domain.ErrUnknownContentIndex},
		{"annotation at count", domain.ContentPartAnnotationAdded{ContentIndex: 0, AnnotationIndex: 0}, nil},
		{"done missing part", domain.ContentPartDone{ContentIndex: 1}, domain.ErrUnknownContentIndex},
		{"widget update on message", domain.WidgetRootUpdated{}, domain.ErrIncompatibleUpdate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState("", Options{})
			apply(t, s, created(), added(assistant("1", "a")))
			err := s.Apply(context.Background(), updated("1", tt.update))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestContentPartDoneClosesPart(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")),
		updated("1", domain.ContentPartAdded{ContentIndex: 0, Content: domain.AssistantMessageContent{Text: "dra"}}),
		updated("1", domain.ContentPartDone{ContentIndex: 0, Content: domain.AssistantMessageContent{Text: "draft"}}),
	)
	item, _ := s.Item("1")
	assert.Equal(t, "draft", item.(domain.AssistantMessageItem).Content[0].Text)

	err := s.Apply(context.Background(), updated("1", domain.ContentPartTextDelta{ContentIndex: 0, Delta: "!"}))
	assert.ErrorIs(t, err, domain.ErrUnknownContentIndex)

	// Later parts are still open.
	apply(t, s, updated("1", domain.ContentPartAdded{ContentIndex: 1}))
}

func TestDuplicateAdd(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")))
	err := s.Apply(context.Background(), added(assistant("1")))
	assert.ErrorIs(t, err, domain.ErrDuplicateItem)
}

func TestDoneIsIdempotent(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")), done(assistant("1", "x")), done(assistant("1", "x")))
	assert.Len(t, s.Items(), 1)
	assert.True(t, s.IsDone("1"))
}

func TestDoneWithoutAddAppends(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), done(assistant("1", "x")))
	assert.True(t, s.IsDone("1"))
	assert.Len(t, s.Items(), 1)
}

func TestDoneChangingTypeFails(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")))
	err := s.Apply(context.Background(), done(domain.EndOfTurnItem{ItemBase: base("1")}))
	assert.ErrorIs(t, err, domain.ErrIncompatibleUpdate)
}

func TestRemoveAndReplace(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")), added(assistant("2")),
		domain.ThreadItemRemovedEvent{ItemID: "1"})

	assert.Len(t, s.Items(), 1)
	_, ok := s.Item("1")
	assert.False(t, ok)

	ctx := context.Background()
	assert.ErrorIs(t, s.Apply(ctx, domain.ThreadItemRemovedEvent{ItemID: "1"}), domain.ErrUnknownItem)
	assert.ErrorIs(t, s.Apply(ctx, added(assistant("1"))), domain.ErrDuplicateItem)
	assert.ErrorIs(t, s.Apply(ctx, done(assistant("1"))), domain.ErrUnknownItem)

	apply(t, s, domain.ThreadItemReplacedEvent{Item: assistant("1", "back")})
	items := s.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "2", items[0].Base().ID)
	assert.Equal(t, "1", items[1].Base().ID)
	assert.False(t, s.IsDone("1"), "replaced items stream again")
}

func TestReplaceKeepsPosition(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(assistant("1")), added(assistant("2")),
		domain.ThreadItemReplacedEvent{Item: assistant("1", "new")})
	items := s.Items()
	assert.Equal(t, "1", items[0].Base().ID)
	assert.Equal(t, "new", items[0].(domain.AssistantMessageItem).Content[0].Text)
}

func TestLateUpdates(t *testing.T) {
	delta := domain.ContentPartTextDelta{ContentIndex: 0, Delta: "late"}

	t.Run("rejected by default", func(t *testing.T) {
		s := NewState("", Options{})
		apply(t, s, created(), added(assistant("1", "a")), done(assistant("1", "a")))
		assert.ErrorIs(t, s.Apply(context.Background(), updated("1", delta)), domain.ErrItemAlreadyDone)
	})

	t.Run("ignored when configured", func(t *testing.T) {
		s := NewState("", Options{IgnoreLateUpdates: true})
		apply(t, s, created(), added(assistant("1", "a")), done(assistant("1", "a")),
			added(assistant("2", "b")), domain.ThreadItemRemovedEvent{ItemID: "2"},
			updated("1", delta), updated("2", delta))
		item, _ := s.Item("1")
		assert.Equal(t, "a", item.(domain.AssistantMessageItem).Content[0].Text)
	})

	t.Run("unknown still fails when ignoring", func(t *testing.T) {
		s := NewState("", Options{IgnoreLateUpdates: true})
		apply(t, s, created())
		assert.ErrorIs(t, s.Apply(context.Background(), updated("nope", delta)), domain.ErrUnknownItem)
	})
}

func TestThreadMismatch(t *testing.T) {
	s := NewState("thr_1", Options{})
	other := assistant("1")
	other.ThreadID = "thr_2"
	err := s.Apply(context.Background(), added(other))
	assert.ErrorIs(t, err, domain.ErrThreadMismatch)
	assert.Empty(t, s.Items())
}

func TestThreadStatusTransitions(t *testing.T) {
	ctx := context.Background()
	withStatus := func(st domain.ThreadStatus) domain.ThreadUpdatedEvent {
		return domain.ThreadUpdatedEvent{Thread: domain.Thread{
			ThreadMetadata: domain.ThreadMetadata{ID: "thr_1", CreatedAt: t0, Status: st},
		}}
	}

	s := NewState("", Options{})
	assert.ErrorIs(t, s.Apply(ctx, withStatus(domain.ActiveStatus{})), domain.ErrStreamNotStarted)

	reason := "moderation"
	apply(t, s, created(),
		withStatus(domain.LockedStatus{Reason: &reason}),
		withStatus(domain.ClosedStatus{}),
		withStatus(domain.ClosedStatus{}),
	)
	assert.ErrorIs(t, s.Apply(ctx, withStatus(domain.ActiveStatus{})), domain.ErrInvalidTransition)
	assert.ErrorIs(t, s.Apply(ctx, withStatus(domain.ClosedStatus{Reason: &reason})), domain.ErrInvalidTransition,
		"a closed thread cannot be closed again for another reason")

	titled := withStatus(domain.ClosedStatus{})
	titled.Thread.Title = domain.Ptr("archived")
	require.NoError(t, s.Apply(ctx, titled), "metadata may change while the status stays the same")

	meta, ok := s.Metadata()
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, domain.StatusOf(meta.Status).StatusType())
}

func TestToolCallGuard(t *testing.T) {
	call := domain.ClientToolCallItem{
		ItemBase:  base("tc"),
		Status:    domain.ToolCallPending,
		CallID:    "call_1",
		Name:      "lookup",
		Arguments: domain.JSONMap{"q": json.RawMessage(`"x"`)},
	}
	completed, err := call.Complete(json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)

	s := NewState("", Options{})
	apply(t, s, created(), added(call), done(completed))

	ctx := context.Background()
	assert.ErrorIs(t, s.Apply(ctx, done(call)), domain.ErrToolCallCompleted)

	renamed := completed
	renamed.Name = "other"
	assert.ErrorIs(t, s.Apply(ctx, done(renamed)), domain.ErrIncompatibleUpdate)

	rewritten := completed
	rewritten.Output = json.RawMessage(`{"ok":false}`)
	assert.ErrorIs(t, s.Apply(ctx, done(rewritten)), domain.ErrToolCallCompleted)

	reargued := completed
	reargued.Arguments = domain.JSONMap{"q": json.RawMessage(`"y"`)}
	assert.ErrorIs(t, s.Apply(ctx, done(reargued)), domain.ErrIncompatibleUpdate)

	// The same output with different spacing is the same snapshot.
	respaced := completed
	respaced.Output = json.RawMessage(`{ "ok": true }`)
	assert.NoError(t, s.Apply(ctx, done(respaced)))

	item, _ := s.Item("tc")
	assert.JSONEq(t, `{"ok":true}`, string(item.(domain.ClientToolCallItem).Output))
}

func TestToolCallArgumentsFixedBeforeCompletion(t *testing.T) {
	call := domain.ClientToolCallItem{
		ItemBase:  base("tc"),
		Status:    domain.ToolCallPending,
		CallID:    "call_1",
		Name:      "lookup",
		Arguments: domain.JSONMap{"q": json.RawMessage(`"x"`)},
	}
	s := NewState("", Options{})
	apply(t, s, created(), added(call))

	changed := call
	changed.Arguments = domain.JSONMap{"q": json.RawMessage(`"x"`), "limit": json.RawMessage(`3`)}
	assert.ErrorIs(t, s.Apply(context.Background(), done(changed)), domain.ErrIncompatibleUpdate)
}

func TestWidgetStreaming(t *testing.T) {
	text := domain.WidgetComponent{Type: "Text", ID: domain.Ptr("body"), Streaming: domain.Ptr(true)}
	card := domain.WidgetItem{ItemBase: base("w"), Widget: domain.WidgetRoot{
		Type: "Card", Children: []domain.WidgetComponent{text},
	}}

	s := NewState("", Options{})
	apply(t, s, created(), added(card),
		updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "body", Delta: "Hi"}),
		updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "body", Delta: " there", Done: true}),
	)

	item, _ := s.Item("w")
	got, ok := item.(domain.WidgetItem).Widget.Find("body")
	require.True(t, ok)
	assert.Equal(t, "Hi there", *got.Value)
	assert.False(t, *got.Streaming)

	// The seeded item is untouched.
	assert.Nil(t, card.Widget.Children[0].Value)

	ctx := context.Background()
	err := s.Apply(ctx, updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "body", Delta: "!"}))
	assert.ErrorIs(t, err, domain.ErrComponentClosed)

	err = s.Apply(ctx, updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "missing", Delta: "!"}))
	assert.ErrorIs(t, err, domain.ErrUnknownComponent)

	// Replacing the component reopens it.
	apply(t, s,
		updated("w", domain.WidgetComponentUpdated{ComponentID: "body", Component: text}),
		updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "body", Delta: "again"}),
	)
	item, _ = s.Item("w")
	got, _ = item.(domain.WidgetItem).Widget.Find("body")
	assert.Equal(t, "again", *got.Value)
}

func TestWidgetDeltaOnStaticComponent(t *testing.T) {
	static := domain.WidgetItem{ItemBase: base("w"), Widget: domain.WidgetRoot{
		Type: "Card", Children: []domain.WidgetComponent{
			{Type: "Text", ID: domain.Ptr("txt"), Value: domain.Ptr("x"), Streaming: domain.Ptr(false)},
		},
	}}

	s := NewState("", Options{})
	apply(t, s, created(), added(static))

	err := s.Apply(context.Background(), updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "txt", Delta: "y"}))
	assert.ErrorIs(t, err, domain.ErrComponentClosed)
	item, _ := s.Item("w")
	got, _ := item.(domain.WidgetItem).Widget.Find("txt")
	assert.Equal(t, "x", *got.Value)

	// A new root that streams the component again accepts deltas.
	streaming := static.Widget.Clone()
	streaming.Children[0].Streaming = domain.Ptr(true)
	apply(t, s,
		updated("w", domain.WidgetRootUpdated{Widget: streaming}),
		updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "txt", Delta: "y"}),
	)
	item, _ = s.Item("w")
	got, _ = item.(domain.WidgetItem).Widget.Find("txt")
	assert.Equal(t, "xy", *got.Value)

	apply(t, s, updated("w", domain.WidgetRootUpdated{Widget: static.Widget}))
	err = s.Apply(context.Background(), updated("w", domain.WidgetStreamingTextValueDelta{ComponentID: "txt", Delta: "z"}))
	assert.ErrorIs(t, err, domain.ErrComponentClosed)
}

func TestWidgetRootUpdated(t *testing.T) {
	s := NewState("", Options{})
	apply(t, s, created(), added(domain.WidgetItem{ItemBase: base("w"), Widget: domain.WidgetRoot{Type: "Card"}}),
		updated("w", domain.WidgetRootUpdated{Widget: domain.WidgetRoot{Type: "ListView"}}))
	item, _ := s.Item("w")
	assert.Equal(t, "ListView", item.(domain.WidgetItem).Widget.Type)
}

func TestWorkflowTasks(t *testing.T) {
	title := func(s string) domain.Task { return domain.CustomTask{Title: domain.Ptr(s)} }
	wf := domain.WorkflowItem{ItemBase: base("wf"), Workflow: domain.Workflow{Type: domain.WorkflowReasoning}}

	s := NewState("", Options{})
	apply(t, s, created(), added(wf),
		updated("wf", domain.WorkflowTaskAdded{TaskIndex: 0, Task: title("search")}),
		updated("wf", domain.WorkflowTaskAdded{TaskIndex: 1, Task: title("read")}),
		updated("wf", domain.WorkflowTaskUpdated{TaskIndex: 0, Task: title("searched")}),
	)

	item, _ := s.Item("wf")
	tasks := item.(domain.WorkflowItem).Workflow.Tasks
	require.Len(t, tasks, 2)
	assert.Equal(t, "searched", *tasks[0].(domain.CustomTask).Title)

	ctx := context.Background()
	assert.ErrorIs(t, s.Apply(ctx, updated("wf", domain.WorkflowTaskAdded{TaskIndex: 5})), domain.ErrOutOfOrderIndex)
	assert.ErrorIs(t, s.Apply(ctx, updated("wf", domain.WorkflowTaskUpdated{TaskIndex: 2})), domain.ErrUnknownTaskIndex)
}

type recordingSink struct{ signals []domain.Signal }

func (r *recordingSink) Publish(_ context.Context, s domain.Signal) { r.signals = append(r.signals, s) }

func TestTransientEventsAreForwarded(t *testing.T) {
	sink := &recordingSink{}
	s := NewState("", Options{Signals: sink, Now: func() time.Time { return t0 }})
	apply(t, s, created(),
		domain.ProgressUpdateEvent{Text: "thinking"},
		domain.NoticeEvent{Level: domain.NoticeInfo, Message: "hi"},
	)

	require.Len(t, sink.signals, 2)
	assert.Equal(t, domain.EventProgressUpdate, sink.signals[0].Type())
	assert.Equal(t, "thr_1", sink.signals[0].ThreadID)
	assert.Equal(t, t0, sink.signals[1].Timestamp)
	assert.Empty(t, s.Items())
	assert.Equal(t, 1, s.Applied(), "transient events do not count as committed")
}

func TestFromThreadSeedsDoneItems(t *testing.T) {
	th := domain.Thread{
		ThreadMetadata: domain.ThreadMetadata{ID: "thr_1", CreatedAt: t0},
		Items:          domain.Page[domain.ThreadItem]{Data: []domain.ThreadItem{assistant("1", "a")}},
	}
	s := FromThread(th, Options{})
	assert.True(t, s.IsDone("1"))

	err := s.Apply(context.Background(), updated("1", domain.ContentPartTextDelta{ContentIndex: 0, Delta: "x"}))
	assert.ErrorIs(t, err, domain.ErrItemAlreadyDone)

	apply(t, s, added(assistant("2")))
	assert.Len(t, s.Thread().Items.Data, 2)
}

func TestMetricsRecorded(t *testing.T) {
	m := metrics.New(config.MetricsConfig{Enabled: true, Namespace: "test"}, prometheus.NewRegistry())
	s := NewState("", Options{Metrics: m})
	apply(t, s, created(), added(assistant("1")))
	_ = s.Apply(context.Background(), added(assistant("1")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsApplied.WithLabelValues("thread.item.added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReductionErrors.WithLabelValues(string(domain.CodeDuplicateItem))))
}

func TestApplyNil(t *testing.T) {
	s := NewState("", Options{})
	assert.ErrorIs(t, s.Apply(context.Background(), nil), domain.ErrInvalidInput)
}
