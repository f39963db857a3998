package reducer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/internal/domain"
)

func threadEvents(threadID string, n int) []domain.ThreadStreamEvent {
	events := []domain.ThreadStreamEvent{domain.ThreadCreatedEvent{Thread: domain.Thread{
		ThreadMetadata: domain.ThreadMetadata{ID: threadID, CreatedAt: t0},
	}}}
	for i := range n {
		item := domain.AssistantMessageItem{ItemBase: domain.ItemBase{
			ID: fmt.Sprintf("%s_msg_%d", threadID, i), ThreadID: threadID, CreatedAt: t0,
		}}
		events = append(events,
			domain.ThreadItemAddedEvent{Item: item},
			domain.ThreadItemUpdatedEvent{ItemID: item.ID, Update: domain.ContentPartAdded{
				Content: domain.AssistantMessageContent{Text: "x"},
			}},
			domain.ThreadItemDoneEvent{Item: item},
		)
	}
	return events
}

func TestHubThreadsAreIndependent(t *testing.T) {
	h := NewHub(Options{}, 0)
	ctx := context.Background()

	a, b := threadEvents("thr_a", 3), threadEvents("thr_b", 2)
	var wg sync.WaitGroup
	for _, tc := range []struct {
		id     string
		events []domain.ThreadStreamEvent
	}{{"thr_a", a}, {"thr_b", b}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, ev := range tc.events {
				if err := h.Apply(ctx, tc.id, ev); err != nil {
					t.Errorf("apply %s: %v", tc.id, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	ta, err := h.Snapshot(ctx, "thr_a")
	require.NoError(t, err)
	tb, err := h.Snapshot(ctx, "thr_b")
	require.NoError(t, err)
	assert.Len(t, ta.Items.Data, 3)
	assert.Len(t, tb.Items.Data, 2)
	assert.Equal(t, []string{"thr_a", "thr_b"}, h.Threads())
}

func TestHubFailureDoesNotAffectOtherThreads(t *testing.T) {
	h := NewHub(Options{}, 0)
	ctx := context.Background()
	for _, ev := range threadEvents("thr_a", 1) {
		require.NoError(t, h.Apply(ctx, "thr_a", ev))
	}

	err := h.Apply(ctx, "thr_b", domain.ThreadItemRemovedEvent{ItemID: "nope"})
	require.ErrorIs(t, err, domain.ErrUnknownItem)

	ta, err := h.Snapshot(ctx, "thr_a")
	require.NoError(t, err)
	assert.Len(t, ta.Items.Data, 1)
}

func TestHubSameThreadSerialized(t *testing.T) {
	h := NewHub(Options{}, 0)
	ctx := context.Background()
	require.NoError(t, h.Apply(ctx, "thr_1", created()))
	require.NoError(t, h.Apply(ctx, "thr_1", added(assistant("1", ""))))

	const writers = 20
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.Apply(ctx, "thr_1", updated("1", domain.ContentPartTextDelta{Delta: "."})); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	th, err := h.Snapshot(ctx, "thr_1")
	require.NoError(t, err)
	assert.Len(t, th.Items.Data[0].(domain.AssistantMessageItem).Content[0].Text, writers)
}

func TestHubLoadAndForget(t *testing.T) {
	h := NewHub(Options{}, 0)
	ctx := context.Background()
	h.Load(domain.Thread{
		ThreadMetadata: domain.ThreadMetadata{ID: "thr_1", CreatedAt: t0},
		Items:          domain.Page[domain.ThreadItem]{Data: []domain.ThreadItem{assistant("1", "a")}},
	})

	err := h.Apply(ctx, "thr_1", updated("1", domain.ContentPartTextDelta{Delta: "x"}))
	assert.ErrorIs(t, err, domain.ErrItemAlreadyDone)

	h.Forget("thr_1")
	_, err = h.Snapshot(ctx, "thr_1")
	assert.ErrorIs(t, err, domain.ErrThreadNotFound)
}

func TestHubReplayAll(t *testing.T) {
	h := NewHub(Options{}, 2)
	logs := map[string][]domain.ThreadStreamEvent{}
	for i := range 5 {
		id := fmt.Sprintf("thr_%d", i)
		logs[id] = threadEvents(id, i+1)
	}

	out, err := h.ReplayAll(context.Background(), logs)
	require.NoError(t, err)
	require.Len(t, out, 5)
	for i := range 5 {
		assert.Len(t, out[fmt.Sprintf("thr_%d", i)].Items.Data, i+1)
	}
}

func TestHubReplayAllReportsFailure(t *testing.T) {
	h := NewHub(Options{}, 0)
	bad := append(threadEvents("thr_bad", 1), domain.ThreadItemRemovedEvent{ItemID: "ghost"})
	_, err := h.ReplayAll(context.Background(), map[string][]domain.ThreadStreamEvent{
		"thr_ok":  threadEvents("thr_ok", 1),
		"thr_bad": bad,
	})
	require.ErrorIs(t, err, domain.ErrUnknownItem)
	assert.Contains(t, err.Error(), "thr_bad")
	assert.Contains(t, err.Error(), "event 4")
}

func TestReplay(t *testing.T) {
	s, err := Replay(context.Background(), threadEvents("thr_r", 2), Options{})
	require.NoError(t, err)
	assert.Equal(t, "thr_r", s.ThreadID())
	assert.Equal(t, 7, s.Applied())
}

func TestReplayStopsAtFirstError(t *testing.T) {
	events := append(threadEvents("thr_r", 1), domain.ThreadItemAddedEvent{Item: domain.AssistantMessageItem{
		ItemBase: domain.ItemBase{ID: "thr_r_msg_0", ThreadID: "thr_r"},
	}})
	s, err := Replay(context.Background(), events, Options{})
	require.ErrorIs(t, err, domain.ErrDuplicateItem)
	assert.Equal(t, 4, s.Applied())
	assert.Len(t, s.Items(), 1)
}

func TestReplayCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := Replay(ctx, threadEvents("thr_r", 1), Options{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Applied())
}
