// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Store) {
	t.Helper()
	store := storage.New(storage.NewMemoryKV(), zerolog.Nop())
	return NewManager(store, "New chat", zerolog.Nop()), store
}

// =============================================================================
// COLLECTION TESTS
// =============================================================================

func TestManager_NewChatIsFirstAndActive(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		conv := m.NewChat(ctx)
		snap := m.Snapshot()
		require.Equal(t, conv.ID, snap.Chats[0].ID)
		require.Equal(t, conv.ID, snap.ActiveID)
		require.Equal(t, "New chat", snap.Chats[0].Title)
		require.Len(t, snap.Chats, i+1)
	}
}

func TestManager_DeleteActiveReselectsFirst(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	a := m.NewChat(ctx)
	b := m.NewChat(ctx)
	c := m.NewChat(ctx) // order: c, b, a

	require.NoError(t, m.Select(ctx, b.ID))
	require.NoError(t, m.Delete(ctx, b.ID))
	require.Equal(t, c.ID, m.ActiveID())

	require.NoError(t, m.Delete(ctx, a.ID))
	require.Equal(t, c.ID, m.ActiveID(), "deleting a non-active chat must not move the pointer")

	require.NoError(t, m.Delete(ctx, c.ID))
	require.Empty(t, m.ActiveID())
	require.Zero(t, m.Len())

	require.ErrorIs(t, m.Delete(ctx, c.ID), ErrNotFound)
}

func TestManager_SelectUnknown(t *testing.T) {
	m, _ := newTestManager(t)
	require.ErrorIs(t, m.Select(context.Background(), "nope"), ErrNotFound)
}

func TestManager_SubmitSetsTitleOnce(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)

	long := strings.Repeat("x", 40)
	ex, err := m.Submit(ctx, conv.ID, long, model.KindText)
	require.NoError(t, err)
	require.Empty(t, ex.History)
	require.Equal(t, model.StatusPending, ex.Placeholder.Status)
	require.Equal(t, model.RoleAssistant, ex.Placeholder.Role)

	got, ok := m.Get(conv.ID)
	require.True(t, ok)
	require.Equal(t, strings.Repeat("x", 30)+"...", got.Title)
	require.Len(t, got.Messages, 2)

	ex2, err := m.Submit(ctx, conv.ID, "second", model.KindImage)
	require.NoError(t, err)
	require.Len(t, ex2.History, 2)
	require.Equal(t, model.KindImage, ex2.Placeholder.Kind)

	got, _ = m.Get(conv.ID)
	require.Equal(t, strings.Repeat("x", 30)+"...", got.Title)
}

func TestManager_SubmitValidation(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)

	_, err := m.Submit(ctx, conv.ID, "   ", model.KindText)
	require.ErrorIs(t, err, ErrEmptyPrompt)
	_, err = m.Submit(ctx, "missing", "hi", model.KindText)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestManager_UpdateMessageApplyIfExists(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)
	ex, err := m.Submit(ctx, conv.ID, "hi", model.KindText)
	require.NoError(t, err)

	ok := m.UpdateMessage(ctx, conv.ID, ex.Placeholder.ID, func(msg *model.Message) {
		msg.Content = "hello"
		msg.Status = model.StatusComplete
	})
	require.True(t, ok)

	got, _ := m.Get(conv.ID)
	require.Equal(t, "hello", got.Messages[1].Content)
	require.Equal(t, ex.Placeholder.ID, got.Messages[1].ID)

	require.NoError(t, m.Delete(ctx, conv.ID))
	ok = m.UpdateMessage(ctx, conv.ID, ex.Placeholder.ID, func(msg *model.Message) { msg.Content = "late" })
	require.False(t, ok)
	_, exists := m.Get(conv.ID)
	require.False(t, exists, "late update must not resurrect a deleted conversation")
}

func TestManager_ClearAll(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	m.NewChat(ctx)
	m.NewChat(ctx)

	m.ClearAll(ctx)
	require.Zero(t, m.Len())
	require.Empty(t, m.ActiveID())

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, state.Chats)
	require.Empty(t, state.ActiveID)
}

// =============================================================================
// PERSISTENCE AND OBSERVER TESTS
// =============================================================================

func TestManager_WriteThrough(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	a := m.NewChat(ctx)
	b := m.NewChat(ctx)
	_, err := m.Submit(ctx, a.ID, "question", model.KindText)
	require.NoError(t, err)
	require.NoError(t, m.Select(ctx, a.ID))

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Chats, 2)
	require.Equal(t, b.ID, state.Chats[0].ID)
	require.Equal(t, a.ID, state.ActiveID)
	require.Equal(t, "question", state.Chats[1].Title)

	reloaded := NewManager(store, "New chat", zerolog.Nop())
	reloaded.Load(state.Chats, state.ActiveID)
	require.Equal(t, m.Snapshot(), reloaded.Snapshot())
}

func TestManager_LoadDropsDanglingActive(t *testing.T) {
	m, _ := newTestManager(t)
	conv := model.NewConversation("x")
	m.Load([]*model.Conversation{conv}, "gone")
	require.Empty(t, m.ActiveID())
	require.Equal(t, 1, m.Len())
}

func TestManager_ObserversGetDeepCopies(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	var snaps []Snapshot
	unsubscribe := m.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	conv := m.NewChat(ctx)
	require.Len(t, snaps, 1)

	snaps[0].Chats[0].Title = "mutated by observer"
	got, _ := m.Get(conv.ID)
	require.Equal(t, "New chat", got.Title)

	unsubscribe()
	m.NewChat(ctx)
	require.Len(t, snaps, 1)
}

func TestManager_ObserverUnsubscribesFromGoroutine(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	calls := 0
	done := make(chan struct{})
	var unsubscribe func()
	unsubscribe = m.Subscribe(func(Snapshot) {
		calls++
		go func() {
			unsubscribe()
			close(done)
		}()
	})

	m.NewChat(ctx)
	<-done
	m.NewChat(ctx)
	require.Equal(t, 1, calls)
}

func TestManager_SettleMessagePersistsQuietly(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)
	ex, err := m.Submit(ctx, conv.ID, "hi", model.KindText)
	require.NoError(t, err)

	calls := 0
	m.Subscribe(func(Snapshot) { calls++ })

	ok := m.SettleMessage(ctx, conv.ID, ex.Placeholder.ID, func(msg *model.Message) {
		msg.Status = model.StatusComplete
	})
	require.True(t, ok)
	require.Zero(t, calls)

	state, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, model.StatusComplete, state.Chats[0].Messages[1].Status)

	require.NoError(t, m.Delete(ctx, conv.ID))
	require.False(t, m.SettleMessage(ctx, conv.ID, ex.Placeholder.ID, func(*model.Message) {}))
}

func TestManager_ConcurrentUpdatesPublishInOrder(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)
	ex, err := m.Submit(ctx, conv.ID, "hi", model.KindText)
	require.NoError(t, err)

	var mu sync.Mutex
	var lengths []int
	m.Subscribe(func(s Snapshot) {
		mu.Lock()
		lengths = append(lengths, len(s.Active().Messages[1].Content))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.UpdateMessage(ctx, conv.ID, ex.Placeholder.ID, func(msg *model.Message) {
				msg.Content += "x"
			})
		}()
	}
	wg.Wait()

	require.Len(t, lengths, 50)
	for i, n := range lengths {
		require.Equal(t, i+1, n, "snapshots must arrive in mutation order")
	}
}

// =============================================================================
// STREAM REGISTRY TESTS
// =============================================================================

func TestManager_DeleteCancelsBoundStreams(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)
	other := m.NewChat(ctx)

	sctx, release := m.BindStream(ctx, conv.ID)
	defer release()
	octx, orelease := m.BindStream(ctx, other.ID)
	defer orelease()
	require.Equal(t, 1, m.ActiveStreams(conv.ID))

	require.NoError(t, m.Delete(ctx, conv.ID))
	require.Error(t, sctx.Err())
	require.NoError(t, octx.Err())
	require.Zero(t, m.ActiveStreams(conv.ID))
}

func TestManager_BindStreamMissingConversation(t *testing.T) {
	m, _ := newTestManager(t)
	sctx, release := m.BindStream(context.Background(), "missing")
	defer release()
	require.Error(t, sctx.Err())
}

func TestManager_ReleaseUnregisters(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)

	sctx, release := m.BindStream(ctx, conv.ID)
	release()
	require.Zero(t, m.ActiveStreams(conv.ID))
	require.Error(t, sctx.Err())
}

func TestManager_ClearAllCancelsStreams(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	conv := m.NewChat(ctx)
	sctx, release := m.BindStream(ctx, conv.ID)
	defer release()

	m.ClearAll(ctx)
	require.Error(t, sctx.Err())
}
