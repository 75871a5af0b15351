// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reconcile

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionary/internal/chat"
	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
	"github.com/jeranaias/visionary/internal/storage"
)

// scriptedGenerator yields fixed fragments, then optionally an error.
type scriptedGenerator struct {
	fragments []string
	err       error
	// onFragment runs after fragment i has been consumed.
	onFragment func(i int)
	last       provider.TextRequest
}

func (g *scriptedGenerator) StreamChat(ctx context.Context, req provider.TextRequest) iter.Seq2[string, error] {
	g.last = req
	return func(yield func(string, error) bool) {
		for i, f := range g.fragments {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
			if g.onFragment != nil {
				g.onFragment(i)
			}
		}
		if g.err != nil {
			yield("", g.err)
		}
	}
}

type fixture struct {
	mgr   *chat.Manager
	store *storage.Store
	conv  *model.Conversation
	ex    *chat.Exchange
}

func setup(t *testing.T, prompt string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.New(storage.NewMemoryKV(), zerolog.Nop())
	mgr := chat.NewManager(store, "New chat", zerolog.Nop())
	conv := mgr.NewChat(ctx)
	ex, err := mgr.Submit(ctx, conv.ID, prompt, model.KindText)
	require.NoError(t, err)
	return &fixture{mgr: mgr, store: store, conv: conv, ex: ex}
}

func (f *fixture) request() Request {
	return Request{
		ConversationID: f.conv.ID,
		MessageID:      f.ex.Placeholder.ID,
		History:        f.ex.History,
		Prompt:         f.ex.User.Content,
		Settings:       model.DefaultSettings(),
	}
}

func (f *fixture) placeholder(t *testing.T) *model.Message {
	t.Helper()
	conv, ok := f.mgr.Get(f.conv.ID)
	require.True(t, ok)
	return conv.MessageByID(f.ex.Placeholder.ID)
}

func TestRun_FoldsFragmentsInPlace(t *testing.T) {
	f := setup(t, "greet me")

	var contents []string
	f.mgr.Subscribe(func(s chat.Snapshot) {
		contents = append(contents, s.Active().MessageByID(f.ex.Placeholder.ID).Content)
	})

	gen := &scriptedGenerator{fragments: []string{"Hel", "lo ", " world"}}
	r := New(gen, f.mgr, locale.New("en"), zerolog.Nop())
	res := r.Run(context.Background(), f.request())

	require.Equal(t, Completed, res.Outcome)
	require.Equal(t, 3, res.Fragments)
	require.Equal(t, "Hello  world", res.Content)
	// One republish per fragment and none for completion.
	require.Len(t, contents, 3)
	require.Equal(t, []string{"Hel", "Hello ", "Hello  world"}, contents)
	for i := 1; i < len(contents); i++ {
		require.Greater(t, len(contents[i]), len(contents[i-1]))
	}

	msg := f.placeholder(t)
	require.Equal(t, "Hello  world", msg.Content)
	require.Equal(t, model.StatusComplete, msg.Status)

	state, err := f.store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hello  world", state.Chats[0].Messages[1].Content)
}

func TestRun_ConcatenatesDeltas(t *testing.T) {
	f := setup(t, "x")
	gen := &scriptedGenerator{fragments: []string{"Hel", "lo", " world"}}
	res := New(gen, f.mgr, locale.New("en"), zerolog.Nop()).Run(context.Background(), f.request())
	require.Equal(t, "Hello world", res.Content)
}

func TestRun_StreamingStatusWhileInFlight(t *testing.T) {
	f := setup(t, "x")
	var statuses []model.Status
	gen := &scriptedGenerator{
		fragments: []string{"a", "b"},
		onFragment: func(int) {
			statuses = append(statuses, f.placeholder(t).Status)
		},
	}
	New(gen, f.mgr, locale.New("en"), zerolog.Nop()).Run(context.Background(), f.request())
	require.Equal(t, []model.Status{model.StatusStreaming, model.StatusStreaming}, statuses)
}

func TestRun_ErrorSubstitutesLocalizedText(t *testing.T) {
	f := setup(t, "x")
	gen := &scriptedGenerator{fragments: []string{"partial"}, err: errors.New("connection reset")}

	res := New(gen, f.mgr, locale.New("ru"), zerolog.Nop()).Run(context.Background(), f.request())
	require.Equal(t, Failed, res.Outcome)
	require.Error(t, res.Err)

	msg := f.placeholder(t)
	require.Equal(t, "Ошибка: проверьте API ключ или интернет-соединение.", msg.Content)
	require.Equal(t, model.StatusFailed, msg.Status)
}

func TestRun_NotConfigured(t *testing.T) {
	f := setup(t, "x")
	gen := &scriptedGenerator{err: provider.ErrNotConfigured}

	res := New(gen, f.mgr, locale.New("en"), zerolog.Nop()).Run(context.Background(), f.request())
	require.Equal(t, Failed, res.Outcome)
	require.ErrorIs(t, res.Err, provider.ErrNotConfigured)
	require.Equal(t, locale.New("en").T(locale.StreamError), f.placeholder(t).Content)
}

func TestRun_EmptyStreamFails(t *testing.T) {
	f := setup(t, "x")
	res := New(&scriptedGenerator{}, f.mgr, locale.New("en"), zerolog.Nop()).Run(context.Background(), f.request())

	require.Equal(t, Failed, res.Outcome)
	msg := f.placeholder(t)
	require.Equal(t, model.StatusFailed, msg.Status)
	require.Equal(t, "The model returned an empty response.", msg.Content)
}

func TestRun_DeletedMidStreamIsAbandoned(t *testing.T) {
	f := setup(t, "x")
	gen := &scriptedGenerator{
		fragments: []string{"one", "two", "three"},
		onFragment: func(i int) {
			if i == 0 {
				require.NoError(t, f.mgr.Delete(context.Background(), f.conv.ID))
			}
		},
	}

	res := New(gen, f.mgr, locale.New("en"), zerolog.Nop()).Run(context.Background(), f.request())
	require.Equal(t, Abandoned, res.Outcome)
	require.Equal(t, 1, res.Fragments)

	_, exists := f.mgr.Get(f.conv.ID)
	require.False(t, exists)
	require.Zero(t, f.mgr.Len())
	require.Zero(t, f.mgr.ActiveStreams(f.conv.ID))
}

func TestRun_SendsHistoryAndSettings(t *testing.T) {
	ctx := context.Background()
	f := setup(t, "first")
	gen := &scriptedGenerator{fragments: []string{"answer"}}
	r := New(gen, f.mgr, locale.New("en"), zerolog.Nop())
	r.Run(ctx, f.request())

	ex, err := f.mgr.Submit(ctx, f.conv.ID, "second", model.KindText)
	require.NoError(t, err)
	req := Request{
		ConversationID:    f.conv.ID,
		MessageID:         ex.Placeholder.ID,
		History:           ex.History,
		Prompt:            "second",
		Settings:          model.Settings{Model: "gemini-3-pro-preview", Temperature: 0.2, ImageAspectRatio: model.Ratio1x1},
		SystemInstruction: "sys",
	}
	r.Run(ctx, req)

	require.Equal(t, "gemini-3-pro-preview", gen.last.Model)
	require.Equal(t, 0.2, gen.last.Temperature)
	require.Equal(t, "sys", gen.last.SystemInstruction)
	require.Equal(t, "second", gen.last.Prompt)
	require.Equal(t, []provider.Turn{
		{Role: provider.TurnUser, Text: "first"},
		{Role: provider.TurnModel, Text: "answer"},
	}, gen.last.History)
}
