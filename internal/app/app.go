// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires the chat manager, settings, store and generators into
// the operations the front end calls.
//
// # Key Types
//
//   - App: Loaded application state plus the operations on it
//   - Confirmer: Asks the user before a destructive action
//
// # Usage
//
//	a, err := app.Open(ctx, app.Deps{Store: store, Text: router, Images: router, Locale: text, Log: log})
//	defer a.Close()
//	a.NewChat(ctx)
//	a.Send(ctx, "hello", false)
//	a.Wait()
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/chat"
	"github.com/jeranaias/visionary/internal/export"
	"github.com/jeranaias/visionary/internal/imagegen"
	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
	"github.com/jeranaias/visionary/internal/reconcile"
	"github.com/jeranaias/visionary/internal/settings"
	"github.com/jeranaias/visionary/internal/storage"
)

// ErrNoActiveChat is returned by Send when no conversation is selected.
var ErrNoActiveChat = errors.New("no active chat")

// =============================================================================
// CONFIRMATION
// =============================================================================

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(question string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(question string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(question string) bool { return f(question) }

// Always is a Confirmer that answers yes, for --yes flags.
var Always = ConfirmFunc(func(string) bool { return true })

// =============================================================================
// APP
// =============================================================================

// Deps are the collaborators App is built from.
type Deps struct {
	Store  *storage.Store
	Text   provider.TextGenerator
	Images provider.ImageGenerator
	Locale *locale.Printer
	// SystemInstruction overrides the localized default.
	SystemInstruction string
	// OnDone, if set, is called after each generation ends.
	OnDone func(Generation)
	Log    zerolog.Logger
}

// Generation reports how one background generation ended.
type Generation struct {
	ConversationID string
	MessageID      string
	Kind           model.Kind
	Outcome        reconcile.Outcome
	Err            error
}

// App is the loaded application.
type App struct {
	store    *storage.Store
	chats    *chat.Manager
	settings *settings.Manager
	text     *locale.Printer
	recon    *reconcile.Reconciler
	images   *imagegen.Handler
	system   string
	onDone   func(Generation)
	log      zerolog.Logger

	// Generations outlive the call that started them; they stop on Close.
	genCtx    context.Context
	genCancel context.CancelFunc
	wg        sync.WaitGroup
}

// Open loads persisted state and returns a ready App.
func Open(ctx context.Context, d Deps) (*App, error) {
	if d.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if d.Locale == nil {
		d.Locale = locale.New("")
	}
	state, err := d.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	log := d.Log.With().Str("component", "app").Logger()
	chats := chat.NewManager(d.Store, d.Locale.T(locale.DefaultTitle), d.Log)
	chats.Load(state.Chats, state.ActiveID)

	system := d.SystemInstruction
	if system == "" {
		system = d.Locale.T(locale.SystemPrompt)
	}

	genCtx, cancel := context.WithCancel(context.Background())
	a := &App{
		store:     d.Store,
		chats:     chats,
		settings:  settings.NewManager(state.Settings, d.Store, d.Log),
		text:      d.Locale,
		recon:     reconcile.New(d.Text, chats, d.Locale, d.Log),
		images:    imagegen.New(d.Images, chats, d.Locale, d.Log),
		system:    system,
		onDone:    d.OnDone,
		log:       log,
		genCtx:    genCtx,
		genCancel: cancel,
	}
	log.Info().Int("chats", chats.Len()).Str("active", chats.ActiveID()).Msg("app_opened")
	return a, nil
}

// Chats returns the conversation manager.
func (a *App) Chats() *chat.Manager { return a.chats }

// Settings returns the settings manager.
func (a *App) Settings() *settings.Manager { return a.settings }

// Locale returns the active message catalog.
func (a *App) Locale() *locale.Printer { return a.text }

// =============================================================================
// CONVERSATIONS
// =============================================================================

// NewChat creates an empty conversation and makes it active.
func (a *App) NewChat(ctx context.Context) *model.Conversation {
	return a.chats.NewChat(ctx)
}

// SelectChat makes id the active conversation.
func (a *App) SelectChat(ctx context.Context, id string) error {
	return a.chats.Select(ctx, id)
}

// DeleteChat removes a conversation after confirmation. It reports whether
// the conversation was deleted.
func (a *App) DeleteChat(ctx context.Context, id string, c Confirmer) (bool, error) {
	if _, ok := a.chats.Get(id); !ok {
		return false, chat.ErrNotFound
	}
	if !c.Confirm(a.text.T(locale.ConfirmDelete)) {
		return false, nil
	}
	if err := a.chats.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// ClearAll removes every conversation after confirmation. Settings are
// kept. It reports whether anything was cleared.
func (a *App) ClearAll(ctx context.Context, c Confirmer) bool {
	if !c.Confirm(a.text.T(locale.ConfirmClear)) {
		return false
	}
	a.chats.ClearAll(ctx)
	return true
}

// Export writes conversation id to dir in the given format ("json" or
// "md") and returns the file path.
func (a *App) Export(id, dir, format string) (string, error) {
	conv, ok := a.chats.Get(id)
	if !ok {
		return "", chat.ErrNotFound
	}
	opts := export.DefaultOptions()
	opts.OutputDir = dir
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return "", err
	}
	return export.ExportToFile(conv, exporter, opts)
}

// =============================================================================
// GENERATION
// =============================================================================

// Send appends text and a placeholder to the active conversation and
// starts the generation in the background. The returned exchange carries
// the ids of both new messages.
func (a *App) Send(ctx context.Context, text string, isImage bool) (*chat.Exchange, error) {
	convID := a.chats.ActiveID()
	if convID == "" {
		return nil, ErrNoActiveChat
	}
	kind := model.KindText
	if isImage {
		kind = model.KindImage
	}
	ex, err := a.chats.Submit(ctx, convID, text, kind)
	if err != nil {
		return nil, err
	}

	s := a.settings.Get()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		gen := Generation{ConversationID: ex.ConversationID, MessageID: ex.Placeholder.ID, Kind: kind}
		if isImage {
			res := a.images.Run(a.genCtx, imagegen.Request{
				ConversationID: ex.ConversationID,
				MessageID:      ex.Placeholder.ID,
				Prompt:         text,
				AspectRatio:    s.ImageAspectRatio,
			})
			gen.Outcome, gen.Err = res.Outcome, res.Err
		} else {
			res := a.recon.Run(a.genCtx, reconcile.Request{
				ConversationID:    ex.ConversationID,
				MessageID:         ex.Placeholder.ID,
				History:           ex.History,
				Prompt:            text,
				Settings:          s,
				SystemInstruction: a.system,
			})
			gen.Outcome, gen.Err = res.Outcome, res.Err
		}
		if a.onDone != nil {
			a.onDone(gen)
		}
	}()
	return ex, nil
}

// Wait blocks until every generation started so far has ended.
func (a *App) Wait() {
	a.wg.Wait()
}

// Close cancels running generations, waits for them and closes the store.
func (a *App) Close() error {
	a.genCancel()
	a.wg.Wait()
	return a.store.Close()
}
