// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reconcile folds a streamed text completion into one assistant
// placeholder of one conversation.
//
// The first fragment becomes the accumulated text and later fragments are
// appended to it. After every fragment the placeholder's content is
// replaced in place, located by conversation ID and message ID, and the
// chat manager persists and republishes the collection. If the
// conversation disappears mid-stream the stream is abandoned and nothing
// is recreated.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
)

// Target is the part of the chat manager the reconciler writes into.
type Target interface {
	UpdateMessage(ctx context.Context, convID, msgID string, fn func(*model.Message)) bool
	SettleMessage(ctx context.Context, convID, msgID string, fn func(*model.Message)) bool
	BindStream(ctx context.Context, convID string) (context.Context, func())
}

// Request identifies the placeholder to fill and what to ask for.
type Request struct {
	ConversationID string
	MessageID      string
	// History is the conversation before the new prompt, oldest first.
	History           []*model.Message
	Prompt            string
	Settings          model.Settings
	SystemInstruction string
}

// Outcome is how a run ended.
type Outcome int

const (
	// Completed means at least one fragment arrived and the stream ended cleanly.
	Completed Outcome = iota
	// Failed means the placeholder now holds a localized error.
	Failed
	// Abandoned means the conversation was deleted before the stream ended.
	Abandoned
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Result summarizes a run.
type Result struct {
	Outcome   Outcome
	Content   string
	Fragments int
	Err       error
}

// Reconciler drives one TextGenerator into the chat manager.
type Reconciler struct {
	gen    provider.TextGenerator
	target Target
	text   *locale.Printer
	log    zerolog.Logger
}

// New creates a Reconciler.
func New(gen provider.TextGenerator, target Target, text *locale.Printer, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		gen:    gen,
		target: target,
		text:   text,
		log:    log.With().Str("component", "reconcile").Logger(),
	}
}

// Run consumes the stream for req to completion. It blocks until the
// stream ends, fails or is abandoned. Fragments are applied strictly in
// order; there is no retry.
func (r *Reconciler) Run(ctx context.Context, req Request) Result {
	log := r.log.With().
		Str("conversation", req.ConversationID).
		Str("message", req.MessageID).
		Str("model", req.Settings.Model).
		Logger()

	sctx, release := r.target.BindStream(ctx, req.ConversationID)
	defer release()

	start := time.Now()
	log.Info().Msg("stream_start")

	seq := r.gen.StreamChat(sctx, provider.TextRequest{
		Model:             req.Settings.Model,
		SystemInstruction: req.SystemInstruction,
		Temperature:       req.Settings.Temperature,
		History:           provider.TurnsFromHistory(req.History),
		Prompt:            req.Prompt,
	})

	var acc strings.Builder
	fragments := 0
	for frag, err := range seq {
		if err != nil {
			if sctx.Err() != nil && ctx.Err() == nil {
				// Our own cancellation: the conversation was deleted.
				log.Info().Int("fragments", fragments).Msg("stream_abandoned")
				return Result{Outcome: Abandoned, Content: acc.String(), Fragments: fragments, Err: err}
			}
			return r.fail(ctx, req, log, r.text.T(locale.StreamError), fragments, err)
		}

		// The first fragment is the baseline; every later one is a delta.
		// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
		acc.WriteString(frag)
		fragments++

		content := acc.String()
		applied := r.target.UpdateMessage(ctx, req.ConversationID, req.MessageID, func(m *model.Message) {
			m.Content = content
			m.Status = model.StatusStreaming
		})
		if !applied {
			log.Info().Int("fragments", fragments).Msg("stream_abandoned")
			return Result{Outcome: Abandoned, Content: content, Fragments: fragments}
		}
	}

	if fragments == 0 {
		return r.fail(ctx, req, log, r.text.T(locale.EmptyResponse), 0, nil)
	}

	// Observers already saw the final content with the last fragment, so
	// completion is persisted without another republish.
	content := acc.String()
	applied := r.target.SettleMessage(context.WithoutCancel(ctx), req.ConversationID, req.MessageID, func(m *model.Message) {
		m.Status = model.StatusComplete
	})
	if !applied {
		return Result{Outcome: Abandoned, Content: content, Fragments: fragments}
	}

	log.Info().
		Int("fragments", fragments).
		Int("chars", len([]rune(content))).
		Dur("elapsed", time.Since(start)).
		Msg("stream_complete")
	return Result{Outcome: Completed, Content: content, Fragments: fragments}
}

func (r *Reconciler) fail(ctx context.Context, req Request, log zerolog.Logger, msg string, fragments int, cause error) Result {
	// The final state is persisted even when ctx ended with the process.
	applied := r.target.UpdateMessage(context.WithoutCancel(ctx), req.ConversationID, req.MessageID, func(m *model.Message) {
		m.Content = msg
		m.Status = model.StatusFailed
	})
	if !applied {
		return Result{Outcome: Abandoned, Fragments: fragments, Err: cause}
	}
	log.Warn().Err(cause).Int("fragments", fragments).Msg("stream_failed")
	return Result{Outcome: Failed, Content: msg, Fragments: fragments, Err: cause}
}
