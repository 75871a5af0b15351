// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package imagegen fills an image placeholder from a single image request.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
	"github.com/jeranaias/visionary/internal/reconcile"
)

// DefaultMIMEType is used when neither the provider nor sniffing yields an
// image type.
const DefaultMIMEType = "image/png"

// ErrNoImage is reported when the provider answered without an image.
var ErrNoImage = errors.New("response contained no image")

// Request identifies the placeholder to fill.
type Request struct {
	ConversationID string
	MessageID      string
	Prompt         string
	AspectRatio    model.AspectRatio
}

// Result summarizes a run.
type Result struct {
	Outcome  reconcile.Outcome
	ImageURL string
	Err      error
}

// Handler issues image requests and writes the outcome into the chat.
type Handler struct {
	gen    provider.ImageGenerator
	target reconcile.Target
	text   *locale.Printer
	log    zerolog.Logger
}

// New creates a Handler.
func New(gen provider.ImageGenerator, target reconcile.Target, text *locale.Printer, log zerolog.Logger) *Handler {
	return &Handler{
		gen:    gen,
		target: target,
		text:   text,
		log:    log.With().Str("component", "imagegen").Logger(),
	}
}

// Run performs exactly one request. On success the placeholder gets the
// localized caption and a data URI; otherwise it gets the localized failure
// text and no image. There is no retry.
func (h *Handler) Run(ctx context.Context, req Request) Result {
	log := h.log.With().
		Str("conversation", req.ConversationID).
		Str("message", req.MessageID).
		Str("ratio", string(req.AspectRatio)).
		Logger()

	rctx, release := h.target.BindStream(ctx, req.ConversationID)
	defer release()

	start := time.Now()
	log.Info().Msg("image_start")

	img, err := h.gen.GenerateImage(rctx, provider.ImageRequest{Prompt: req.Prompt, AspectRatio: req.AspectRatio})
	if err == nil && img == nil {
		err = ErrNoImage
	}
	var uri string
	if err == nil {
		uri, err = DataURI(img)
	}

	if err != nil {
		if rctx.Err() != nil && ctx.Err() == nil {
			log.Info().Msg("image_abandoned")
			return Result{Outcome: reconcile.Abandoned, Err: err}
		}
		failure := h.text.T(locale.ImageFailed)
		applied := h.target.UpdateMessage(context.WithoutCancel(ctx), req.ConversationID, req.MessageID, func(m *model.Message) {
			m.Content = failure
			m.ImageURL = ""
			m.Status = model.StatusFailed
		})
		if !applied {
			return Result{Outcome: reconcile.Abandoned, Err: err}
		}
		log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("image_failed")
		return Result{Outcome: reconcile.Failed, Err: err}
	}

	caption := h.text.T(locale.ImageCaption, req.Prompt)
	applied := h.target.UpdateMessage(context.WithoutCancel(ctx), req.ConversationID, req.MessageID, func(m *model.Message) {
		m.Content = caption
		m.ImageURL = uri
		m.Status = model.StatusComplete
	})
	if !applied {
		log.Info().Msg("image_abandoned")
		return Result{Outcome: reconcile.Abandoned, ImageURL: uri}
	}
	log.Info().Int("bytes", len(img.Base64)).Dur("elapsed", time.Since(start)).Msg("image_complete")
	return Result{Outcome: reconcile.Completed, ImageURL: uri}
}

// DataURI renders img as "data:<mime>;base64,<payload>". The payload is
// used exactly as the provider returned it. A missing MIME type is sniffed
// from the decoded bytes and falls back to image/png.
func DataURI(img *provider.Image) (string, error) {
	if img == nil || img.Base64 == "" {
		return "", ErrNoImage
	}
	mime := img.MIMEType
	if mime == "" {
		mime = sniff(img.Base64)
	}
	return "data:" + mime + ";base64," + img.Base64, nil
}

func sniff(payload string) string {
	// Only the header is needed for detection.
	head := payload
	if len(head) > 4096 {
		head = head[:4096]
	}
	head = head[:len(head)-len(head)%4]
	raw, err := base64.StdEncoding.DecodeString(head)
	if err != nil || len(raw) == 0 {
		return DefaultMIMEType
	}
	detected := mimetype.Detect(raw).String()
	if !strings.HasPrefix(detected, "image/") {
		return DefaultMIMEType
	}
	return detected
}
