// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider defines the generation collaborators used by the
// reconciler and the image handler, and routes requests to a backend.
//
// # Key Types
//
//   - TextGenerator: streams text fragments for a chat request
//   - ImageGenerator: produces at most one image for a prompt
//   - Router: picks the Gemini or OpenAI backend per request
//
// Backends construct their API client per call from the current
// credential, so a key changed in the config file applies to the next
// request without restarting.
package provider

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/jeranaias/visionary/internal/model"
)

// ErrNotConfigured is returned when a backend has no credential.
var ErrNotConfigured = errors.New("provider not configured")

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Turn roles understood by every backend.
const (
	TurnUser  = "user"
	TurnModel = "model"
)

// Turn is one prior message sent as context.
type Turn struct {
	Role string
	Text string
}

// TextRequest is a chat completion request.
type TextRequest struct {
	Model             string
	SystemInstruction string
	Temperature       float64
	// History is ordered oldest first and excludes Prompt.
	History []Turn
	Prompt  string
}

// ImageRequest asks for a single image.
type ImageRequest struct {
	Prompt      string
	AspectRatio model.AspectRatio
}

// Image is a generated image as returned by the backend.
type Image struct {
	// MIMEType may be empty when the backend does not report one.
	MIMEType string
	// Base64 is the standard-encoding payload.
	Base64 string
}

// =============================================================================
// INTERFACES
// =============================================================================

// TextGenerator streams a completion as delta fragments: each yielded
// string continues the previous ones. The sequence is finite and can be
// consumed once. An error ends the sequence.
type TextGenerator interface {
	StreamChat(ctx context.Context, req TextRequest) iter.Seq2[string, error]
}

// ImageGenerator returns the first image the backend produced, or nil with
// a nil error when the response contained none.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (*Image, error)
}

// =============================================================================
// HELPERS
// =============================================================================

// TurnsFromHistory converts stored messages into request turns. Only final,
// successful messages with text are sent; placeholders and error texts are
// local state, not conversation.
func TurnsFromHistory(msgs []*model.Message) []Turn {
	turns := make([]Turn, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Status != model.StatusComplete {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		turns = append(turns, Turn{Role: m.Role.ProviderRole(), Text: m.Content})
	}
	return turns
}

// Fail returns a sequence that yields only err.
func Fail(err error) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		yield("", err)
	}
}
