// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"iter"

	"github.com/jeranaias/visionary/internal/model"
)

// Backend is a provider that can serve both text and images.
type Backend interface {
	TextGenerator
	ImageGenerator
	// Configured reports whether a credential is currently available.
	Configured() bool
}

// Router dispatches text requests by model name and image requests to the
// first configured backend, Gemini first.
type Router struct {
	Gemini Backend
	OpenAI Backend
}

// StreamChat implements TextGenerator.
func (r *Router) StreamChat(ctx context.Context, req TextRequest) iter.Seq2[string, error] {
	b := r.forModel(req.Model)
	if b == nil {
		return Fail(ErrNotConfigured)
	}
	return b.StreamChat(ctx, req)
}

// GenerateImage implements ImageGenerator.
func (r *Router) GenerateImage(ctx context.Context, req ImageRequest) (*Image, error) {
	for _, b := range []Backend{r.Gemini, r.OpenAI} {
		if b != nil && b.Configured() {
			return b.GenerateImage(ctx, req)
		}
	}
	return nil, ErrNotConfigured
}

func (r *Router) forModel(id string) Backend {
	if model.ProviderFor(id) == model.ProviderOpenAI {
		return r.OpenAI
	}
	return r.Gemini
}
