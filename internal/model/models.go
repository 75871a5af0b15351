// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import "strings"

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo describes a selectable text generation model.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Provider is the backend that serves the model (Gemini, OpenAI)
	Provider string `json:"provider"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

const (
	ProviderGemini = "Gemini"
	ProviderOpenAI = "OpenAI"
)

// DefaultModel is the text model used when settings carry none.
const DefaultModel = "gemini-3-flash-preview"

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Models lists the models offered in settings, in display order.
var Models = []ModelInfo{
	{
		ID:          "gemini-3-flash-preview",
		Name:        "Gemini 3 Flash",
		Provider:    ProviderGemini,
		Description: "Fast answers for everyday questions",
	},
	{
		ID:          "gemini-3-pro-preview",
		Name:        "Gemini 3 Pro",
		Provider:    ProviderGemini,
		Description: "Deeper reasoning for complex tasks",
	},
	{
		ID:          "gpt-4o-mini",
		Name:        "GPT-4o mini",
		Provider:    ProviderOpenAI,
		Description: "OpenAI-compatible endpoint, low latency",
	},
	{
		ID:          "gpt-4o",
		Name:        "GPT-4o",
		Provider:    ProviderOpenAI,
		Description: "OpenAI-compatible endpoint, general purpose",
	},
}

// GetModelInfo returns information about a model. Unknown IDs get a
// synthesized entry so custom model names remain usable.
func GetModelInfo(id string) ModelInfo {
	for _, m := range Models {
		if m.ID == id {
			return m
		}
	}
	return ModelInfo{
		ID:       id,
		Name:     id,
		Provider: ProviderFor(id),
	}
}

// ProviderFor picks the backend for a model ID by its naming scheme.
func ProviderFor(id string) string {
	lower := strings.ToLower(id)
	switch {
	case strings.HasPrefix(lower, "gpt-"),
		strings.HasPrefix(lower, "openai/"),
		len(lower) > 1 && lower[0] == 'o' && lower[1] >= '0' && lower[1] <= '9':
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}
