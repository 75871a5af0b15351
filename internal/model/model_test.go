// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"short", "Hello", "Hello"},
		{"exactly limit", strings.Repeat("a", 30), strings.Repeat("a", 30)},
		{"one over limit", strings.Repeat("a", 31), strings.Repeat("a", 30) + "..."},
		{"cyrillic counts runes", strings.Repeat("ж", 35), strings.Repeat("ж", 30) + "..."},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.in); got != tc.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestConversation_TitleSetOnlyOnFirstExchange(t *testing.T) {
	conv := NewConversation("New chat")
	require.Equal(t, "New chat", conv.Title)

	conv.AddExchange(NewUserMessage("first question"), NewPlaceholder(KindText))
	require.Equal(t, "first question", conv.Title)

	conv.AddExchange(NewUserMessage("a completely different and much longer second question"), NewPlaceholder(KindText))
	require.Equal(t, "first question", conv.Title)
	require.Len(t, conv.Messages, 4)
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_MessageByIDAndHistory(t *testing.T) {
	conv := NewConversation("t")
	user := NewUserMessage("hi")
	reply := NewPlaceholder(KindText)
	conv.AddExchange(user, reply)

	require.Same(t, reply, conv.MessageByID(reply.ID))
	require.Nil(t, conv.MessageByID("missing"))

	hist := conv.History(reply.ID)
	require.Len(t, hist, 1)
	require.Equal(t, user.ID, hist[0].ID)
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation("t")
	conv.AddExchange(NewUserMessage("hi"), NewPlaceholder(KindText))

	clone := conv.Clone()
	clone.Messages[1].Content = "changed"
	clone.Title = "other"

	require.Empty(t, conv.Messages[1].Content)
	require.Equal(t, "hi", conv.Title)
}

func TestConversation_NormalizeLegacyRecord(t *testing.T) {
	raw := `{"id":"c1","title":"old","createdAt":1700000000000,"messages":[
		{"id":"m1","role":"user","content":"draw a cat","timestamp":1700000000001},
		{"id":"m2","role":"assistant","content":"cat","imageUrl":"data:image/png;base64,AAAA","timestamp":1700000000002},
		null
	]}`

	var conv Conversation
	require.NoError(t, json.Unmarshal([]byte(raw), &conv))
	conv.Normalize()

	require.Len(t, conv.Messages, 2)
	require.Equal(t, StatusComplete, conv.Messages[0].Status)
	require.Equal(t, KindText, conv.Messages[0].Kind)
	require.Equal(t, KindImage, conv.Messages[1].Kind)
}

func TestMessage_JSONFieldNames(t *testing.T) {
	msg := &Message{ID: "m", Role: RoleAssistant, Content: "x", ImageURL: "u", Timestamp: 5, Status: StatusComplete, Kind: KindImage}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	for _, key := range []string{`"id"`, `"role"`, `"content"`, `"imageUrl"`, `"timestamp"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Marshal() = %s, want key %s", data, key)
		}
	}
}

func TestRole_ProviderRole(t *testing.T) {
	require.Equal(t, "user", RoleUser.ProviderRole())
	require.Equal(t, "model", RoleAssistant.ProviderRole())
}

func TestStatus_IsFinal(t *testing.T) {
	require.False(t, StatusPending.IsFinal())
	require.False(t, StatusStreaming.IsFinal())
	require.True(t, StatusComplete.IsFinal())
	require.True(t, StatusFailed.IsFinal())
}

// =============================================================================
// MODEL REGISTRY TESTS
// =============================================================================

func TestProviderFor(t *testing.T) {
	tests := map[string]string{
		"gemini-3-flash-preview": ProviderGemini,
		"gemini-3-pro-preview":   ProviderGemini,
		"gpt-4o":                 ProviderOpenAI,
		"o3-mini":                ProviderOpenAI,
		"openai/gpt-oss":         ProviderOpenAI,
		"ollama":                 ProviderGemini,
	}
	for id, want := range tests {
		if got := ProviderFor(id); got != want {
			t.Errorf("ProviderFor(%q) = %q, want %q", id, got, want)
		}
	}
}

func TestGetModelInfo_Unknown(t *testing.T) {
	info := GetModelInfo("custom-model")
	require.Equal(t, "custom-model", info.Name)
	require.Equal(t, ProviderGemini, info.Provider)
	require.Equal(t, DefaultModel, Models[0].ID)
}

// =============================================================================
// SETTINGS TESTS
// =============================================================================

func TestParseAspectRatio(t *testing.T) {
	for _, r := range AspectRatios {
		got, err := ParseAspectRatio(string(r))
		require.NoError(t, err)
		require.Equal(t, r, got)
	}
	_, err := ParseAspectRatio("2:1")
	require.ErrorIs(t, err, ErrInvalidAspectRatio)
}

func TestClampTemperature(t *testing.T) {
	require.Equal(t, 0.0, ClampTemperature(-0.5))
	require.Equal(t, 1.0, ClampTemperature(1.7))
	require.Equal(t, 0.3, ClampTemperature(0.3))
	require.Equal(t, 0.0, ClampTemperature(math.NaN()))
}

func TestSettings_Sanitize(t *testing.T) {
	s := Settings{Temperature: 3, ImageAspectRatio: "5:4"}.Sanitize()
	require.Equal(t, DefaultModel, s.Model)
	require.Equal(t, 1.0, s.Temperature)
	require.Equal(t, Ratio1x1, s.ImageAspectRatio)
}
