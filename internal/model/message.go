// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ProviderRole maps the role onto the two-party vocabulary used by
// generation providers ("user" or "model").
func (r Role) ProviderRole() string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

// =============================================================================
// STATUS AND KIND
// =============================================================================

// Status tracks an assistant message from placeholder to final answer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// IsFinal reports whether no further updates are expected.
func (s Status) IsFinal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Kind is the type of answer a placeholder is waiting for.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// ID is stable for the lifetime of the message; the reconciler and the image
// handler locate their placeholder by it. Timestamp is epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Timestamp int64  `json:"timestamp"`

	Status Status `json:"status,omitempty"`
	Kind   Kind   `json:"kind,omitempty"`
}

// NewUserMessage creates a final user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusComplete,
		Kind:      KindText,
	}
}

// NewPlaceholder creates an empty assistant message awaiting an answer of
// the given kind.
func NewPlaceholder(kind Kind) *Message {
	return &Message{
		ID:        generateID(),
		Role:      RoleAssistant,
		Timestamp: time.Now().UnixMilli(),
		Status:    StatusPending,
		Kind:      kind,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// Time returns the message timestamp as a time.Time.
func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsPending reports whether the message is a placeholder with no content yet.
func (m *Message) IsPending() bool {
	return m.Status == StatusPending
}

// HasImage reports whether the message carries an image.
func (m *Message) HasImage() bool {
	return m.ImageURL != ""
}

// Preview returns a truncated single-line preview of the content.
func (m *Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if maxLen <= 3 || len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// normalize fills fields missing from records written before status
// tracking existed.
func (m *Message) normalize() {
	if m.Status == "" {
		m.Status = StatusComplete
	}
	if m.Kind == "" {
		m.Kind = KindText
		if m.ImageURL != "" {
			m.Kind = KindImage
		}
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return uuid.NewString()
}
