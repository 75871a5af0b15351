// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TitleLimit is the number of characters of the first prompt kept as the
// conversation title.
const TitleLimit = 30

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a chat conversation with its history.
//
// Messages are append-only and ordered oldest first. CreatedAt is epoch
// milliseconds.
type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Messages  []*Message `json:"messages"`
	CreatedAt int64      `json:"createdAt"`
}

// NewConversation creates an empty conversation with the given placeholder
// title.
func NewConversation(title string) *Conversation {
	return &Conversation{
		ID:        generateConversationID(),
		Title:     title,
		Messages:  make([]*Message, 0),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddExchange appends a user message and the assistant placeholder that will
// hold its answer. When the conversation was empty the title is derived from
// the user message; it is never recomputed afterwards.
func (c *Conversation) AddExchange(user, reply *Message) {
	if len(c.Messages) == 0 && user != nil {
		c.Title = DeriveTitle(user.Content)
	}
	if user != nil {
		c.Messages = append(c.Messages, user)
	}
	if reply != nil {
		c.Messages = append(c.Messages, reply)
	}
}

// MessageByID returns the message with the given ID, or nil.
func (c *Conversation) MessageByID(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// History returns the messages that precede the message with the given ID.
// If id is not found the whole history is returned.
func (c *Conversation) History(beforeID string) []*Message {
	for i, msg := range c.Messages {
		if msg.ID == beforeID {
			return c.Messages[:i]
		}
	}
	return c.Messages
}

// LastMessage returns the most recent message, or nil if empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if the conversation has no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Created returns the creation time.
func (c *Conversation) Created() time.Time {
	return time.UnixMilli(c.CreatedAt)
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = make([]*Message, len(c.Messages))
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}

// Normalize repairs records loaded from older versions of the store.
func (c *Conversation) Normalize() {
	if c.Messages == nil {
		c.Messages = make([]*Message, 0)
	}
	kept := c.Messages[:0]
	for _, msg := range c.Messages {
		if msg == nil {
			continue
		}
		msg.normalize()
		kept = append(kept, msg)
	}
	c.Messages = kept
}

// =============================================================================
// TITLE
// =============================================================================

// DeriveTitle returns the first TitleLimit characters of text, followed by
// "..." only if text was longer.
func DeriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= TitleLimit {
		return text
	}
	return string(runes[:TitleLimit]) + "..."
}

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	return uuid.NewString()
}
