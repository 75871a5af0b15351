// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the chat manager,
// the streaming reconciler, the image handler and the persistent store.
// The JSON layout of these types is the on-disk format of the "chats"
// record, so field tags must stay stable.
//
// # Key Types
//
//   - Conversation: ordered messages plus a title fixed by the first prompt
//   - Message: a single turn with role, content, optional image and status
//   - Status: lifecycle of an assistant placeholder (pending, streaming, complete, failed)
//   - Kind: what an assistant placeholder is waiting for (text or image)
//   - ModelInfo: selectable generation models
//
// # Usage
//
//	conv := model.NewConversation("New chat")
//	user := model.NewUserMessage("Hello!")
//	reply := model.NewPlaceholder(model.KindText)
//	conv.AddExchange(user, reply)
package model
