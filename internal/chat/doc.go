// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the conversation collection.
//
// The Manager is the single source of truth for conversations and the
// active pointer. Conversations are held in a map keyed by ID plus an order
// slice with the newest first. Every mutation is written through to storage
// and then published to observers as a deep-copied Snapshot, in mutation
// order.
//
// # Key Types
//
//   - Manager: collection, active pointer, observers and stream registry
//   - Snapshot: immutable copy of the collection handed to observers
//   - Exchange: the user message and placeholder created by Submit
//
// # Usage
//
//	mgr := chat.NewManager(store, "New chat", logger)
//	mgr.Load(state.Chats, state.ActiveID)
//	unsubscribe := mgr.Subscribe(func(s chat.Snapshot) { render(s) })
//	conv := mgr.NewChat(ctx)
//	ex, err := mgr.Submit(ctx, conv.ID, "Hello", model.KindText)
//
// Observers run synchronously on the mutating goroutine and must not call
// back into the Manager.
package chat
