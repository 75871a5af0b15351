// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chats, the active chat pointer and settings.
//
// Persistence is split in two layers. A KV is a small byte-oriented
// key/value backend; several are available (plain JSON files, SQLite,
// bbolt and an in-memory map). Store sits on top and knows the three
// records the application writes through on every change.
//
// # Key Types
//
//   - KV: backend interface (Get, Put, Delete, Close)
//   - Store: typed access to the "chats", "active_chat" and "settings" records
//   - State: everything Store.Load returns
//
// # Usage
//
//	kv, err := storage.Open(storage.BackendFile, dataDir)
//	store := storage.New(kv, logger)
//	state, err := store.Load(ctx)
//	err = store.SaveChats(ctx, state.Chats)
//
// # Storage Location
//
// By default records live under ~/.visionary/data/.
package storage
