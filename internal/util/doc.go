// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the store, config and CLI.
//
// # Key Functions
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, PadWidth: terminal column aware layout
//   - SingleLine: collapse multi-line text for list views
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	display := util.PadWidth(conv.Title, 32)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
