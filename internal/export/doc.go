// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes a conversation to a standalone file.
//
// Exports are read-only artifacts: there is no import path. The file name
// is derived from the conversation id, so exporting the same conversation
// twice overwrites the earlier file.
//
// # Key Types
//
//   - Exporter: Converts a conversation to bytes in one format
//   - JSONExporter: Indented JSON using the stored record layout
//   - MarkdownExporter: Human-readable transcript
//
// # Usage
//
//	exporter, err := export.ForFormat("json", nil)
//	path, err := export.ExportToFile(conv, exporter, &export.Options{OutputDir: "."})
//	// path == "./chat_export_<id>.json"
package export
