// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the visionary command line.
//
// Running visionary with no arguments starts the interactive chat. Other
// commands work on saved chats and settings without entering the REPL.
//
// # Commands
//
//   - chat: interactive chat with streaming answers (default)
//   - login: email verification sign-in
//   - list, show, export, delete, clear: manage saved chats
//   - settings: show or change model, temperature and image aspect ratio
//   - config: print the effective config, its path, or write a default one
//   - version: print build information
//
// # Key Types
//
//   - Session: config, logger, locale and app opened for one command
//   - ChatCLI: liner-backed line editing with persistent history
//   - LineReader: the input abstraction shared by prompts and the REPL
//
// # Usage
//
//	os.Exit(cli.Execute())
package cli
