// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for visionary.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - Holder: Current configuration shared with provider backends
//   - Watcher: Reloads the config file into a Holder on change
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (VISIONARY_*, plus API_KEY and GEMINI_API_KEY)
//   - ~/.visionary/config.toml
//   - ~/.visionary/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Keep credentials current while running:
//
//	holder := config.NewHolder(cfg)
//	w, _ := config.NewWatcher(path, holder, logger)
//	go w.Run(ctx)
package config
