// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// =============================================================================
// HOLDER
// =============================================================================

// Holder is the current configuration, shared by components that read
// credentials at call time. It is safe for concurrent use.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewHolder creates a holder with an initial configuration.
func NewHolder(cfg *Config) *Holder {
	if cfg == nil {
		cfg = Default()
	}
	return &Holder{cfg: cfg.Clone()}
}

// Get returns a copy of the current configuration.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Clone()
}

// Set replaces the current configuration.
func (h *Holder) Set(cfg *Config) {
	h.mu.Lock()
	h.cfg = cfg.Clone()
	h.mu.Unlock()
}

// GeminiKey returns the current Gemini API key.
func (h *Holder) GeminiKey() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Gemini.APIKey
}

// OpenAIKey returns the current OpenAI API key.
func (h *Holder) OpenAIKey() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.OpenAI.APIKey
}

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Watcher reloads a config file into a Holder when it changes. Invalid
// edits are logged and the previous configuration stays in effect.
type Watcher struct {
	path     string
	holder   *Holder
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      zerolog.Logger

	// OnReload, if set, is called after each successful reload.
	OnReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher creates a watcher for path. The parent directory is watched
// rather than the file, since editors often replace the file on save.
func NewWatcher(path string, holder *Holder, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(path),
		holder:   holder,
		watcher:  fw,
		debounce: DefaultDebounce,
		log:      log.With().Str("component", "config").Logger(),
	}, nil
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("config_watch_error")
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFromPath(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("config_reload_failed")
		return
	}
	w.holder.Set(cfg)
	w.log.Info().Str("path", w.path).Msg("config_reloaded")
	if w.OnReload != nil {
		w.OnReload(cfg)
	}
}
