// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package settings holds the user's generation preferences and writes every
// accepted change through to storage.
package settings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/visionary/internal/model"
)

// Errors returned by the setters.
var (
	ErrInvalidTemperature = errors.New("temperature must be a number")
	ErrEmptyModel         = errors.New("model must not be empty")
)

// Persister is the subset of storage.Store the manager needs.
type Persister interface {
	SaveSettings(ctx context.Context, settings model.Settings) error
}

// Manager guards the current settings.
type Manager struct {
	mu      sync.RWMutex
	current model.Settings
	store   Persister
	log     zerolog.Logger
}

// NewManager creates a Manager seeded with initial, which is sanitized first.
func NewManager(initial model.Settings, store Persister, log zerolog.Logger) *Manager {
	return &Manager{
		current: initial.Sanitize(),
		store:   store,
		log:     log.With().Str("component", "settings").Logger(),
	}
}

// Get returns a copy of the current settings.
func (m *Manager) Get() model.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetModel selects the text model.
func (m *Manager) SetModel(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyModel
	}
	return m.update(ctx, func(s *model.Settings) { s.Model = id })
}

// SetTemperature stores t clamped into [0, 1] and returns the stored value.
func (m *Manager) SetTemperature(ctx context.Context, t float64) (float64, error) {
	if math.IsNaN(t) {
		return m.Get().Temperature, ErrInvalidTemperature
	}
	t = model.ClampTemperature(t)
	return t, m.update(ctx, func(s *model.Settings) { s.Temperature = t })
}

// SetAspectRatio selects the image aspect ratio. Values outside the five
// accepted literals are rejected and leave the settings unchanged.
func (m *Manager) SetAspectRatio(ctx context.Context, ratio string) error {
	r, err := model.ParseAspectRatio(ratio)
	if err != nil {
		return err
	}
	return m.update(ctx, func(s *model.Settings) { s.ImageAspectRatio = r })
}

// Replace swaps in a whole settings value, sanitizing it first.
func (m *Manager) Replace(ctx context.Context, s model.Settings) error {
	s = s.Sanitize()
	return m.update(ctx, func(cur *model.Settings) { *cur = s })
}

// update applies fn and writes the result through. The in-memory value is
// kept even if the write fails.
func (m *Manager) update(ctx context.Context, fn func(*model.Settings)) error {
	m.mu.Lock()
	fn(&m.current)
	snapshot := m.current
	m.mu.Unlock()

	m.log.Debug().
		Str("model", snapshot.Model).
		Float64("temperature", snapshot.Temperature).
		Str("ratio", string(snapshot.ImageAspectRatio)).
		Msg("settings_changed")

	if m.store == nil {
		return nil
	}
	if err := m.store.SaveSettings(ctx, snapshot); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}
