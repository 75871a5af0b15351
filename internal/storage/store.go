// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/visionary/internal/model"
)

// Record keys. These names are the persisted format and must not change.
const (
	KeyChats    = "chats"
	KeyActive   = "active_chat"
	KeySettings = "settings"
)

// =============================================================================
// STORE
// =============================================================================

// State is the persisted application state.
type State struct {
	Chats    []*model.Conversation
	ActiveID string
	Settings model.Settings
}

// Store reads and writes the three application records through a KV.
// Each Save call is an independent write; there is no grouping across keys.
type Store struct {
	kv  KV
	log zerolog.Logger
}

// New creates a Store over kv.
func New(kv KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log.With().Str("component", "storage").Logger()}
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// =============================================================================
// LOAD
// =============================================================================

// Load reads all records. Missing records yield an empty chat list, no
// active chat and default settings. A record that fails to decode is logged
// and treated as missing; only backend failures are returned as errors.
func (s *Store) Load(ctx context.Context) (*State, error) {
	state := &State{
		Chats:    make([]*model.Conversation, 0),
		Settings: model.DefaultSettings(),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		chats, err := s.loadChats(gctx)
		if err != nil {
			return err
		}
		state.Chats = chats
		return nil
	})
	g.Go(func() error {
		data, err := s.get(gctx, KeyActive)
		if err != nil || data == nil {
			return err
		}
		state.ActiveID = string(data)
		return nil
	})
	g.Go(func() error {
		settings, err := s.loadSettings(gctx)
		if err != nil {
			return err
		}
		state.Settings = settings
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return state, nil
}

// get returns nil, nil for missing keys.
func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) loadChats(ctx context.Context) ([]*model.Conversation, error) {
	empty := make([]*model.Conversation, 0)
	data, err := s.get(ctx, KeyChats)
	if err != nil || data == nil {
		return empty, err
	}

	var chats []*model.Conversation
	if err := json.Unmarshal(data, &chats); err != nil {
		s.log.Warn().Err(err).Str("key", KeyChats).Msg("corrupt record ignored")
		return empty, nil
	}

	kept := chats[:0]
	for _, c := range chats {
		if c == nil || c.ID == "" {
			continue
		}
		c.Normalize()
		kept = append(kept, c)
	}
	return kept, nil
}

func (s *Store) loadSettings(ctx context.Context) (model.Settings, error) {
	settings := model.DefaultSettings()
	data, err := s.get(ctx, KeySettings)
	if err != nil || data == nil {
		return settings, err
	}
	// Decoding over the defaults keeps them for fields the record lacks.
	if err := json.Unmarshal(data, &settings); err != nil {
		s.log.Warn().Err(err).Str("key", KeySettings).Msg("corrupt record ignored")
		return model.DefaultSettings(), nil
	}
	return settings.Sanitize(), nil
}

// =============================================================================
// SAVE
// =============================================================================

// SaveChats replaces the "chats" record.
func (s *Store) SaveChats(ctx context.Context, chats []*model.Conversation) error {
	if chats == nil {
		chats = make([]*model.Conversation, 0)
	}
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("encode chats: %w", err)
	}
	return s.put(ctx, KeyChats, data)
}

// SaveActive replaces the "active_chat" record; an empty id removes it.
func (s *Store) SaveActive(ctx context.Context, id string) error {
	if id == "" {
		return s.remove(ctx, KeyActive)
	}
	return s.put(ctx, KeyActive, []byte(id))
}

// SaveSettings replaces the "settings" record.
func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return s.put(ctx, KeySettings, data)
}

// Clear removes the chats and the active pointer. Settings survive.
func (s *Store) Clear(ctx context.Context) error {
	return errors.Join(s.remove(ctx, KeyChats), s.remove(ctx, KeyActive))
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	if err := s.kv.Put(ctx, key, data); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("store_write_failed")
		return fmt.Errorf("save %s: %w", key, err)
	}
	s.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("store_write")
	return nil
}

func (s *Store) remove(ctx context.Context, key string) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("store_delete_failed")
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
