// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/visionary/internal/util"
)

// FileKV stores each key as <dir>/<key>.json.
type FileKV struct {
	// BaseDir is the directory holding one file per key
	BaseDir string
}

// NewFileKV creates a file backend, creating dir if needed.
func NewFileKV(dir string) (*FileKV, error) {
	if dir == "" {
		return nil, errors.New("file storage: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file storage: %w", err)
	}
	return &FileKV{BaseDir: dir}, nil
}

func (f *FileKV) path(key string) string {
	return filepath.Join(f.BaseDir, key+".json")
}

// Get implements KV.
func (f *FileKV) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put implements KV.
func (f *FileKV) Put(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	return util.AtomicWriteFile(f.path(key), value, 0o600)
}

// Delete implements KV.
func (f *FileKV) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close implements KV.
func (f *FileKV) Close() error {
	return nil
}
