// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// KV INTERFACE
// =============================================================================

// KV is a minimal key/value backend. Writes to different keys are
// independent; the last write to a key wins.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Backends lists the accepted backend names.
var Backends = []string{BackendFile, BackendSQLite, BackendBolt, BackendMemory}

// Open creates the named backend rooted at dir.
func Open(backend, dir string) (KV, error) {
	switch strings.ToLower(backend) {
	case "", BackendFile:
		return NewFileKV(dir)
	case BackendSQLite:
		return NewSQLiteKV(dir)
	case BackendBolt:
		return NewBoltKV(dir)
	case BackendMemory:
		return NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a key doesn't exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StorageError{Message: "key not found"}

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = &StorageError{Message: "storage closed"}

// StorageError represents a storage-related error.
type StorageError struct {
	Message string
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing storage errors.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// validKey rejects keys that could escape a file backend's directory.
func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
