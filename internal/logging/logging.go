// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger shared by all components.
//
// Log output goes to a file by default so that it never interleaves with
// the interactive chat. Components derive child loggers with a
// "component" field.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Stderr is the File value that sends log output to standard error.
const Stderr = "-"

// ErrUnsupportedFormat is returned for a format other than console or json.
var ErrUnsupportedFormat = errors.New("unsupported log format")

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// New constructs a logger from level, format ("console" or "json") and a
// destination file. The returned closer releases the file.
func New(level, format, file string) (zerolog.Logger, io.Closer, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	out, err := openOutput(file)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	var logger zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		logger = zerolog.New(out)
	case "", "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    file != Stderr,
		})
	default:
		out.Close()
		return zerolog.Nop(), nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	return logger.With().Timestamp().Logger().Level(lvl), out, nil
}

// openOutput opens file for appending, creating its directory.
// SECURITY: Logs may contain email addresses; the file is owner-only.
func openOutput(file string) (io.WriteCloser, error) {
	if file == "" || file == Stderr {
		return nopCloser{os.Stderr}, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
