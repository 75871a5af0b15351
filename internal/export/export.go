// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/util"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a conversation to the target format and returns the content.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the appropriate file extension (e.g., ".json").
	FileExtension() string

	// MimeType returns the MIME type for the exported format.
	MimeType() string
}

// ErrNilConversation is returned when there is nothing to export.
var ErrNilConversation = errors.New("conversation is nil")

// Format names accepted by ForFormat.
const (
	FormatJSON     = "json"
	FormatMarkdown = "md"
)

// ForFormat returns the exporter for a format name ("json", "md" or
// "markdown").
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", FormatJSON:
		return NewJSONExporter(opts), nil
	case FormatMarkdown, "markdown":
		return NewMarkdownExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", name)
	}
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behavior.
type Options struct {
	// OutputDir is the directory where files will be saved.
	// Default: current working directory
	OutputDir string

	// IncludeTimestamps includes per-message timestamps (Markdown only).
	IncludeTimestamps bool

	// Now stamps the export footer; default time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeTimestamps: true,
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o == nil || o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// FileName returns the export file name for a conversation id.
func FileName(id, ext string) string {
	return "chat_export_" + sanitizeFilename(id) + ext
}

// ExportToFile exports a conversation to a file using the specified exporter.
// Returns the output file path or an error.
func ExportToFile(conv *model.Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if conv == nil {
		return "", ErrNilConversation
	}

	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	// RELIABILITY: Atomic write so a failed export never leaves a partial file
	outputPath := filepath.Join(dir, FileName(conv.ID, exporter.FileExtension()))
	if err := util.AtomicWriteFile(outputPath, content, 0o600); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 64)

	var b strings.Builder
	for _, r := range s {
		switch {
		case r < 32 || r == 127:
			b.WriteRune('-')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
