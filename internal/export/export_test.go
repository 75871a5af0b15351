// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionary/internal/model"
)

func sampleConversation() *model.Conversation {
	conv := &model.Conversation{
		ID:        "chat-123",
		Title:     "Draw a cat",
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli(),
	}
	conv.Messages = []*model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "Draw a cat", Timestamp: conv.CreatedAt, Status: model.StatusComplete, Kind: model.KindText},
		{ID: "m2", Role: model.RoleAssistant, Content: "Image for prompt: \"Draw a cat\"", ImageURL: "data:image/png;base64,AAAA", Timestamp: conv.CreatedAt + 1000, Status: model.StatusComplete, Kind: model.KindImage},
		{ID: "m3", Role: model.RoleUser, Content: "hello", Timestamp: conv.CreatedAt + 2000, Status: model.StatusComplete, Kind: model.KindText},
		{ID: "m4", Role: model.RoleAssistant, Content: "Generation failed.", Timestamp: conv.CreatedAt + 3000, Status: model.StatusFailed, Kind: model.KindText},
	}
	return conv
}

func fixedOptions(dir string) *Options {
	return &Options{
		OutputDir: dir,
		Now:       func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) },
	}
}

func TestExportToFile_JSON(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	path, err := ExportToFile(conv, NewJSONExporter(nil), fixedOptions(dir))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "chat_export_chat-123.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(data), "{\n  \"id\": \"chat-123\""), "indented with two spaces")

	var back model.Conversation
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, conv.ID, back.ID)
	require.Equal(t, conv.Title, back.Title)
	require.Len(t, back.Messages, 4)
	require.Equal(t, "data:image/png;base64,AAAA", back.Messages[1].ImageURL)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"id", "title", "messages", "createdAt"} {
		require.Contains(t, raw, key)
	}
}

func TestExportToFile_OverwritesSameID(t *testing.T) {
	dir := t.TempDir()
	conv := sampleConversation()

	first, err := ExportToFile(conv, NewJSONExporter(nil), fixedOptions(dir))
	require.NoError(t, err)
	conv.Title = "Renamed"
	second, err := ExportToFile(conv, NewJSONExporter(nil), fixedOptions(dir))
	require.NoError(t, err)
	require.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExportToFile_Nil(t *testing.T) {
	_, err := ExportToFile(nil, NewJSONExporter(nil), fixedOptions(t.TempDir()))
	require.ErrorIs(t, err, ErrNilConversation)
}

func TestMarkdownExporter(t *testing.T) {
	opts := fixedOptions(t.TempDir())
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(sampleConversation())
	require.NoError(t, err)
	md := string(out)

	require.Contains(t, md, "title: Draw a cat\n")
	require.Contains(t, md, "# Draw a cat\n")
	require.Contains(t, md, "### [User]\n\nDraw a cat")
	require.Contains(t, md, "](data:image/png;base64,AAAA)")
	require.Contains(t, md, "> Generation failed.")
	require.Contains(t, md, "exported: 2025-03-02T09:00:00Z")
	require.NotContains(t, md, "<sub>")
}

func TestForFormat(t *testing.T) {
	e, err := ForFormat("json", nil)
	require.NoError(t, err)
	require.Equal(t, ".json", e.FileExtension())

	e, err = ForFormat("markdown", nil)
	require.NoError(t, err)
	require.Equal(t, ".md", e.FileExtension())
	require.Equal(t, "text/markdown", e.MimeType())

	_, err = ForFormat("html", nil)
	require.Error(t, err)
}

func TestFileName(t *testing.T) {
	require.Equal(t, "chat_export_abc.json", FileName("abc", ".json"))
	require.Equal(t, "chat_export_a-b_c.md", FileName("a/b c", ".md"))
	require.Equal(t, "chat_export_conversation.json", FileName("", ".json"))
}
