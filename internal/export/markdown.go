// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/visionary/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown format. Images are embedded
// as data URIs so the file stays self-contained.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if conv == nil {
		return nil, ErrNilConversation
	}

	var sb strings.Builder

	// YAML frontmatter with metadata
	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
	fmt.Fprintf(&sb, "id: %s\n", conv.ID)
	fmt.Fprintf(&sb, "date: %s\n", conv.Created().Format(time.RFC3339))
	fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
	fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
	sb.WriteString("generator: visionary\n")
	sb.WriteString("---\n\n")

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))
	fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(conv.Created()))
	fmt.Fprintf(&sb, "- **Messages**: %d\n\n---\n\n", len(conv.Messages))

	for i, msg := range conv.Messages {
		label := formatRoleLabel(msg.Role)
		if e.options.IncludeTimestamps {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Time()))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(formatMessageContent(msg))
		sb.WriteString("\n\n")

		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n---\n\n*Exported from Visionary on %s*\n",
		e.options.now().Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// formatRoleLabel returns a formatted label for the message role.
func formatRoleLabel(role model.Role) string {
	switch role {
	case model.RoleUser:
		return "[User]"
	case model.RoleAssistant:
		return "[Assistant]"
	case "":
		return "Unknown"
	default:
		return "[" + role.DisplayName() + "]"
	}
}

// formatMessageContent renders the text and, if present, the image of a
// message. Unfinished and failed answers are marked.
func formatMessageContent(msg *model.Message) string {
	content := strings.TrimSpace(msg.Content)
	switch msg.Status {
	case model.StatusPending, model.StatusStreaming:
		content += "\n\n*(incomplete)*"
	case model.StatusFailed:
		content = "> " + strings.ReplaceAll(content, "\n", "\n> ")
	}
	if msg.HasImage() {
		content += fmt.Sprintf("\n\n![%s](%s)", escapeMarkdown(msg.Preview(40)), msg.ImageURL)
	}
	return strings.TrimSpace(content)
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes special Markdown characters in plain text.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	).Replace(s)
}

// escapeYAML escapes special YAML characters in values.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
