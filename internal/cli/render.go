// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Transcript, list and image output for the terminal.

package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/gabriel-vasile/mimetype"
	"github.com/muesli/termenv"

	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// newMarkdownRenderer returns a glamour renderer sized to width, or nil
// when output is not a color terminal.
func newMarkdownRenderer(width int) *glamour.TermRenderer {
	if !ColorsEnabled() {
		return nil
	}
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown renders content with r, falling back to the raw text.
func renderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

// =============================================================================
// MESSAGES
// =============================================================================

// messageBody is what the terminal shows for msg. Pending placeholders
// show the localized progress text for their kind.
func messageBody(msg *model.Message, text *locale.Printer) string {
	if msg.IsPending() {
		if msg.Kind == model.KindImage {
			return text.T(locale.GeneratingImg)
		}
		return text.T(locale.Thinking)
	}
	body := msg.Content
	if msg.HasImage() {
		body += "\n" + DimStyle.Render(describeImage(msg.ImageURL))
	}
	return body
}

// renderTranscript formats a whole conversation.
func renderTranscript(conv *model.Conversation, text *locale.Printer, r *glamour.TermRenderer, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(conv.Title))
	b.WriteString("\n")
	b.WriteString(RenderSeparator(min(width, 70)))
	b.WriteString("\n")
	for _, msg := range conv.Messages {
		b.WriteString(RenderRole(msg.Role))
		b.WriteString(DimStyle.Render("  " + msg.Time().Format("15:04")))
		b.WriteString("\n")
		body := messageBody(msg, text)
		if msg.Role == model.RoleAssistant && msg.Status == model.StatusComplete {
			body = renderMarkdown(r, body)
		} else if msg.Status == model.StatusFailed {
			body = ErrorStyle.Render(body)
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// =============================================================================
// CONVERSATION LIST
// =============================================================================

// shortID is the prefix of id shown in lists and accepted by /switch.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// renderChatList formats conversations one per line, numbered from 1,
// with the active one marked.
func renderChatList(chats []*model.Conversation, activeID string, width int) string {
	if len(chats) == 0 {
		return DimStyle.Render("No chats yet. Use /new to start one.")
	}
	const fixed = 2 + 4 + 10 + 10 + 18 // marker, index, id, count, date
	titleWidth := max(width-fixed, 12)

	var b strings.Builder
	for i, c := range chats {
		marker := "  "
		if c.ID == activeID {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(&b, "%s%-4s%s  %s  %s  %s\n",
			marker,
			fmt.Sprintf("%d.", i+1),
			DimStyle.Render(shortID(c.ID)),
			util.PadWidth(util.TruncateWidth(util.SingleLine(c.Title), titleWidth), titleWidth),
			DimStyle.Render(fmt.Sprintf("%3d msgs", c.MessageCount())),
			DimStyle.Render(c.Created().Format("2006-01-02 15:04")),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// IMAGES
// =============================================================================

var errNotDataURI = errors.New("image is not a base64 data URI")

// decodeDataURI splits a data:<mime>;base64,<payload> URI.
func decodeDataURI(uri string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errNotDataURI
	}
	mime, ok = strings.CutSuffix(header, ";base64")
	if !ok {
		return "", nil, errNotDataURI
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode image: %w", err)
	}
	return mime, data, nil
}

// describeImage summarizes an image URI, since terminals cannot show it.
func describeImage(uri string) string {
	mime, data, err := decodeDataURI(uri)
	if err != nil {
		return "[image: " + util.TruncateRunes(uri, 60) + "]"
	}
	return fmt.Sprintf("[image: %s, %.1f KB, /save to write it to disk]", mime, float64(len(data))/1024)
}

// imageExtension picks a file extension for mime, defaulting to .png.
func imageExtension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil && m.Extension() != "" {
		return m.Extension()
	}
	return ".png"
}

// saveImage writes the image in uri to path. When path is empty a name
// is derived from the message id.
func saveImage(uri, path, msgID string) (string, error) {
	mime, data, err := decodeDataURI(uri)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = "visionary_" + shortID(msgID) + imageExtension(mime)
	}
	if err := util.AtomicWriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
