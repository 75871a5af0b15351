// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for CLI output.
//
// Colors are disabled for non-TTY output and when NO_COLOR is set.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/verify"
)

func init() {
	lipgloss.SetColorProfile(GetColorProfile())
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and headers
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")) // Cyan

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(14)

	// ValueStyle is used for regular values and text
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	// SuccessStyle is used for success messages
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	// ErrorStyle is used for error messages and failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	// WarningStyle is used for warnings and demo-mode notices
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	// SeparatorStyle is used for visual separators
	SeparatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// UserStyle labels the user's turns in a transcript
	UserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("75")).
			Bold(true)

	// AssistantStyle labels the assistant's turns in a transcript
	AssistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderSeparator renders a horizontal separator line of the given width.
func RenderSeparator(width int) string {
	if width <= 0 {
		width = 70
	}
	return SeparatorStyle.Render(strings.Repeat("-", width))
}

// RenderLabel renders a label with consistent width.
func RenderLabel(label string) string {
	return LabelStyle.Render(label)
}

// RenderRole renders a message author label.
func RenderRole(role model.Role) string {
	if role == model.RoleUser {
		return UserStyle.Render(role.DisplayName())
	}
	return AssistantStyle.Render(role.DisplayName())
}

// RenderNotice renders a verification notice with the style of its kind.
func RenderNotice(n verify.Notice) string {
	style := SuccessStyle
	switch n.Kind {
	case verify.NoticeWarning:
		style = WarningStyle
	case verify.NoticeError:
		style = ErrorStyle
	}
	if n.Body == "" {
		return style.Render(n.Title)
	}
	return style.Render(n.Title) + "\n" + n.Body
}
