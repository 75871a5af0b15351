// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot commands: list, show, export, delete, clear,
// settings, config and version.

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/visionary/internal/config"
	"github.com/jeranaias/visionary/internal/export"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/settings"
)

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, flags *globalFlags, fn func(*Session) error) error {
	s, err := openSession(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// =============================================================================
// CHATS
// =============================================================================

func newListCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved chats, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				snap := s.App.Chats().Snapshot()
				fmt.Fprintln(cmd.OutOrStdout(), renderChatList(snap.Chats, snap.ActiveID, GetTerminalWidth()))
				return nil
			})
		},
	}
}

func newShowCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show [n|id]",
		Short: "Print a chat (the active one by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				c, err := resolveChat(s.App.Chats().Snapshot(), firstArg(args))
				if err != nil {
					return err
				}
				width := GetTerminalWidth()
				md := newMarkdownRenderer(width - 4)
				if !s.Config.UI.RenderMarkdown {
					md = nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTranscript(c, s.Text, md, width))
				return nil
			})
		},
	}
}

func newExportCommand(flags *globalFlags) *cobra.Command {
	var (
		format string
		dir    string
	)
	cmd := &cobra.Command{
		Use:   "export [n|id]",
		Short: "Export a chat to JSON or Markdown",
		Example: `  visionary export              # active chat as JSON in the current directory
  visionary export 2 --format md --dir ~/notes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				c, err := resolveChat(s.App.Chats().Snapshot(), firstArg(args))
				if err != nil {
					return err
				}
				path, err := s.App.Export(c.ID, dir, format)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", export.FormatJSON, "output format (json, md)")
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "output directory")
	return cmd
}

func newDeleteCommand(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <n|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, interactive := inputFor(cmd)
			defer closeIn()
			confirm, err := confirmerFor(yes, in, interactive)
			if err != nil {
				return err
			}
			return withSession(cmd, flags, func(s *Session) error {
				c, err := resolveChat(s.App.Chats().Snapshot(), args[0])
				if err != nil {
					return err
				}
				deleted, err := s.App.DeleteChat(cmd.Context(), c.ID, confirm)
				if err != nil {
					return err
				}
				if deleted {
					fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Deleted")+" "+c.Title)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Cancelled"))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newClearCommand(flags *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all chats (settings are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, closeIn, interactive := inputFor(cmd)
			defer closeIn()
			confirm, err := confirmerFor(yes, in, interactive)
			if err != nil {
				return err
			}
			return withSession(cmd, flags, func(s *Session) error {
				if s.App.ClearAll(cmd.Context(), confirm) {
					fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("All chats deleted"))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), DimStyle.Render("Cancelled"))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// =============================================================================
// SETTINGS
// =============================================================================

func newSettingsCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change generation settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				fmt.Fprintln(cmd.OutOrStdout(), renderSettings(s.App.Settings().Get()))
				return nil
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <model|temperature|ratio> <value>",
		Short: "Change one setting",
		Example: `  visionary settings set model gpt-4o
  visionary settings set temperature 0.3
  visionary settings set ratio 16:9`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				got, err := applySetting(cmd.Context(), s.App.Settings(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], got)
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List known models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, flags, func(s *Session) error {
				fmt.Fprintln(cmd.OutOrStdout(), renderModels(s.App.Settings().Get().Model))
				return nil
			})
		},
	})
	return cmd
}

var errUnknownSetting = errors.New("unknown setting (want model, temperature or ratio)")

// applySetting changes one setting by name and returns the stored value
// as text. Temperatures are clamped, so the stored value may differ from
// the one given.
func applySetting(ctx context.Context, m *settings.Manager, key, value string) (string, error) {
	switch strings.ToLower(key) {
	case "model":
		if err := m.SetModel(ctx, value); err != nil {
			return "", err
		}
		return m.Get().Model, nil
	case "temperature", "temp":
		t, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q", settings.ErrInvalidTemperature, value)
		}
		got, err := m.SetTemperature(ctx, t)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(got, 'f', -1, 64), nil
	case "ratio", "aspect", "aspect_ratio":
		if err := m.SetAspectRatio(ctx, value); err != nil {
			return "", err
		}
		return string(m.Get().ImageAspectRatio), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownSetting, key)
	}
}

func renderSettings(s model.Settings) string {
	info := model.GetModelInfo(s.Model)
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s %s\n", RenderLabel("Model"), ValueStyle.Render(info.Name), DimStyle.Render("("+info.ID+", "+info.Provider+")"))
	fmt.Fprintf(&b, "%s%s\n", RenderLabel("Temperature"), ValueStyle.Render(strconv.FormatFloat(s.Temperature, 'f', -1, 64)))
	fmt.Fprintf(&b, "%s%s", RenderLabel("Aspect ratio"), ValueStyle.Render(string(s.ImageAspectRatio)))
	return b.String()
}

func renderModels(current string) string {
	var b strings.Builder
	for i, m := range model.Models {
		marker := "  "
		if m.ID == current {
			marker = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(&b, "%s%-24s %-8s %s", marker, m.ID, m.Provider, DimStyle.Render(m.Description))
		if i < len(model.Models)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// =============================================================================
// CONFIG
// =============================================================================

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration (secrets redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configPath
			if path == "" {
				var err error
				if path, err = config.Locate(); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default config file if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := config.ConfigPathTOML()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(config.Default()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("Wrote")+" "+path)
			return nil
		},
	})
	return cmd
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Version"), Version)
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Commit"), GitCommit)
			fmt.Fprintf(out, "%s%s\n", RenderLabel("Built"), BuildDate)
			fmt.Fprintf(out, "%s%s %s/%s\n", RenderLabel("Go"), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
