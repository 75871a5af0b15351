// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and session bootstrap.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/visionary/internal/app"
	"github.com/jeranaias/visionary/internal/chat"
	"github.com/jeranaias/visionary/internal/config"
	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/logging"
	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
	"github.com/jeranaias/visionary/internal/provider/gemini"
	"github.com/jeranaias/visionary/internal/provider/openai"
	"github.com/jeranaias/visionary/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	lang       string
	logLevel   string
	backend    string
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree. Running it without a
// subcommand starts the interactive chat.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "visionary",
		Short: "Visionary - a local chat client for Gemini and OpenAI models",
		Long: `Visionary keeps your conversations on this machine and streams answers
from Gemini or an OpenAI-compatible endpoint. Prefix a prompt with /image
to generate a picture instead of text.

Configuration lives in ~/.visionary/config.toml. API keys can also come
from GEMINI_API_KEY, OPENAI_API_KEY or VISIONARY_* variables.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default ~/.visionary/config.toml)")
	pf.StringVar(&flags.lang, "lang", "", "interface language (en, ru)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&flags.backend, "storage", "", "storage backend (file, sqlite, bolt, memory)")

	root.AddCommand(
		newChatCommand(flags),
		newLoginCommand(flags),
		newListCommand(flags),
		newShowCommand(flags),
		newExportCommand(flags),
		newDeleteCommand(flags),
		newClearCommand(flags),
		newSettingsCommand(flags),
		newConfigCommand(flags),
		newVersionCommand(),
	)
	return root
}

// =============================================================================
// CONFIG
// =============================================================================

// loadConfig reads the config named by --config, or the default one, and
// applies flag overrides on top. It returns the path watched for changes.
func loadConfig(f *globalFlags) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if f.configPath != "" {
		path = f.configPath
		cfg, err = config.LoadFromPath(path)
	} else {
		if path, err = config.Locate(); err != nil {
			return nil, "", err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	if f.lang != "" {
		cfg.UI.Language = f.lang
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.backend != "" {
		cfg.Storage.Backend = f.backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the bootstrapped runtime a command works with.
type Session struct {
	Config     *config.Config
	ConfigPath string
	Holder     *config.Holder
	Log        zerolog.Logger
	Text       *locale.Printer
	App        *app.App

	// Done receives every finished generation.
	Done <-chan app.Generation

	logCloser io.Closer
}

// openSession loads config, logging, storage and providers and opens the app.
func openSession(ctx context.Context, f *globalFlags) (*Session, error) {
	cfg, path, err := loadConfig(f)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	log, logCloser, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	text := locale.New(cfg.UI.Language)

	kv, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Dir)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	store := storage.New(kv, log)

	holder := config.NewHolder(cfg)
	router := newRouter(cfg, holder, log)

	// Buffered so a generation that nobody waits for never blocks.
	done := make(chan app.Generation, 16)
	a, err := app.Open(ctx, app.Deps{
		Store:             store,
		Text:              router,
		Images:            router,
		Locale:            text,
		SystemInstruction: cfg.Gemini.SystemInstruction,
		OnDone: func(g app.Generation) {
			select {
			case done <- g:
			default:
			}
		},
		Log: log,
	})
	if err != nil {
		store.Close()
		logCloser.Close()
		return nil, err
	}

	log.Debug().
		Str("storage", cfg.Storage.Backend).
		Str("lang", text.Language().String()).
		Str("config", path).
		Msg("session_opened")

	return &Session{
		Config:     cfg,
		ConfigPath: path,
		Holder:     holder,
		Log:        log,
		Text:       text,
		App:        a,
		Done:       done,
		logCloser:  logCloser,
	}, nil
}

// Close stops generations, closes storage and flushes the log.
func (s *Session) Close() error {
	err := s.App.Close()
	if cerr := s.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}

// newRouter builds both provider backends. Keys are read from holder on
// every request so config reloads take effect without a restart.
func newRouter(cfg *config.Config, holder *config.Holder, log zerolog.Logger) *provider.Router {
	return &provider.Router{
		Gemini: gemini.New(holder.GeminiKey, gemini.Options{
			BaseURL:        cfg.Gemini.BaseURL,
			ImageModel:     cfg.Gemini.ImageModel,
			ThinkingBudget: int32(cfg.Gemini.ThinkingBudget),
			Timeout:        cfg.GeminiTimeout(),
		}, log),
		OpenAI: openai.New(holder.OpenAIKey, openai.Options{
			BaseURL:    cfg.OpenAI.BaseURL,
			ImageModel: cfg.OpenAI.ImageModel,
			Timeout:    cfg.OpenAITimeout(),
		}, log),
	}
}

// =============================================================================
// HELPERS
// =============================================================================

var errAmbiguousChat = errors.New("chat reference matches more than one chat")

// resolveChat finds a conversation by its 1-based list position or by a
// unique id prefix.
func resolveChat(snap chat.Snapshot, ref string) (*model.Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if c := snap.Active(); c != nil {
			return c, nil
		}
		return nil, app.ErrNoActiveChat
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(snap.Chats) {
		return snap.Chats[n-1], nil
	}
	var found *model.Conversation
	for _, c := range snap.Chats {
		if strings.HasPrefix(c.ID, ref) {
			if found != nil {
				return nil, fmt.Errorf("%w: %q", errAmbiguousChat, ref)
			}
			found = c
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", chat.ErrNotFound, ref)
	}
	return found, nil
}

// inputFor picks a line reader for cmd: liner on a terminal, a plain
// buffered reader otherwise.
func inputFor(cmd *cobra.Command) (LineReader, func(), bool) {
	if cmd.InOrStdin() == os.Stdin && IsTTY() {
		c := NewChatCLI()
		return c, c.Close, true
	}
	return newBufferedReader(cmd.InOrStdin(), cmd.OutOrStdout()), func() {}, false
}
