// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// login.go - Email verification sign-in.
//
// The sign-in is local only: a code is mailed (or shown, when mail is not
// configured) and must be typed back. Nothing is stored on success.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jeranaias/visionary/internal/config"
	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/logging"
	"github.com/jeranaias/visionary/internal/mail"
	"github.com/jeranaias/visionary/internal/verify"
)

var errLoginCancelled = errors.New("sign-in cancelled")

func newLoginCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Sign in with an emailed verification code",
		Long: `Collects a username, email and password, then mails a six-digit code.
When email is not configured the code is shown on screen instead.

At the code prompt, type the digits, or r to resend, e to edit the
credentials and q to quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd, flags)
		},
	}
}

func runLogin(cmd *cobra.Command, flags *globalFlags) error {
	cfg, _, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log, logCloser, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer logCloser.Close()

	text := locale.New(cfg.UI.Language)
	flow, err := newVerifyFlow(cfg, text, log)
	if err != nil {
		return err
	}

	in, closeIn, interactive := inputFor(cmd)
	defer closeIn()

	l := &loginPrompt{
		flow: flow,
		text: text,
		in:   in,
		out:  cmd.OutOrStdout(),
	}
	if interactive {
		l.readSecret = func(prompt string) (string, error) {
			fmt.Fprint(l.out, prompt)
			defer fmt.Fprintln(l.out)
			return readPassword()
		}
	}

	user, err := l.run(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(l.out, "%s %s <%s>\n", SuccessStyle.Render("Signed in as"), user.Username, user.Email)
	return nil
}

// newVerifyFlow wires the verification flow from config.
func newVerifyFlow(cfg *config.Config, text *locale.Printer, log zerolog.Logger) (*verify.Flow, error) {
	codes, err := verify.NewCodeSource(cfg.Verification.CodeSource)
	if err != nil {
		return nil, err
	}
	return verify.New(newMailer(cfg, log), text, verify.Options{
		CodeLength:  cfg.Verification.CodeLength,
		Cooldown:    cfg.ResendCooldown(),
		MaxAttempts: cfg.Verification.MaxAttempts,
		Codes:       codes,
	}, log), nil
}

// newMailer returns the configured mail collaborator. Provider "none"
// always reports not configured, which shows the code on screen.
func newMailer(cfg *config.Config, log zerolog.Logger) mail.Mailer {
	if cfg.Email.Provider == "none" {
		return mail.Disabled{}
	}
	return mail.NewEmailJS(mail.EmailJSConfig{
		Endpoint:   cfg.Email.Endpoint,
		PublicKey:  cfg.Email.PublicKey,
		PrivateKey: cfg.Email.PrivateKey,
		ServiceID:  cfg.Email.ServiceID,
		TemplateID: cfg.Email.TemplateID,
		Timeout:    cfg.EmailTimeout(),
	}, log)
}

// =============================================================================
// PROMPTS
// =============================================================================

// loginPrompt drives a verify.Flow from line input.
type loginPrompt struct {
	flow *verify.Flow
	text *locale.Printer
	in   LineReader
	out  io.Writer

	// readSecret reads the password; nil reads it as a normal line.
	readSecret func(prompt string) (string, error)
}

func (l *loginPrompt) run(ctx context.Context) (*verify.User, error) {
	for {
		creds, err := l.readCredentials()
		if err != nil {
			return nil, err
		}
		notice, err := l.flow.SubmitCredentials(ctx, creds)
		if errors.Is(err, verify.ErrMissingCredentials) {
			fmt.Fprintln(l.out, ErrorStyle.Render(err.Error()))
			continue
		}
		if err != nil && notice.Title == "" {
			return nil, err
		}
		fmt.Fprintln(l.out, RenderNotice(notice))

		user, edit, err := l.readCode(ctx)
		if err != nil {
			return nil, err
		}
		if edit {
			if err := l.flow.Edit(); err != nil {
				return nil, err
			}
			continue
		}
		return user, nil
	}
}

func (l *loginPrompt) readCredentials() (verify.Credentials, error) {
	var creds verify.Credentials
	var err error
	if creds.Username, err = l.in.ReadInput("Username: "); err != nil {
		return creds, err
	}
	if creds.Email, err = l.in.ReadInput("Email: "); err != nil {
		return creds, err
	}
	if l.readSecret != nil {
		creds.Password, err = l.readSecret("Password: ")
	} else {
		creds.Password, err = l.in.ReadInput("Password: ")
	}
	return creds, err
}

// readCode loops at the code prompt until the code matches, the user asks
// to edit the credentials, or input ends.
func (l *loginPrompt) readCode(ctx context.Context) (*verify.User, bool, error) {
	for {
		state := l.flow.State()
		prompt := fmt.Sprintf("Code sent to %s [r/e/q]: ", state.Email)
		input, err := l.in.ReadInput(prompt)
		if err != nil {
			return nil, false, err
		}

		switch cmd := strings.ToLower(strings.TrimSpace(input)); cmd {
		case "q", "quit":
			return nil, false, errLoginCancelled
		case "e", "edit":
			return nil, true, nil
		case "r", "resend":
			notice, err := l.flow.Resend(ctx)
			switch {
			case errors.Is(err, verify.ErrCooldownActive):
				fmt.Fprintln(l.out, DimStyle.Render(l.text.T(locale.ResendIn, l.flow.ResendIn())))
			case notice.Title != "":
				fmt.Fprintln(l.out, RenderNotice(notice))
			case err != nil:
				fmt.Fprintln(l.out, ErrorStyle.Render(err.Error()))
			}
		default:
			l.flow.TypeCode(cmd)
			user, err := l.flow.Verify()
			switch {
			case err == nil:
				return user, false, nil
			case errors.Is(err, verify.ErrTooManyAttempts):
				fmt.Fprintln(l.out, ErrorStyle.Render(l.text.T(locale.CodeExpired)))
			case errors.Is(err, verify.ErrWrongCode):
				fmt.Fprintln(l.out, ErrorStyle.Render(l.text.T(locale.WrongCode)))
			default:
				return nil, false, err
			}
		}
	}
}
