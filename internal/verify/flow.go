// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package verify implements the local email verification flow.
//
// The flow has two interactive steps. In the credentials step the user
// supplies a name, an email address and a password; submitting generates a
// six-digit code, dispatches it by email and moves to the verification
// step whatever the dispatch outcome. In the verification step the user
// enters the code digit by digit; a match completes the flow exactly once,
// a mismatch clears the entry. Resending is gated by a cooldown that only
// starts after a successful dispatch.
//
// When the mail service is not configured the code is shown in a warning
// notice instead, so the flow remains usable as a demo.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/mail"
)

// =============================================================================
// TYPES
// =============================================================================

// Step is the current screen of the flow.
type Step string

const (
	StepCredentials  Step = "credentials"
	StepVerification Step = "verification"
	StepDone         Step = "done"
)

// NoticeKind classifies a notification.
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notice is a transient message for the user.
type Notice struct {
	Kind  NoticeKind
	Title string
	Body  string
}

// Credentials are collected in the first step. The password is only
// checked for presence.
type Credentials struct {
	Username string
	Email    string
	Password string
}

// User is the result of a successful verification.
type User struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Errors returned by Flow operations.
var (
	ErrMissingCredentials = errors.New("username, email and password are required")
	ErrWrongStep          = errors.New("operation not allowed in the current step")
	ErrCooldownActive     = errors.New("resend cooldown active")
	ErrWrongCode          = errors.New("verification code does not match")
	ErrTooManyAttempts    = errors.New("too many attempts, request a new code")
	ErrAlreadyVerified    = errors.New("already verified")
	ErrSendInProgress     = errors.New("a code is already being sent")
)

// Options tune the flow. Zero values select defaults.
type Options struct {
	// CodeLength is the number of digits; default 6.
	CodeLength int
	// Cooldown is the resend delay after a successful dispatch; default 60s.
	Cooldown time.Duration
	// MaxAttempts invalidates the code after this many wrong entries;
	// 0 allows unlimited attempts.
	MaxAttempts int
	// Codes generates codes; default RandomCodes.
	Codes CodeSource
	// Now returns the current time; default time.Now.
	Now func() time.Time
	// Notify receives notices; may be nil.
	Notify func(Notice)
}

// State is a read-only view of the flow.
type State struct {
	Step     Step
	Email    string
	Digits   []string
	Focus    int
	Attempts int
	// ResendIn is the number of whole seconds until resend is allowed.
	ResendIn int
	Sending  bool
}

// =============================================================================
// FLOW
// =============================================================================

// Flow is the verification state machine. It is safe for concurrent use.
type Flow struct {
	mu       sync.Mutex
	opts     Options
	step     Step
	creds    Credentials
	code     string
	digits   []string
	focus    int
	attempts int
	sending  bool
	limiter  *rate.Limiter

	mailer mail.Mailer
	text   *locale.Printer
	log    zerolog.Logger
}

// New creates a flow in the credentials step.
func New(mailer mail.Mailer, text *locale.Printer, opts Options, log zerolog.Logger) *Flow {
	if opts.CodeLength <= 0 {
		opts.CodeLength = 6
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 60 * time.Second
	}
	if opts.Codes == nil {
		opts.Codes = RandomCodes{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if mailer == nil {
		mailer = mail.Disabled{}
	}
	f := &Flow{
		opts:   opts,
		step:   StepCredentials,
		digits: make([]string, opts.CodeLength),
		mailer: mailer,
		text:   text,
		log:    log.With().Str("component", "verify").Logger(),
	}
	f.limiter = f.newLimiter()
	return f
}

func (f *Flow) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Every(f.opts.Cooldown), 1)
}

// State returns a snapshot of the flow.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	digits := make([]string, len(f.digits))
	copy(digits, f.digits)
	return State{
		Step:     f.step,
		Email:    f.creds.Email,
		Digits:   digits,
		Focus:    f.focus,
		Attempts: f.attempts,
		ResendIn: f.resendInLocked(f.opts.Now()),
		Sending:  f.sending,
	}
}

// =============================================================================
// CREDENTIALS STEP
// =============================================================================

// SubmitCredentials records the credentials, generates and dispatches a
// code and moves to the verification step. The step changes even if the
// dispatch failed; the returned Notice describes the dispatch outcome.
func (f *Flow) SubmitCredentials(ctx context.Context, creds Credentials) (Notice, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Username == "" || creds.Email == "" || creds.Password == "" {
		return Notice{}, ErrMissingCredentials
	}

	f.mu.Lock()
	if f.step != StepCredentials {
		f.mu.Unlock()
		return Notice{}, ErrWrongStep
	}
	if f.sending {
		f.mu.Unlock()
		return Notice{}, ErrSendInProgress
	}
	f.creds = creds
	// A fresh submission is not subject to an earlier cooldown.
	f.limiter = f.newLimiter()
	slot := f.reserveLocked(f.opts.Now())
	f.sending = true
	f.mu.Unlock()

	notice, err := f.dispatch(ctx, slot)

	f.mu.Lock()
	f.step = StepVerification
	f.sending = false
	f.mu.Unlock()
	return notice, err
}

// Edit returns from the verification step to the credentials step.
func (f *Flow) Edit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepVerification {
		return ErrWrongStep
	}
	f.step = StepCredentials
	return nil
}

// =============================================================================
// DISPATCH
// =============================================================================

// Resend generates a new code and dispatches it, if the cooldown allows.
func (f *Flow) Resend(ctx context.Context) (Notice, error) {
	f.mu.Lock()
	if f.step != StepVerification {
		f.mu.Unlock()
		return Notice{}, ErrWrongStep
	}
	if f.sending {
		f.mu.Unlock()
		return Notice{}, ErrCooldownActive
	}
	now := f.opts.Now()
	slot := f.reserveLocked(now)
	if !slot.r.OK() || slot.r.DelayFrom(now) > 0 {
		slot.refund()
		f.mu.Unlock()
		return Notice{}, fmt.Errorf("%w: %ds left", ErrCooldownActive, f.ResendIn())
	}
	f.sending = true
	f.mu.Unlock()

	notice, err := f.dispatch(ctx, slot)

	f.mu.Lock()
	f.sending = false
	f.mu.Unlock()
	return notice, err
}

// cooldownSlot is the limiter token taken for one dispatch.
type cooldownSlot struct {
	r  *rate.Reservation
	at time.Time
}

// refund returns the token as if it had never been taken.
func (s cooldownSlot) refund() {
	s.r.CancelAt(s.at)
}

func (f *Flow) reserveLocked(now time.Time) cooldownSlot {
	return cooldownSlot{r: f.limiter.ReserveN(now, 1), at: now}
}

// dispatch generates a code and sends it. Callers set sending before and
// clear it after. The slot is refunded unless the send succeeds, so only a
// delivered email starts the cooldown.
func (f *Flow) dispatch(ctx context.Context, slot cooldownSlot) (Notice, error) {
	code, err := f.opts.Codes.Next()
	if err != nil {
		slot.refund()
		return f.notify(Notice{Kind: NoticeError, Title: f.text.T(locale.SendFailTitle), Body: f.text.T(locale.SendFailBody)}), err
	}

	f.mu.Lock()
	f.code = code
	f.attempts = 0
	f.clearDigitsLocked()
	creds := f.creds
	f.mu.Unlock()

	err = f.mailer.SendVerificationCode(ctx, mail.Envelope{
		ToEmail: creds.Email,
		ToName:  creds.Username,
		Body:    f.text.T(locale.EmailBody, code),
		Code:    code,
	})

	switch {
	case err == nil:
		f.log.Info().Msg("code_sent")
		return f.notify(Notice{Kind: NoticeSuccess, Title: f.text.T(locale.CodeSentTitle), Body: f.text.T(locale.CodeSentBody)}), nil

	case errors.Is(err, mail.ErrNotConfigured):
		slot.refund()
		f.log.Warn().Msg("code_demo_mode")
		return f.notify(Notice{Kind: NoticeWarning, Title: f.text.T(locale.DemoModeTitle), Body: f.text.T(locale.DemoModeBody, code)}), nil

	default:
		slot.refund()
		f.log.Error().Err(err).Msg("code_send_failed")
		return f.notify(Notice{Kind: NoticeError, Title: f.text.T(locale.SendFailTitle), Body: f.text.T(locale.SendFailBody)}), err
	}
}

func (f *Flow) notify(n Notice) Notice {
	if f.opts.Notify != nil {
		f.opts.Notify(n)
	}
	return n
}

// ResendIn returns the whole seconds until a resend is allowed, 0 if now.
func (f *Flow) ResendIn() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resendInLocked(f.opts.Now())
}

func (f *Flow) resendInLocked(now time.Time) int {
	tokens := f.limiter.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	// Tolerate float drift so an exact second does not round up.
	return int(math.Ceil((1-tokens)*f.opts.Cooldown.Seconds() - 1e-6))
}

// Countdown emits the remaining cooldown once per second until it reaches
// zero or ctx is done, then closes the channel.
func (f *Flow) Countdown(ctx context.Context) <-chan int {
	out := make(chan int, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			left := f.ResendIn()
			select {
			case out <- left:
			case <-ctx.Done():
				return
			}
			if left == 0 {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// =============================================================================
// CODE ENTRY
// =============================================================================

// EnterDigit sets the digit at index. Only the last character of value is
// kept; anything but a single digit or the empty string is ignored. A
// non-empty digit moves focus to the next cell. It reports whether the
// input was accepted.
func (f *Flow) EnterDigit(index int, value string) bool {
	if value != "" {
		r, _ := utf8.DecodeLastRuneInString(value)
		value = string(r)
	}
	if value != "" && (value[0] < '0' || value[0] > '9' || len(value) != 1) {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepVerification || index < 0 || index >= len(f.digits) {
		return false
	}
	f.digits[index] = value
	f.focus = index
	if value != "" && index < len(f.digits)-1 {
		f.focus = index + 1
	}
	return true
}

// Backspace clears the digit at index, or moves focus to the previous cell
// when it is already empty.
func (f *Flow) Backspace(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.step != StepVerification || index < 0 || index >= len(f.digits) {
		return
	}
	if f.digits[index] != "" {
		f.digits[index] = ""
		f.focus = index
		return
	}
	if index > 0 {
		f.focus = index - 1
	}
}

// TypeCode enters a whole code starting at the first cell, as if typed.
func (f *Flow) TypeCode(code string) {
	f.mu.Lock()
	f.clearDigitsLocked()
	f.mu.Unlock()
	i := 0
	for _, r := range code {
		if i >= f.opts.CodeLength {
			break
		}
		if f.EnterDigit(i, string(r)) {
			i++
		}
	}
}

func (f *Flow) clearDigitsLocked() {
	for i := range f.digits {
		f.digits[i] = ""
	}
	f.focus = 0
}

// =============================================================================
// VERIFY
// =============================================================================

// Verify compares the entered digits with the last generated code. On a
// match the flow completes and the user is returned; this happens at most
// once. On a mismatch the digits are cleared and focus returns to the
// first cell.
func (f *Flow) Verify() (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.step {
	case StepDone:
		return nil, ErrAlreadyVerified
	case StepVerification:
	default:
		return nil, ErrWrongStep
	}

	entered := strings.Join(f.digits, "")
	if f.code != "" && entered == f.code {
		f.step = StepDone
		f.code = ""
		f.log.Info().Int("attempts", f.attempts+1).Msg("verified")
		return &User{Username: f.creds.Username, Email: f.creds.Email}, nil
	}

	f.attempts++
	f.clearDigitsLocked()
	f.log.Info().Int("attempts", f.attempts).Msg("wrong_code")

	if f.code == "" {
		return nil, ErrTooManyAttempts
	}
	if f.opts.MaxAttempts > 0 && f.attempts >= f.opts.MaxAttempts {
		f.code = ""
		return nil, ErrTooManyAttempts
	}
	return nil, ErrWrongCode
}
