// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package verify

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionary/internal/locale"
	"github.com/jeranaias/visionary/internal/mail"
)

// =============================================================================
// FAKES
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeMailer struct {
	err  error
	sent []mail.Envelope
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, env mail.Envelope) error {
	m.sent = append(m.sent, env)
	return m.err
}

type fixedCodes struct {
	codes []string
	i     int
}

func (f *fixedCodes) Next() (string, error) {
	c := f.codes[f.i%len(f.codes)]
	f.i++
	return c, nil
}

var creds = Credentials{Username: "ann", Email: "ann@example.com", Password: "secret"}

func newFlow(t *testing.T, mailer mail.Mailer, opts Options) (*Flow, *fakeClock, *[]Notice) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	var notices []Notice
	opts.Now = clock.Now
	opts.Notify = func(n Notice) { notices = append(notices, n) }
	if opts.Codes == nil {
		opts.Codes = &fixedCodes{codes: []string{"123456", "654321"}}
	}
	return New(mailer, locale.New("en"), opts, zerolog.Nop()), clock, &notices
}

// =============================================================================
// CREDENTIALS STEP
// =============================================================================

func TestSubmitCredentials_Success(t *testing.T) {
	m := &fakeMailer{}
	f, _, notices := newFlow(t, m, Options{})

	n, err := f.SubmitCredentials(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, NoticeSuccess, n.Kind)
	require.Len(t, *notices, 1)

	st := f.State()
	require.Equal(t, StepVerification, st.Step)
	require.Equal(t, 60, st.ResendIn)

	require.Len(t, m.sent, 1)
	require.Equal(t, "ann@example.com", m.sent[0].ToEmail)
	require.Equal(t, "ann", m.sent[0].ToName)
	require.Equal(t, "123456", m.sent[0].Code)
	require.Contains(t, m.sent[0].Body, "123456")
}

func TestSubmitCredentials_Missing(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	for _, c := range []Credentials{
		{Email: "a@b.c", Password: "p"},
		{Username: "a", Password: "p"},
		{Username: "a", Email: "a@b.c"},
	} {
		_, err := f.SubmitCredentials(context.Background(), c)
		require.ErrorIs(t, err, ErrMissingCredentials)
	}
	require.Equal(t, StepCredentials, f.State().Step)
}

func TestSubmitCredentials_NotConfiguredShowsCode(t *testing.T) {
	f, _, _ := newFlow(t, mail.Disabled{}, Options{})

	n, err := f.SubmitCredentials(context.Background(), creds)
	require.NoError(t, err)
	require.Equal(t, NoticeWarning, n.Kind)
	require.Contains(t, n.Body, "123456")

	st := f.State()
	require.Equal(t, StepVerification, st.Step)
	require.Zero(t, st.ResendIn, "cooldown starts only after a delivered email")

	f.TypeCode("123456")
	user, err := f.Verify()
	require.NoError(t, err)
	require.Equal(t, &User{Username: "ann", Email: "ann@example.com"}, user)
}

func TestSubmitCredentials_SendFailureStillAdvances(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{err: errors.New("smtp down")}, Options{})

	n, err := f.SubmitCredentials(context.Background(), creds)
	require.Error(t, err)
	require.Equal(t, NoticeError, n.Kind)
	require.Equal(t, StepVerification, f.State().Step)
	require.Zero(t, f.ResendIn())
}

// gatedMailer blocks each send until release is closed.
type gatedMailer struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	sent    int
}

func (m *gatedMailer) SendVerificationCode(_ context.Context, _ mail.Envelope) error {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
	m.entered <- struct{}{}
	<-m.release
	return nil
}

func TestSubmitCredentials_RejectedWhileSending(t *testing.T) {
	m := &gatedMailer{entered: make(chan struct{}, 2), release: make(chan struct{})}
	f, _, _ := newFlow(t, m, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitCredentials(context.Background(), creds)
		done <- err
	}()
	<-m.entered
	require.True(t, f.State().Sending)

	_, err := f.SubmitCredentials(context.Background(), creds)
	require.ErrorIs(t, err, ErrSendInProgress)

	close(m.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, m.sent)

	st := f.State()
	require.Equal(t, StepVerification, st.Step)
	require.False(t, st.Sending)
}

func TestEditReturnsToCredentials(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	require.ErrorIs(t, f.Edit(), ErrWrongStep)

	_, err := f.SubmitCredentials(context.Background(), creds)
	require.NoError(t, err)
	require.NoError(t, f.Edit())
	require.Equal(t, StepCredentials, f.State().Step)

	// Resubmitting is not blocked by the earlier cooldown.
	_, err = f.SubmitCredentials(context.Background(), creds)
	require.NoError(t, err)
}

// =============================================================================
// RESEND
// =============================================================================

func TestResend_Cooldown(t *testing.T) {
	m := &fakeMailer{}
	f, clock, _ := newFlow(t, m, Options{})
	ctx := context.Background()

	_, err := f.SubmitCredentials(ctx, creds)
	require.NoError(t, err)

	_, err = f.Resend(ctx)
	require.ErrorIs(t, err, ErrCooldownActive)
	require.Len(t, m.sent, 1)

	clock.Advance(59 * time.Second)
	require.Equal(t, 1, f.ResendIn())
	_, err = f.Resend(ctx)
	require.ErrorIs(t, err, ErrCooldownActive)

	clock.Advance(time.Second)
	require.Zero(t, f.ResendIn())
	_, err = f.Resend(ctx)
	require.NoError(t, err)
	require.Len(t, m.sent, 2)
	require.Equal(t, "654321", m.sent[1].Code)
	require.Equal(t, 60, f.ResendIn())
}

func TestResend_AfterFailureImmediatelyAllowed(t *testing.T) {
	m := &fakeMailer{err: errors.New("boom")}
	f, _, _ := newFlow(t, m, Options{})
	ctx := context.Background()

	_, _ = f.SubmitCredentials(ctx, creds)
	m.err = nil
	_, err := f.Resend(ctx)
	require.NoError(t, err)
	require.Len(t, m.sent, 2)
}

func TestResend_WrongStep(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	_, err := f.Resend(context.Background())
	require.ErrorIs(t, err, ErrWrongStep)
}

func TestResend_InvalidatesOldCode(t *testing.T) {
	f, clock, _ := newFlow(t, &fakeMailer{}, Options{})
	ctx := context.Background()
	_, _ = f.SubmitCredentials(ctx, creds)
	clock.Advance(time.Minute)
	_, err := f.Resend(ctx)
	require.NoError(t, err)

	f.TypeCode("123456")
	_, err = f.Verify()
	require.ErrorIs(t, err, ErrWrongCode)

	f.TypeCode("654321")
	_, err = f.Verify()
	require.NoError(t, err)
}

// =============================================================================
// CODE ENTRY
// =============================================================================

func TestEnterDigit(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	require.False(t, f.EnterDigit(0, "1"), "digits are ignored before the verification step")

	_, _ = f.SubmitCredentials(context.Background(), creds)

	require.True(t, f.EnterDigit(0, "7"))
	require.Equal(t, 1, f.State().Focus)

	require.True(t, f.EnterDigit(1, "34"), "only the last character is kept")
	require.Equal(t, "4", f.State().Digits[1])
	require.Equal(t, 2, f.State().Focus)

	require.False(t, f.EnterDigit(2, "a"))
	require.Equal(t, "", f.State().Digits[2])

	require.True(t, f.EnterDigit(5, "9"))
	require.Equal(t, 5, f.State().Focus, "focus stays on the last cell")

	require.False(t, f.EnterDigit(6, "1"))
	require.False(t, f.EnterDigit(-1, "1"))
}

func TestBackspace(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	_, _ = f.SubmitCredentials(context.Background(), creds)

	f.EnterDigit(0, "1")
	f.EnterDigit(1, "2")

	f.Backspace(2) // empty cell: move back
	require.Equal(t, 1, f.State().Focus)

	f.Backspace(1) // filled cell: clear it
	require.Equal(t, "", f.State().Digits[1])
	require.Equal(t, 1, f.State().Focus)

	f.Backspace(1)
	require.Equal(t, 0, f.State().Focus)

	f.Backspace(0)
	f.Backspace(0)
	require.Equal(t, 0, f.State().Focus)
}

// =============================================================================
// VERIFY
// =============================================================================

func TestVerify_MismatchClearsEntry(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	_, _ = f.SubmitCredentials(context.Background(), creds)

	for _, wrong := range []string{"000000", "123457", "999999", "12345"} {
		f.TypeCode(wrong)
		user, err := f.Verify()
		require.Nil(t, user)
		require.ErrorIs(t, err, ErrWrongCode)

		st := f.State()
		require.Equal(t, StepVerification, st.Step)
		require.Equal(t, []string{"", "", "", "", "", ""}, st.Digits)
		require.Equal(t, 0, st.Focus)
	}
	require.Equal(t, 4, f.State().Attempts)
}

func TestVerify_SuccessExactlyOnce(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	_, _ = f.SubmitCredentials(context.Background(), creds)

	f.TypeCode("123456")
	user, err := f.Verify()
	require.NoError(t, err)
	require.NotNil(t, user)
	require.Equal(t, StepDone, f.State().Step)

	user, err = f.Verify()
	require.Nil(t, user)
	require.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestVerify_MaxAttempts(t *testing.T) {
	f, clock, _ := newFlow(t, &fakeMailer{}, Options{MaxAttempts: 2})
	ctx := context.Background()
	_, _ = f.SubmitCredentials(ctx, creds)

	f.TypeCode("000000")
	_, err := f.Verify()
	require.ErrorIs(t, err, ErrWrongCode)
	f.TypeCode("000001")
	_, err = f.Verify()
	require.ErrorIs(t, err, ErrTooManyAttempts)

	f.TypeCode("123456")
	_, err = f.Verify()
	require.ErrorIs(t, err, ErrTooManyAttempts, "the correct code no longer works")

	clock.Advance(time.Minute)
	_, err = f.Resend(ctx)
	require.NoError(t, err)
	f.TypeCode("654321")
	_, err = f.Verify()
	require.NoError(t, err)
}

func TestVerify_UnlimitedByDefault(t *testing.T) {
	f, _, _ := newFlow(t, &fakeMailer{}, Options{})
	_, _ = f.SubmitCredentials(context.Background(), creds)
	for i := 0; i < 50; i++ {
		f.TypeCode("000000")
		_, err := f.Verify()
		require.ErrorIs(t, err, ErrWrongCode)
	}
	f.TypeCode("123456")
	_, err := f.Verify()
	require.NoError(t, err)
}

func TestCountdown(t *testing.T) {
	f, _, _ := newFlow(t, mail.Disabled{}, Options{})
	_, _ = f.SubmitCredentials(context.Background(), creds)

	ch := f.Countdown(context.Background())
	left, ok := <-ch
	require.True(t, ok)
	require.Zero(t, left)
	_, ok = <-ch
	require.False(t, ok)
}

// =============================================================================
// CODE SOURCES
// =============================================================================

func TestRandomCodes_Range(t *testing.T) {
	var src RandomCodes
	for i := 0; i < 500; i++ {
		code, err := src.Next()
		require.NoError(t, err)
		require.Len(t, code, 6)
		n, err := strconv.Atoi(code)
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, 100000)
		require.LessOrEqual(t, n, 999999)
	}
}

func TestHOTPCodes(t *testing.T) {
	src, err := NewHOTPCodes()
	require.NoError(t, err)
	a, err := src.Next()
	require.NoError(t, err)
	b, err := src.Next()
	require.NoError(t, err)
	require.Len(t, a, 6)
	require.Len(t, b, 6)
	_, err = strconv.Atoi(a)
	require.NoError(t, err)
}

func TestNewCodeSource(t *testing.T) {
	src, err := NewCodeSource("")
	require.NoError(t, err)
	require.IsType(t, RandomCodes{}, src)

	src, err = NewCodeSource("hotp")
	require.NoError(t, err)
	require.IsType(t, &HOTPCodes{}, src)

	_, err = NewCodeSource("sms")
	require.Error(t, err)
}
