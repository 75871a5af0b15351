// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mail sends verification codes through a transactional email
// service.
package mail

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when the mail service has no usable keys.
// Callers treat it as a recoverable demo condition, not a failure.
var ErrNotConfigured = errors.New("email service is not configured with real API keys")

// Envelope is one verification email.
type Envelope struct {
	ToEmail string
	ToName  string
	// Body is the localized message containing the code.
	Body string
	Code string
}

// Mailer delivers verification emails.
type Mailer interface {
	SendVerificationCode(ctx context.Context, env Envelope) error
}

// Disabled is a Mailer that always reports ErrNotConfigured.
type Disabled struct{}

// SendVerificationCode implements Mailer.
func (Disabled) SendVerificationCode(context.Context, Envelope) error {
	return ErrNotConfigured
}
