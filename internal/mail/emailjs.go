// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultEmailJSEndpoint is the EmailJS REST API base URL.
const DefaultEmailJSEndpoint = "https://api.emailjs.com"

// EmailJSConfig holds EmailJS account keys.
type EmailJSConfig struct {
	Endpoint   string
	PublicKey  string
	PrivateKey string
	ServiceID  string
	TemplateID string
	Timeout    time.Duration
}

// placeholderKeys are the template values shipped in sample configs.
var placeholderKeys = map[string]bool{
	"YOUR_PUBLIC_KEY":  true,
	"YOUR_SERVICE_ID":  true,
	"YOUR_TEMPLATE_ID": true,
}

// Configured reports whether all keys are present and not placeholders.
func (c EmailJSConfig) Configured() bool {
	for _, v := range []string{c.PublicKey, c.ServiceID, c.TemplateID} {
		if strings.TrimSpace(v) == "" || placeholderKeys[v] {
			return false
		}
	}
	return true
}

// EmailJS sends mail through the EmailJS REST API.
type EmailJS struct {
	cfg    EmailJSConfig
	client *resty.Client
	log    zerolog.Logger
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

// NewEmailJS creates an EmailJS mailer.
func NewEmailJS(cfg EmailJSConfig, log zerolog.Logger) *EmailJS {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEmailJSEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Endpoint, "/")).
		SetHeader("User-Agent", "Visionary/1.0").
		SetTimeout(cfg.Timeout)
	return &EmailJS{cfg: cfg, client: client, log: log.With().Str("component", "mail").Logger()}
}

// SendVerificationCode implements Mailer.
func (e *EmailJS) SendVerificationCode(ctx context.Context, env Envelope) error {
	if !e.cfg.Configured() {
		e.log.Warn().Msg("mail_not_configured")
		return ErrNotConfigured
	}

	body := emailJSRequest{
		ServiceID:   e.cfg.ServiceID,
		TemplateID:  e.cfg.TemplateID,
		UserID:      e.cfg.PublicKey,
		AccessToken: e.cfg.PrivateKey,
		TemplateParams: map[string]string{
			"to_email":          env.ToEmail,
			"to_name":           env.ToName,
			"message":           env.Body,
			"verification_code": env.Code,
		},
	}

	resp, err := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post("/api/v1.0/email/send")
	if err != nil {
		e.log.Error().Err(err).Msg("mail_send_failed")
		return fmt.Errorf("emailjs request failed: %w", err)
	}
	if resp.IsError() {
		e.log.Error().Int("status", resp.StatusCode()).Str("body", resp.String()).Msg("mail_send_failed")
		return fmt.Errorf("emailjs error (%d): %s", resp.StatusCode(), resp.String())
	}

	e.log.Info().Str("to", maskEmail(env.ToEmail)).Msg("mail_sent")
	return nil
}

// SECURITY: Addresses are masked in logs.
func maskEmail(addr string) string {
	at := strings.LastIndex(addr, "@")
	if at <= 1 {
		return "***"
	}
	return addr[:1] + "***" + addr[at:]
}
