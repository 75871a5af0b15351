// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configured(endpoint string) EmailJSConfig {
	return EmailJSConfig{
		Endpoint:   endpoint,
		PublicKey:  "pub",
		PrivateKey: "priv",
		ServiceID:  "svc",
		TemplateID: "tpl",
	}
}

func TestEmailJS_Send(t *testing.T) {
	var got emailJSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1.0/email/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	m := NewEmailJS(configured(srv.URL), zerolog.Nop())
	err := m.SendVerificationCode(context.Background(), Envelope{
		ToEmail: "ann@example.com",
		ToName:  "ann",
		Body:    "code 123456",
		Code:    "123456",
	})
	require.NoError(t, err)

	require.Equal(t, "svc", got.ServiceID)
	require.Equal(t, "tpl", got.TemplateID)
	require.Equal(t, "pub", got.UserID)
	require.Equal(t, "priv", got.AccessToken)
	require.Equal(t, map[string]string{
		"to_email":          "ann@example.com",
		"to_name":           "ann",
		"message":           "code 123456",
		"verification_code": "123456",
	}, got.TemplateParams)
}

func TestEmailJS_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("The recipients address is empty"))
	}))
	defer srv.Close()

	err := NewEmailJS(configured(srv.URL), zerolog.Nop()).SendVerificationCode(context.Background(), Envelope{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotConfigured)
	require.Contains(t, err.Error(), "400")
}

func TestEmailJS_NotConfigured(t *testing.T) {
	tests := []EmailJSConfig{
		{},
		{PublicKey: "YOUR_PUBLIC_KEY", ServiceID: "svc", TemplateID: "tpl"},
		{PublicKey: "pub", ServiceID: "", TemplateID: "tpl"},
	}
	for _, cfg := range tests {
		err := NewEmailJS(cfg, zerolog.Nop()).SendVerificationCode(context.Background(), Envelope{})
		require.ErrorIs(t, err, ErrNotConfigured)
	}
}

func TestDisabled(t *testing.T) {
	require.ErrorIs(t, Disabled{}.SendVerificationCode(context.Background(), Envelope{}), ErrNotConfigured)
}

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "a***@example.com", maskEmail("ann@example.com"))
	require.Equal(t, "***", maskEmail("x@y"))
	require.Equal(t, "***", maskEmail("nope"))
}
