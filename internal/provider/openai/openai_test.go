// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(func() string { return "test-key" }, Options{BaseURL: srv.URL + "/v1"}, zerolog.Nop())
}

func TestStreamChat_Fragments(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo ", " world"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	req := provider.TextRequest{
		Model:             "gpt-4o-mini",
		SystemInstruction: "sys",
		Temperature:       0.3,
		History:           []provider.Turn{{Role: provider.TurnModel, Text: "earlier"}},
		Prompt:            "hi",
	}
	var parts []string
	for frag, err := range c.StreamChat(context.Background(), req) {
		require.NoError(t, err)
		parts = append(parts, frag)
	}

	require.Equal(t, []string{"Hel", "lo ", " world"}, parts)
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 3)
	require.Equal(t, "system", msgs[0].(map[string]any)["role"])
	require.Equal(t, "assistant", msgs[1].(map[string]any)["role"])
	require.Equal(t, "hi", msgs[2].(map[string]any)["content"])
}

func TestStreamChat_HTTPError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	var errs int
	for _, err := range c.StreamChat(context.Background(), provider.TextRequest{Model: "gpt-4o", Prompt: "x"}) {
		require.Error(t, err)
		errs++
	}
	require.Equal(t, 1, errs)
}

func TestGenerateImage(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/images/generations"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"created":1,"data":[{"b64_json":"iVBORw0KGgo="}]}`)
	})

	img, err := c.GenerateImage(context.Background(), provider.ImageRequest{Prompt: "cat", AspectRatio: model.Ratio16x9})
	require.NoError(t, err)
	require.Equal(t, &provider.Image{MIMEType: "image/png", Base64: "iVBORw0KGgo="}, img)
	require.Equal(t, "1792x1024", body["size"])
	require.Equal(t, "b64_json", body["response_format"])
}

func TestGenerateImage_Empty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"created":1,"data":[]}`)
	})
	img, err := c.GenerateImage(context.Background(), provider.ImageRequest{Prompt: "cat"})
	require.NoError(t, err)
	require.Nil(t, img)
}

func TestSizeFor(t *testing.T) {
	require.Equal(t, "1024x1024", SizeFor(model.Ratio1x1))
	require.Equal(t, "1792x1024", SizeFor(model.Ratio4x3))
	require.Equal(t, "1024x1792", SizeFor(model.Ratio9x16))
	require.Equal(t, "1024x1792", SizeFor(model.Ratio3x4))
}

func TestNotConfigured(t *testing.T) {
	c := New(nil, Options{}, zerolog.Nop())
	require.False(t, c.Configured())
	_, err := c.GenerateImage(context.Background(), provider.ImageRequest{})
	require.ErrorIs(t, err, provider.ErrNotConfigured)
}
