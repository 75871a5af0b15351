// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gemini adapts the Google Gen AI SDK to the provider interfaces.
package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/jeranaias/visionary/internal/provider"
)

// DefaultImageModel is the model used for image requests.
const DefaultImageModel = "gemini-2.5-flash-image"

// Options configures the backend. Zero values select defaults.
type Options struct {
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	// ImageModel is the model used for image generation.
	ImageModel string
	// ThinkingBudget limits reasoning tokens for text requests; 0 disables thinking.
	ThinkingBudget int32
	// Timeout bounds each HTTP request; 0 means no limit beyond ctx.
	Timeout time.Duration
}

// KeyFunc returns the API key to use for the next request.
type KeyFunc func() string

// Client is a Gemini backend. It holds no SDK client: one is built per call
// with the key current at that moment.
type Client struct {
	key  KeyFunc
	opts Options
	log  zerolog.Logger
}

// New creates a Gemini backend.
func New(key KeyFunc, opts Options, log zerolog.Logger) *Client {
	if opts.ImageModel == "" {
		opts.ImageModel = DefaultImageModel
	}
	return &Client{
		key:  key,
		opts: opts,
		log:  log.With().Str("component", "gemini").Logger(),
	}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.key != nil && c.key() != ""
}

func (c *Client) newClient(ctx context.Context) (*genai.Client, error) {
	if !c.Configured() {
		return nil, provider.ErrNotConfigured
	}
	cfg := &genai.ClientConfig{
		APIKey:  c.key(),
		Backend: genai.BackendGeminiAPI,
	}
	if c.opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.opts.BaseURL}
	}
	if c.opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: c.opts.Timeout}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return client, nil
}

// =============================================================================
// TEXT
// =============================================================================

// StreamChat implements provider.TextGenerator.
func (c *Client) StreamChat(ctx context.Context, req provider.TextRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := c.newClient(ctx)
		if err != nil {
			yield("", err)
			return
		}

		start := time.Now()
		chunks := 0
		stream := client.Models.GenerateContentStream(ctx, req.Model, buildContents(req), c.textConfig(req))
		for resp, err := range stream {
			if err != nil {
				c.log.Warn().Err(err).Str("model", req.Model).Int("chunks", chunks).Msg("stream_error")
				yield("", fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			chunks++
			if !yield(text, nil) {
				return
			}
		}
		c.log.Debug().Str("model", req.Model).Int("chunks", chunks).Dur("elapsed", time.Since(start)).Msg("stream_done")
	}
}

func (c *Client) textConfig(req provider.TextRequest) *genai.GenerateContentConfig {
	temp := float32(req.Temperature)
	budget := c.opts.ThinkingBudget
	cfg := &genai.GenerateContentConfig{
		Temperature:    &temp,
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: &budget},
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	return cfg
}

// buildContents maps history and prompt onto Gemini contents.
func buildContents(req provider.TextRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		role := genai.Role(genai.RoleUser)
		if turn.Role == provider.TurnModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	return append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage implements provider.ImageGenerator.
func (c *Client) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Image, error) {
	client, err := c.newClient(ctx)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{AspectRatio: string(req.AspectRatio)},
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	resp, err := client.Models.GenerateContent(ctx, c.opts.ImageModel, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini image: %w", err)
	}
	return firstInlineImage(resp), nil
}

// firstInlineImage returns the first inline data part of the first
// candidate. Text parts are ignored.
func firstInlineImage(resp *genai.GenerateContentResponse) *provider.Image {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return nil
	}
	for _, part := range cand.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return &provider.Image{
			MIMEType: part.InlineData.MIMEType,
			Base64:   base64.StdEncoding.EncodeToString(part.InlineData.Data),
		}
	}
	return nil
}
