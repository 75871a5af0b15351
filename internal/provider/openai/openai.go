// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package openai adapts OpenAI-compatible endpoints to the provider
// interfaces.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	goopenai "github.com/sashabaranov/go-openai"

	"github.com/jeranaias/visionary/internal/model"
	"github.com/jeranaias/visionary/internal/provider"
)

// DefaultImageModel is the model used for image requests.
const DefaultImageModel = goopenai.CreateImageModelDallE3

// Options configures the backend. Zero values select defaults.
type Options struct {
	// BaseURL overrides the API endpoint, e.g. a local OpenAI-compatible server.
	BaseURL string
	// ImageModel is the model used for image generation.
	ImageModel string
	// Timeout bounds each HTTP request; 0 means no limit beyond ctx.
	Timeout time.Duration
}

// KeyFunc returns the API key to use for the next request.
type KeyFunc func() string

// Client is an OpenAI-compatible backend built per call like the Gemini one.
type Client struct {
	key  KeyFunc
	opts Options
	log  zerolog.Logger
}

// New creates an OpenAI-compatible backend.
func New(key KeyFunc, opts Options, log zerolog.Logger) *Client {
	if opts.ImageModel == "" {
		opts.ImageModel = DefaultImageModel
	}
	return &Client{key: key, opts: opts, log: log.With().Str("component", "openai").Logger()}
}

// Configured reports whether an API key is available.
func (c *Client) Configured() bool {
	return c.key != nil && c.key() != ""
}

func (c *Client) newClient() (*goopenai.Client, error) {
	if !c.Configured() {
		return nil, provider.ErrNotConfigured
	}
	cfg := goopenai.DefaultConfig(c.key())
	if c.opts.BaseURL != "" {
		cfg.BaseURL = c.opts.BaseURL
	}
	if c.opts.Timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: c.opts.Timeout}
	}
	return goopenai.NewClientWithConfig(cfg), nil
}

// =============================================================================
// TEXT
// =============================================================================

// StreamChat implements provider.TextGenerator.
func (c *Client) StreamChat(ctx context.Context, req provider.TextRequest) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		client, err := c.newClient()
		if err != nil {
			yield("", err)
			return
		}

		stream, err := client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    buildMessages(req),
			Temperature: float32(req.Temperature),
			Stream:      true,
		})
		if err != nil {
			yield("", fmt.Errorf("openai stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				c.log.Warn().Err(err).Str("model", req.Model).Msg("stream_error")
				yield("", fmt.Errorf("openai stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(resp.Choices[0].Delta.Content, nil) {
				return
			}
		}
	}
}

func buildMessages(req provider.TextRequest) []goopenai.ChatCompletionMessage {
	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemInstruction != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemInstruction,
		})
	}
	for _, turn := range req.History {
		role := goopenai.ChatMessageRoleUser
		if turn.Role == provider.TurnModel {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: turn.Text})
	}
	return append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
}

// =============================================================================
// IMAGES
// =============================================================================

// GenerateImage implements provider.ImageGenerator.
func (c *Client) GenerateImage(ctx context.Context, req provider.ImageRequest) (*provider.Image, error) {
	client, err := c.newClient()
	if err != nil {
		return nil, err
	}
	resp, err := client.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          c.opts.ImageModel,
		N:              1,
		Size:           SizeFor(req.AspectRatio),
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	for _, d := range resp.Data {
		if d.B64JSON != "" {
			// The images API always returns PNG.
			return &provider.Image{MIMEType: "image/png", Base64: d.B64JSON}, nil
		}
	}
	return nil, nil
}

// SizeFor maps an aspect ratio onto the closest size the images API accepts.
func SizeFor(r model.AspectRatio) string {
	switch r {
	case model.Ratio16x9, model.Ratio4x3:
		return goopenai.CreateImageSize1792x1024
	case model.Ratio9x16, model.Ratio3x4:
		return goopenai.CreateImageSize1024x1792
	default:
		return goopenai.CreateImageSize1024x1024
	}
}
