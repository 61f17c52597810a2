// Copyright (c) 2025 Gryffin Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package llm implements the collaborator transport: single-exchange
// chat-completion calls that must return JSON. Every collaborator in the
// engine (code generation, debugging, fix advice, planning, codebase
// insight) goes through this package.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// ErrUnavailable indicates no API key is configured. Callers treat it the
// same as any other transport failure: fall back, never crash.
var ErrUnavailable = errors.New("llm: no API key configured")

// Generator is the single-exchange JSON collaborator contract. Fakes
// implement it in tests.
type Generator interface {
	// GenerateJSON sends one system+user exchange and returns the raw JSON
	// payload extracted from the response.
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error)
}

// Client wraps the OpenAI SDK with JSON-mode generation and retry
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a collaborator transport for the given model. When
// OPENAI_API_KEY is unset the client is still constructed but every call
// returns ErrUnavailable, matching the engine's degrade-to-fallback policy.
func NewClient(model string) *Client {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		slog.Warn("OPENAI_API_KEY not set, collaborators will use static fallbacks")
		return &Client{model: model}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Available reports whether the transport can reach a collaborator
func (c *Client) Available() bool {
	return c != nil && c.api != nil
}

// GenerateJSON implements Generator. It requests JSON mode first and falls
// back to a plain completion with regex extraction, the behavior models
// without response_format support need.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (json.RawMessage, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var content string
	operation := func() error {
		req := openai.ChatCompletionRequest{
			Model:    c.model,
			Messages: messages,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			// Some models reject response_format; retry the same
			// exchange without it before treating this as transient.
			req.ResponseFormat = nil
			resp, err = c.api.CreateChatCompletion(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return backoff.Permanent(ctx.Err())
				}
				return fmt.Errorf("chat completion failed: %w", err)
			}
		}

		if len(resp.Choices) == 0 {
			return fmt.Errorf("collaborator returned no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(newRetryPolicy(), 2), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}

	payload, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func newRetryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}
