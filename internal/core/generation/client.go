// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package generation issues schema-constrained requests to a generative
// model. Every planning stage of the pipeline goes through Generate, which
// composes the prompt, retries invalid output a bounded number of times and
// applies a single repair heuristic before giving up.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"google.golang.org/genai"
)

const (
	DefaultMaxRetries = 2
	DefaultCallDelay  = 2 * time.Second
)

// ErrGenerationExhausted matches every GenerationError.
var ErrGenerationExhausted = errors.New("generation retries exhausted")

// TextRequest is a single call to a text model. When JSON is set the model is
// asked for a JSON response, constrained by Schema when it is not nil.
type TextRequest struct {
	Prompt string
	JSON   bool
	Schema *genai.Schema
}

// TextGenerator is the text side of a generative model.
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// GenerationError is the terminal error of Generate. It names the schema
// that was never satisfied and carries the last diagnostic.
type GenerationError struct {
	Schema   string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("failed to generate valid %s after %d attempts: %v", e.Schema, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGenerationExhausted }

// Client wraps a TextGenerator with pacing, retries and validation.
type Client struct {
	generator  TextGenerator
	maxRetries int
	delay      time.Duration
	sleeper    func(time.Duration)
	validate   func(any) error
}

// Option customizes the client.
type Option func(*Client)

// WithMaxRetries sets how many times a failed attempt is retried.
func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
	}
}

// WithDelay sets the fixed delay applied before every call.
func WithDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.delay = delay
	}
}

// WithSleeper overrides how the call delay is performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithValidator replaces the struct validator applied to decoded values.
func WithValidator(validate func(any) error) Option {
	return func(c *Client) {
		if validate != nil {
			c.validate = validate
		}
	}
}

// NewClient builds a client around generator.
func NewClient(generator TextGenerator, opts ...Option) *Client {
	c := &Client{
		generator:  generator,
		maxRetries: DefaultMaxRetries,
		delay:      DefaultCallDelay,
		validate:   model.Validate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxRetries returns the configured retry budget.
func (c *Client) MaxRetries() int { return c.maxRetries }

// Text issues one plain text call and returns the trimmed response.
func (c *Client) Text(ctx context.Context, prompt string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := c.generator.GenerateText(ctx, TextRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("text generation failed: %w", err)
	}
	return out, nil
}

// Generate asks the model for a value of type T described by schema and
// returns it once it decodes and validates. Each check runs after struct
// validation and a check error fails the attempt like malformed output does.
// The call is made at most MaxRetries()+1 times; afterwards a
// *GenerationError is returned.
func Generate[T any](ctx context.Context, c *Client, instruction string, schema *genai.Schema, checks ...func(*T) error) (*T, error) {
	name := schemaName[T](schema)
	prompt, err := ComposePrompt(instruction, schema)
	if err != nil {
		return nil, err
	}

	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.wait(ctx); err != nil {
			return nil, fmt.Errorf("generation of %s cancelled: %w", name, err)
		}
		value, err := attemptGenerate(ctx, c, prompt, schema, checks)
		if err == nil {
			return value, nil
		}
		lastErr = err
		slog.Warn("generation attempt failed", "schema", name, "attempt", attempt, "max_attempts", attempts, "error", err)
	}
	return nil, &GenerationError{Schema: name, Attempts: attempts, Err: lastErr}
}

func attemptGenerate[T any](ctx context.Context, c *Client, prompt string, schema *genai.Schema, checks []func(*T) error) (*T, error) {
	raw, err := c.generator.GenerateText(ctx, TextRequest{Prompt: prompt, JSON: true, Schema: schema})
	if err != nil {
		return nil, fmt.Errorf("model call failed: %w", err)
	}
	cleaned := StripCodeFence(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, fmt.Errorf("response is not valid JSON: %s", snippet(cleaned))
	}

	value, err := decodeValid(c, []byte(cleaned), checks)
	if err == nil {
		return value, nil
	}
	// A single value wrapped in a list is judged on the value itself.
	if inner, ok := UnwrapSingleton([]byte(cleaned)); ok {
		return decodeValid(c, inner, checks)
	}
	return nil, err
}

func decodeValid[T any](c *Client, data []byte, checks []func(*T) error) (*T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("response does not match schema: %w", err)
	}
	if err := c.validate(&value); err != nil {
		return nil, fmt.Errorf("response failed validation: %w", err)
	}
	for _, check := range checks {
		if err := check(&value); err != nil {
			return nil, fmt.Errorf("response rejected: %w", err)
		}
	}
	return &value, nil
}

// ComposePrompt joins the instruction, the JSON form of the schema and the
// structured-output directive.
func ComposePrompt(instruction string, schema *genai.Schema) (string, error) {
	if schema == nil {
		return instruction, nil
	}
	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode schema: %w", err)
	}
	return fmt.Sprintf("%s\n\nOutput strictly valid JSON obeying this schema:\n%s\n\nReturn only the JSON value with no commentary and no Markdown.",
		instruction, schemaJSON), nil
}

func (c *Client) wait(ctx context.Context) error {
	return pause(ctx, c.delay, c.sleeper)
}

func pause(ctx context.Context, delay time.Duration, sleeper func(time.Duration)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if sleeper != nil {
		sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func schemaName[T any](schema *genai.Schema) string {
	if schema != nil && schema.Title != "" {
		return schema.Title
	}
	var zero T
	return fmt.Sprintf("%T", zero)
}
