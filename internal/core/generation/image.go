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

package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"time"

	"github.com/h2non/filetype"
)

// ImageGenerator is the image side of a generative model. It returns nil
// data, without an error, when the response carries no inline image.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, model, prompt string) ([]byte, error)
}

// ImageClient generates an image with a primary model and falls back to a
// secondary model once.
type ImageClient struct {
	generator ImageGenerator
	primary   string
	fallback  string
	delay     time.Duration
	sleeper   func(time.Duration)
}

// NewImageClient builds an image client. Only WithDelay and WithSleeper
// apply to it.
func NewImageClient(generator ImageGenerator, primary, fallback string, opts ...Option) *ImageClient {
	settings := &Client{delay: DefaultCallDelay}
	for _, opt := range opts {
		opt(settings)
	}
	return &ImageClient{
		generator: generator,
		primary:   primary,
		fallback:  fallback,
		delay:     settings.delay,
		sleeper:   settings.sleeper,
	}
}

// Generate returns a PNG rendering of prompt. It reports false, instead of
// an error, when neither model yields image data so the caller can continue
// without the asset.
func (c *ImageClient) Generate(ctx context.Context, prompt string) ([]byte, bool) {
	request := fmt.Sprintf("Generate an image of %s", prompt)
	for _, name := range c.models() {
		if err := pause(ctx, c.delay, c.sleeper); err != nil {
			slog.Warn("image generation cancelled", "error", err)
			return nil, false
		}
		data, err := c.generator.GenerateImage(ctx, name, request)
		if err != nil {
			slog.Warn("image generation failed", "model", name, "error", err)
			continue
		}
		if len(data) == 0 {
			slog.Warn("no inline image in response", "model", name)
			continue
		}
		encoded, err := EncodePNG(data)
		if err != nil {
			slog.Warn("unusable image payload", "model", name, "error", err)
			continue
		}
		slog.Info("image generated", "model", name, "bytes", len(encoded))
		return encoded, true
	}
	return nil, false
}

func (c *ImageClient) models() []string {
	out := make([]string, 0, 2)
	if c.primary != "" {
		out = append(out, c.primary)
	}
	if c.fallback != "" && c.fallback != c.primary {
		out = append(out, c.fallback)
	}
	return out
}

// EncodePNG returns data as PNG, converting other image formats.
func EncodePNG(data []byte) ([]byte, error) {
	if !filetype.IsImage(data) {
		return nil, errors.New("payload is not an image")
	}
	if filetype.Is(data, "png") {
		return data, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unable to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("unable to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
