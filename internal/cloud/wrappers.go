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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel decorates a Gemini model with a request rate
// limit and token accounting. It implements generation.TextGenerator and
// generation.ImageGenerator.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter

	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// NewQuotaAwareModel wraps the named model. A non-positive requestsPerSecond
// disables the limit.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = requestsPerSecond
	}
	meter := otel.Meter(cor.MeterNamespace)
	in, err := meter.Int64Counter("genai.tokens.input")
	if err != nil {
		slog.Warn("unable to create token counter", "error", err)
	}
	out, err := meter.Int64Counter("genai.tokens.output")
	if err != nil {
		slog.Warn("unable to create token counter", "error", err)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(limit, burst),
		inputTokens:             in,
		outputTokens:            out,
	}
}

// GenerateContent waits for a rate limit token and calls the model.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, model string, content []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if q.ModelHandle == nil {
		return nil, errors.New("generative model is not configured")
	}
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := q.ModelHandle.GenerateContent(ctx, model, content, config)
	if err != nil {
		return nil, err
	}
	if resp.UsageMetadata != nil {
		if q.inputTokens != nil {
			q.inputTokens.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if q.outputTokens != nil {
			q.outputTokens.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}
	return resp, nil
}

// GenerateText issues a text call, asking for JSON constrained by the request
// schema when the request says so.
func (q *QuotaAwareGenerativeAIModel) GenerateText(ctx context.Context, req generation.TextRequest) (string, error) {
	config := q.configCopy()
	if req.JSON {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = req.Schema
	} else {
		config.ResponseMIMEType = ""
	}
	resp, err := q.GenerateContent(ctx, q.ModelName, genai.Text(req.Prompt), config)
	if err != nil {
		return "", err
	}
	var value strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				value.WriteString(part.Text)
			}
		}
	}
	if value.Len() == 0 {
		return "", fmt.Errorf("empty response from %s", q.ModelName)
	}
	return value.String(), nil
}

// GenerateImage asks model for an image and returns the first inline image
// payload, or nil when the response holds none.
func (q *QuotaAwareGenerativeAIModel) GenerateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
		SafetySettings:     DefaultSafetySettings,
	}
	resp, err := q.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return nil, err
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, nil
}

func (q *QuotaAwareGenerativeAIModel) configCopy() *genai.GenerateContentConfig {
	if q.GenerativeContentConfig == nil {
		return &genai.GenerateContentConfig{SafetySettings: DefaultSafetySettings}
	}
	c := *q.GenerativeContentConfig
	return &c
}
