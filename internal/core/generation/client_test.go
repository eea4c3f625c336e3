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

package generation_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validLayout = `{"scene_id":1,"duration":5,"location":"street","camera":"wide","action":"walk_in","emotion":"curious","dialogue":"Hi","sfx":[],"music_mood":"playful"}`

// sequence returns each response in turn and repeats the last one.
type sequence struct {
	mu        sync.Mutex
	responses []string
	calls     int
	requests  []generation.TextRequest
}

func (s *sequence) GenerateText(_ context.Context, req generation.TextRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	i := s.calls
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	s.calls++
	return s.responses[i], nil
}

func newClient(gen generation.TextGenerator, retries int, slept *[]time.Duration) *generation.Client {
	return generation.NewClient(gen,
		generation.WithMaxRetries(retries),
		generation.WithDelay(2*time.Second),
		generation.WithSleeper(func(d time.Duration) {
			if slept != nil {
				*slept = append(*slept, d)
			}
		}))
}

func invalidThenValid(k int) []string {
	out := make([]string, 0, k+1)
	for i := 0; i < k; i++ {
		out = append(out, `{"scene_id": "not a number"`)
	}
	return append(out, validLayout)
}

func TestGenerateSucceedsWithinRetryBudget(t *testing.T) {
	const maxRetries = 2
	for k := 0; k <= maxRetries+2; k++ {
		gen := &sequence{responses: invalidThenValid(k)}
		var slept []time.Duration
		client := newClient(gen, maxRetries, &slept)

		layout, err := generation.Generate[model.SceneLayout](context.Background(), client, "layout", model.SceneLayoutSchema())
		if k <= maxRetries {
			require.NoError(t, err, "k=%d", k)
			assert.Equal(t, "street", layout.Location)
			assert.Equal(t, k+1, gen.calls)
		} else {
			require.Error(t, err, "k=%d", k)
			assert.ErrorIs(t, err, generation.ErrGenerationExhausted)
			var genErr *generation.GenerationError
			require.True(t, errors.As(err, &genErr))
			assert.Equal(t, model.SchemaSceneLayout, genErr.Schema)
			assert.Equal(t, maxRetries+1, genErr.Attempts)
			assert.Equal(t, maxRetries+1, gen.calls)
		}
		// A fixed delay precedes every call.
		assert.Len(t, slept, gen.calls)
		for _, d := range slept {
			assert.Equal(t, 2*time.Second, d)
		}
	}
}

func TestGenerateRetriesRejectedValues(t *testing.T) {
	offBible := strings.Replace(validLayout, `"street"`, `"moon"`, 1)
	onlyStreet := func(l *model.SceneLayout) error {
		if l.Location != "street" {
			return errors.New("unknown location " + l.Location)
		}
		return nil
	}

	gen := &sequence{responses: []string{offBible, validLayout}}
	layout, err := generation.Generate(context.Background(), newClient(gen, 1, nil), "layout", model.SceneLayoutSchema(), onlyStreet)
	require.NoError(t, err)
	assert.Equal(t, "street", layout.Location)
	assert.Equal(t, 2, gen.calls)

	gen = &sequence{responses: []string{offBible}}
	_, err = generation.Generate(context.Background(), newClient(gen, 1, nil), "layout", model.SceneLayoutSchema(), onlyStreet)
	assert.ErrorIs(t, err, generation.ErrGenerationExhausted)
	assert.ErrorContains(t, err, "unknown location moon")
	assert.Equal(t, 2, gen.calls)
}

func TestGenerateRequestsJSONWithSchemaInPrompt(t *testing.T) {
	gen := &sequence{responses: []string{validLayout}}
	_, err := generation.Generate[model.SceneLayout](context.Background(), newClient(gen, 0, nil), "Draw scene 1", model.SceneLayoutSchema())
	require.NoError(t, err)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.True(t, req.JSON)
	assert.Equal(t, model.SchemaSceneLayout, req.Schema.Title)
	assert.True(t, strings.HasPrefix(req.Prompt, "Draw scene 1"))
	assert.Contains(t, req.Prompt, `"music_mood"`)
	assert.Contains(t, req.Prompt, "strictly valid JSON")
}

func TestGenerateStripsCodeFence(t *testing.T) {
	gen := &sequence{responses: []string{"```json\n" + validLayout + "\n```\n"}}
	layout, err := generation.Generate[model.SceneLayout](context.Background(), newClient(gen, 0, nil), "layout", model.SceneLayoutSchema())
	require.NoError(t, err)
	assert.Equal(t, 1, layout.SceneID)
}

func TestGenerateUnwrapsSingleElementList(t *testing.T) {
	gen := &sequence{responses: []string{"[" + validLayout + "]"}}
	layout, err := generation.Generate[model.SceneLayout](context.Background(), newClient(gen, 0, nil), "layout", model.SceneLayoutSchema())
	require.NoError(t, err)
	assert.Equal(t, "walk_in", layout.Action)
	assert.Equal(t, 1, gen.calls)
}

func TestGenerateDoesNotUnwrapLongerLists(t *testing.T) {
	gen := &sequence{responses: []string{"[" + validLayout + "," + validLayout + "]"}}
	_, err := generation.Generate[model.SceneLayout](context.Background(), newClient(gen, 0, nil), "layout", model.SceneLayoutSchema())
	assert.ErrorIs(t, err, generation.ErrGenerationExhausted)
}

func TestGenerateRetriesModelErrors(t *testing.T) {
	calls := 0
	gen := textFunc(func(context.Context, generation.TextRequest) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("429 resource exhausted")
		}
		return validLayout, nil
	})
	_, err := generation.Generate[model.SceneLayout](context.Background(), newClient(gen, 1, nil), "layout", model.SceneLayoutSchema())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestGenerateStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &sequence{responses: []string{validLayout}}
	_, err := generation.Generate[model.SceneLayout](ctx, newClient(gen, 3, nil), "layout", model.SceneLayoutSchema())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, gen.calls)
}

func TestTextReturnsRawResponse(t *testing.T) {
	gen := &sequence{responses: []string{"INT. SCRAPYARD - DAY"}}
	out, err := newClient(gen, 0, nil).Text(context.Background(), "write")
	require.NoError(t, err)
	assert.Equal(t, "INT. SCRAPYARD - DAY", out)
	assert.False(t, gen.requests[0].JSON)
}

func TestStripCodeFence(t *testing.T) {
	tests := map[string]string{
		"  {\"a\":1}  ":               `{"a":1}`,
		"```json\n{\"a\":1}\n```":     `{"a":1}`,
		"```\n[1]\n```":               `[1]`,
		"```JSON\n{\"a\":1}```":       `{"a":1}`,
		"```json {\"a\":1} ```":       `{"a":1}`,
		"\n\n```json\n{\"a\":1}\n```": `{"a":1}`,
	}
	for in, want := range tests {
		assert.Equal(t, want, generation.StripCodeFence(in), in)
	}
}

func TestUnwrapSingleton(t *testing.T) {
	inner, ok := generation.UnwrapSingleton([]byte(` [ {"a": 1} ] `))
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(inner))

	_, ok = generation.UnwrapSingleton([]byte(`[]`))
	assert.False(t, ok)
	_, ok = generation.UnwrapSingleton([]byte(`[1,2]`))
	assert.False(t, ok)
	_, ok = generation.UnwrapSingleton([]byte(`{"a":1}`))
	assert.False(t, ok)
}

type textFunc func(context.Context, generation.TextRequest) (string, error)

func (f textFunc) GenerateText(ctx context.Context, req generation.TextRequest) (string, error) {
	return f(ctx, req)
}

type imageFunc func(ctx context.Context, model, prompt string) ([]byte, error)

func (f imageFunc) GenerateImage(ctx context.Context, model, prompt string) ([]byte, error) {
	return f(ctx, model, prompt)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageFallsBackToSecondaryModel(t *testing.T) {
	var asked []string
	gen := imageFunc(func(_ context.Context, model, prompt string) ([]byte, error) {
		asked = append(asked, model)
		assert.True(t, strings.HasPrefix(prompt, "Generate an image of "))
		if model == "primary" {
			return nil, nil
		}
		return pngBytes(t), nil
	})
	client := generation.NewImageClient(gen, "primary", "fallback", generation.WithSleeper(func(time.Duration) {}))

	data, ok := client.Generate(context.Background(), "a robot")
	assert.True(t, ok)
	assert.Equal(t, []string{"primary", "fallback"}, asked)
	assert.Equal(t, pngBytes(t), data)
}

func TestImageReportsFailureWithoutError(t *testing.T) {
	gen := imageFunc(func(context.Context, string, string) ([]byte, error) {
		return nil, errors.New("quota")
	})
	client := generation.NewImageClient(gen, "primary", "fallback", generation.WithDelay(0))

	data, ok := client.Generate(context.Background(), "a robot")
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestEncodePNGConvertsOtherFormats(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil))

	data, err := generation.EncodePNG(buf.Bytes())
	require.NoError(t, err)
	_, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)

	_, err = generation.EncodePNG([]byte("plain text"))
	assert.Error(t, err)
}
