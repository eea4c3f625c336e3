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

package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"text/template"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
)

// Default prompt templates, used when the configuration leaves one empty.
const (
	DefaultHeadWriterPrompt = `You are a senior head writer from a world-class cartoon studio. Convert the story into a short {{.TotalSeconds}}-second screenplay in the {{.StylePack}} style. Max {{.MaxSpeakers}} speaking characters. Dialogue is extremely short and visual. Output ONLY screenplay text with scene headers.`

	DefaultSeriesBiblePrompt = `You are the Series Bible Director for a global cartoon channel. Create a strict continuity bible: one main character, fixed outfit, consistent colors, allowed locations, props, motion library, camera styles, style rules. Output ONLY valid JSON.

EXAMPLE:
{{.ExampleJSON}}`

	DefaultCharacterDesignerPrompt = `You are a prompt engineer for an image generation model.
Convert this character description into a precise, comma-separated image generation prompt.
Description: {{.Description}}
Output ONLY the prompt text.`

	DefaultEpisodeDirectorPrompt = `You are an expert episode director. Split the screenplay into exactly {{.SceneCount}} scenes totaling {{.TotalSeconds}} seconds (+/-{{.ToleranceSeconds}}). Each scene {{.MinSceneSeconds}}-{{.MaxSceneSeconds}} seconds. Number scenes from 1. Use only bible locations and actions. Output ONLY valid JSON.`

	DefaultSceneLayoutPrompt = `You are a senior layout artist. Generate one render-ready scene JSON. Output a SINGLE JSON object (not a list). Use only bible locations, actions and cameras. Dialogue must be 1-2 short lines.

EXAMPLE:
{{.ExampleJSON}}`

	DefaultContinuityPrompt = `You are a continuity supervisor. Validate ALL scene JSONs against the bible. Fix illegal values and shorten long dialogue. Keep every scene_id. Ensure total duration is about {{.TotalSeconds}}s. Output ONLY JSON: {issues_found:[], fixed_scenes:[]}.`

	DefaultPostProducerPrompt = `You are a post-production producer. Create an assembly plan for stitching {{.SceneCount}} scenes. Output JSON with resolution=1920x1080 fps=30 format=mp4 subtitles_format=srt transitions disabled music disabled.`
)

// PromptData is the vocabulary available to every prompt template.
type PromptData struct {
	SceneCount       int
	TotalSeconds     int
	ToleranceSeconds int
	MinSceneSeconds  int
	MaxSceneSeconds  int
	MaxSpeakers      int
	StylePack        string
	ExampleJSON      string
	Description      string
}

// NewPromptData resolves a profile against the requested duration. A profile
// without a fixed scene count derives it from the duration and the average
// scene length, capped at model.MaxSceneID.
func NewPromptData(profile cloud.Profile, req model.JobRequest) PromptData {
	d := PromptData{
		SceneCount:       profile.SceneCount,
		TotalSeconds:     profile.TotalSeconds,
		ToleranceSeconds: profile.ToleranceSeconds,
		MinSceneSeconds:  profile.MinSceneSeconds,
		MaxSceneSeconds:  profile.MaxSceneSeconds,
		MaxSpeakers:      profile.MaxSpeakers,
		StylePack:        req.StylePack,
	}
	if d.TotalSeconds <= 0 {
		d.TotalSeconds = req.DurationSeconds
	}
	if d.TotalSeconds <= 0 {
		d.TotalSeconds = model.DefaultDurationSeconds
	}
	if d.MinSceneSeconds <= 0 {
		d.MinSceneSeconds = 4
	}
	if d.MaxSceneSeconds < d.MinSceneSeconds {
		d.MaxSceneSeconds = d.MinSceneSeconds + 2
	}
	if d.MaxSpeakers <= 0 {
		d.MaxSpeakers = 2
	}
	if d.ToleranceSeconds <= 0 {
		d.ToleranceSeconds = 2
	}
	if d.SceneCount <= 0 {
		avg := float64(d.MinSceneSeconds+d.MaxSceneSeconds) / 2
		d.SceneCount = int(math.Ceil(float64(d.TotalSeconds) / avg))
	}
	d.SceneCount = max(1, min(d.SceneCount, model.MaxSceneID))
	return d
}

// With returns a copy carrying an example value and a description.
func (d PromptData) With(example any, description string) PromptData {
	if example != nil {
		if data, err := json.Marshal(example); err == nil {
			d.ExampleJSON = string(data)
		}
	}
	d.Description = description
	return d
}

// PromptSet holds the parsed templates of every stage.
type PromptSet struct {
	HeadWriter        *template.Template
	SeriesBible       *template.Template
	CharacterDesigner *template.Template
	EpisodeDirector   *template.Template
	SceneLayout       *template.Template
	Continuity        *template.Template
	PostProducer      *template.Template
}

// NewPromptSet parses the configured templates, falling back to the defaults.
func NewPromptSet(cfg cloud.PromptTemplates) (*PromptSet, error) {
	set := &PromptSet{}
	for _, p := range []struct {
		name     string
		source   string
		fallback string
		target   **template.Template
	}{
		{"head_writer", cfg.HeadWriter, DefaultHeadWriterPrompt, &set.HeadWriter},
		{"series_bible", cfg.SeriesBible, DefaultSeriesBiblePrompt, &set.SeriesBible},
		{"character_designer", cfg.CharacterDesigner, DefaultCharacterDesignerPrompt, &set.CharacterDesigner},
		{"episode_director", cfg.EpisodeDirector, DefaultEpisodeDirectorPrompt, &set.EpisodeDirector},
		{"scene_layout", cfg.SceneLayout, DefaultSceneLayoutPrompt, &set.SceneLayout},
		{"continuity", cfg.Continuity, DefaultContinuityPrompt, &set.Continuity},
		{"post_producer", cfg.PostProducer, DefaultPostProducerPrompt, &set.PostProducer},
	} {
		source := p.source
		if source == "" {
			source = p.fallback
		}
		tmpl, err := template.New(p.name).Option("missingkey=error").Parse(source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s prompt template: %w", p.name, err)
		}
		*p.target = tmpl
	}
	return set, nil
}

// Render executes tmpl with data.
func Render(tmpl *template.Template, data PromptData) (string, error) {
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template %s: %w", tmpl.Name(), err)
	}
	return buffer.String(), nil
}

// section appends a labelled block of context to a prompt.
func section(prompt, label, body string) string {
	return fmt.Sprintf("%s\n\n%s:\n%s", prompt, label, body)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
