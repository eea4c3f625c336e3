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

package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
)

// Script is the screenplay returned for every plain text call.
const Script = "INT. SCRAPYARD - DAY\nBolt spots a flower between rusty cans.\nBOLT: What is that?\nEXT. STREET - DUSK\nBolt carries the flower home."

// ScriptedGenerator is a deterministic generative model. It answers each
// structured call according to the schema title and derives scene values
// from the context sections of the prompt, the way the real model is asked
// to.
type ScriptedGenerator struct {
	// Scenes is the number of manifest items; zero means three.
	Scenes int
	// SceneSeconds is the duration of every scene. Zero spreads the
	// prompt's target duration over the scenes, or two seconds each when
	// the prompt names no target.
	SceneSeconds int
	// OffBibleScenes lists scene ids whose layout always names a location
	// outside the bible.
	OffBibleScenes map[int]bool
	// SupervisorLocation, when set, is the location the continuity
	// supervisor moves the first scene to.
	SupervisorLocation string
	// Broken lists schema titles that are always answered with invalid JSON.
	Broken map[string]bool
	// BrokenScenes lists scene ids whose layout call always fails.
	BrokenScenes map[int]bool
	// DuplicateIDs makes the manifest repeat scene id 1.
	DuplicateIDs bool
	// Image is returned by GenerateImage; nil means no inline image.
	Image []byte
	// TextErr fails every plain text call.
	TextErr error

	mu     sync.Mutex
	calls  map[string]int
	images []string
}

func (g *ScriptedGenerator) record(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.calls == nil {
		g.calls = make(map[string]int)
	}
	g.calls[key]++
}

// Calls returns how many calls were made for a schema title; plain text
// calls are counted under "text".
func (g *ScriptedGenerator) Calls(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[key]
}

// ImageModels lists the models GenerateImage was called with, in order.
func (g *ScriptedGenerator) ImageModels() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.images...)
}

func (g *ScriptedGenerator) GenerateText(_ context.Context, req generation.TextRequest) (string, error) {
	if req.Schema == nil {
		g.record("text")
		if g.TextErr != nil {
			return "", g.TextErr
		}
		return Script, nil
	}
	title := req.Schema.Title
	g.record(title)
	if g.Broken[title] {
		return "this is not json", nil
	}

	switch title {
	case model.SchemaSeriesBible:
		return "```json\n" + encode(model.ExampleBible()) + "\n```", nil
	case model.SchemaSceneManifest:
		return encode(g.manifest(req.Prompt)), nil
	case model.SchemaSceneLayout:
		var item model.SceneManifestItem
		if err := json.Unmarshal([]byte(SectionLine(req.Prompt, "SCENE")), &item); err != nil {
			return "", errors.New("prompt carries no scene")
		}
		if g.BrokenScenes[item.SceneID] {
			return "", errors.New("model unavailable")
		}
		layout := model.ExampleSceneLayout()
		layout.SceneID = item.SceneID
		layout.Duration = item.Duration
		layout.Location = item.Location
		if g.OffBibleScenes[item.SceneID] {
			layout.Location = "moon"
		}
		// A single layout wrapped in a list exercises the repair path.
		return "[" + encode(layout) + "]", nil
	case model.SchemaSceneLayoutValidation:
		var scenes []model.SceneLayout
		if err := json.Unmarshal([]byte(SectionLine(req.Prompt, "SCENES")), &scenes); err != nil {
			return "", errors.New("prompt carries no scenes")
		}
		if g.SupervisorLocation != "" && len(scenes) > 0 {
			scenes[0].Location = g.SupervisorLocation
		}
		return encode(model.SceneLayoutValidation{IssuesFound: []string{"dialogue shortened"}, FixedScenes: scenes}), nil
	case model.SchemaEditorPlan:
		return encode(model.DefaultEditorPlan()), nil
	}
	return "", errors.New("unexpected schema " + title)
}

func (g *ScriptedGenerator) GenerateImage(_ context.Context, name, _ string) ([]byte, error) {
	g.mu.Lock()
	g.images = append(g.images, name)
	g.mu.Unlock()
	return g.Image, nil
}

func (g *ScriptedGenerator) manifest(prompt string) model.SceneManifest {
	n := g.Scenes
	if n <= 0 {
		n = 3
	}
	durations := make([]int, n)
	var target struct {
		TotalSeconds int `json:"total_seconds"`
	}
	switch {
	case g.SceneSeconds > 0:
		for i := range durations {
			durations[i] = g.SceneSeconds
		}
	case json.Unmarshal([]byte(SectionLine(prompt, "TARGET")), &target) == nil && target.TotalSeconds >= n:
		for i := range durations {
			durations[i] = target.TotalSeconds / n
			if i < target.TotalSeconds%n {
				durations[i]++
			}
		}
	default:
		for i := range durations {
			durations[i] = 2
		}
	}

	locations := []string{"street", "warehouse", "home"}
	m := model.SceneManifest{}
	for i := 1; i <= n; i++ {
		id := i
		if g.DuplicateIDs {
			id = 1
		}
		m.TotalDuration += durations[i-1]
		m.Scenes = append(m.Scenes, model.SceneManifestItem{
			SceneID:  id,
			Duration: durations[i-1],
			Location: locations[(i-1)%len(locations)],
			Beats:    "Bolt reacts to the flower",
		})
	}
	return m
}

// SectionLine returns the first line after "label:" in a prompt.
func SectionLine(prompt, label string) string {
	marker := "\n" + label + ":\n"
	i := strings.LastIndex(prompt, marker)
	if i < 0 {
		return ""
	}
	rest := prompt[i+len(marker):]
	if j := strings.IndexByte(rest, '\n'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func encode(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
