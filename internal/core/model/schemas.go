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

package model

import (
	"sync"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"
)

// Schema titles, also used as the schema name in generation errors.
const (
	SchemaSeriesBible           = "SeriesBible"
	SchemaSceneManifest         = "SceneManifest"
	SchemaSceneLayout           = "SceneLayout"
	SchemaSceneLayoutValidation = "SceneLayoutValidation"
	SchemaEditorPlan            = "EditorPlan"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks v against the struct constraints of this package.
func Validate(v any) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate.Struct(v)
}

func str(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: desc}
}

func integer(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeInteger, Description: desc}
}

func boolean(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeBoolean, Description: desc}
}

func strList(desc string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeArray, Description: desc, Items: &genai.Schema{Type: genai.TypeString}}
}

// SeriesBibleSchema describes SeriesBible.
func SeriesBibleSchema() *genai.Schema {
	return &genai.Schema{
		Title: SchemaSeriesBible,
		Type:  genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"character": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":             str("the main character's name"),
					"outfit":           str("the fixed outfit"),
					"appearance_rules": strList("rules that keep the character consistent"),
				},
				Required: []string{"name", "outfit", "appearance_rules"},
			},
			"style": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":  str("the visual style, e.g. 2d_cartoon_clean"),
					"rules": strList("style rules"),
				},
				Required: []string{"type", "rules"},
			},
			"locations":      strList("the only locations scenes may use"),
			"props":          strList("allowed props"),
			"motion_library": strList("allowed character motions"),
			"camera_styles":  strList("allowed camera styles"),
		},
		Required: []string{"character", "style", "locations", "props", "motion_library", "camera_styles"},
	}
}

func manifestItemSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scene_id": integer("1-based scene ordinal, at most 999"),
			"duration": integer("scene duration in seconds"),
			"location": str("one of the bible locations"),
			"beats":    str("the narrative beats of the scene"),
		},
		Required: []string{"scene_id", "duration", "location", "beats"},
	}
}

// SceneManifestSchema describes SceneManifest.
func SceneManifestSchema() *genai.Schema {
	return &genai.Schema{
		Title: SchemaSceneManifest,
		Type:  genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"total_duration": integer("sum of scene durations in seconds"),
			"scenes": {
				Type:  genai.TypeArray,
				Items: manifestItemSchema(),
			},
		},
		Required: []string{"total_duration", "scenes"},
	}
}

func layoutSchema(title string) *genai.Schema {
	return &genai.Schema{
		Title: title,
		Type:  genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scene_id":   integer("the manifest scene id"),
			"duration":   integer("scene duration in seconds"),
			"location":   str("one of the bible locations"),
			"camera":     str("one of the bible camera styles"),
			"action":     str("one of the bible motions"),
			"emotion":    str("the character's emotion"),
			"dialogue":   str("one or two short lines, may be empty"),
			"sfx":        strList("sound effects"),
			"music_mood": str("the music mood"),
		},
		Required: []string{"scene_id", "duration", "location", "camera", "action", "emotion", "dialogue", "sfx", "music_mood"},
	}
}

// SceneLayoutSchema describes SceneLayout.
func SceneLayoutSchema() *genai.Schema {
	return layoutSchema(SchemaSceneLayout)
}

// SceneLayoutValidationSchema describes SceneLayoutValidation.
func SceneLayoutValidationSchema() *genai.Schema {
	return &genai.Schema{
		Title: SchemaSceneLayoutValidation,
		Type:  genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"issues_found": strList("continuity issues that were detected"),
			"fixed_scenes": {
				Type:  genai.TypeArray,
				Items: layoutSchema(""),
			},
		},
		Required: []string{"issues_found", "fixed_scenes"},
	}
}

// EditorPlanSchema describes EditorPlan.
func EditorPlanSchema() *genai.Schema {
	return &genai.Schema{
		Title: SchemaEditorPlan,
		Type:  genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"resolution":       str("WIDTHxHEIGHT"),
			"fps":              integer("frames per second"),
			"format":           str("container format"),
			"subtitles_format": str("subtitle format"),
			"transitions":      boolean("whether transitions are applied"),
			"music":            boolean("whether music is mixed in"),
		},
		Required: []string{"resolution", "fps", "format", "subtitles_format", "transitions", "music"},
	}
}
