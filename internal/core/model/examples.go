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

// This file provides hardcoded example instances of the generated models.
// They are rendered into prompts as few-shot examples so the model sees the
// exact JSON shape it is expected to return.

// ExampleBible returns a sample SeriesBible.
func ExampleBible() *SeriesBible {
	return &SeriesBible{
		Character: BibleCharacter{
			Name:   "Bolt",
			Outfit: "rusty orange chassis with a blue scarf",
			AppearanceRules: []string{
				"round head with two round eyes",
				"scarf is always blue",
				"antenna on the left side",
			},
		},
		Style: BibleStyle{
			Type:  "2d_cartoon_clean",
			Rules: []string{"thick black outlines", "flat colors", "no gradients"},
		},
		Locations:     []string{"home", "street", "office", "warehouse"},
		Props:         []string{"phone", "box", "desk", "chair"},
		MotionLibrary: []string{"idle", "idle_talk", "walk_in", "walk_out", "point", "sit", "stand", "happy_jump", "sad_idle", "angry_talk"},
		CameraStyles:  []string{"wide", "medium", "close", "tracking"},
	}
}

// ExampleSceneLayout returns a sample SceneLayout. The layout stage asks for
// a single object, so the example is deliberately not wrapped in a list.
func ExampleSceneLayout() *SceneLayout {
	return &SceneLayout{
		SceneID:   1,
		Duration:  5,
		Location:  "street",
		Camera:    "wide",
		Action:    "walk_in",
		Emotion:   "curious",
		Dialogue:  "What is that?",
		SFX:       []string{"footsteps"},
		MusicMood: "playful",
	}
}
