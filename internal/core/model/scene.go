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
	"fmt"
	"sort"
)

// MaxSceneID is the largest id that keeps the three-digit zero padding, and
// with it the lexicographic ordering of scene files, valid.
const MaxSceneID = 999

// SceneManifestItem is a coarse scene descriptor.
type SceneManifestItem struct {
	SceneID  int    `json:"scene_id" validate:"gte=1,lte=999"`
	Duration int    `json:"duration" validate:"gte=1"`
	Location string `json:"location" validate:"required"`
	Beats    string `json:"beats" validate:"required"`
}

// SceneManifest is the ordered scene breakdown of the script.
type SceneManifest struct {
	TotalDuration int                 `json:"total_duration" validate:"gte=1"`
	Scenes        []SceneManifestItem `json:"scenes" validate:"required,min=1,dive"`
}

// SceneSeconds is the sum of the scene durations.
func (m *SceneManifest) SceneSeconds() int {
	total := 0
	for _, s := range m.Scenes {
		total += s.Duration
	}
	return total
}

// CheckDuration fails when the scene durations do not add up to target
// seconds within tolerance.
func (m *SceneManifest) CheckDuration(target, tolerance int) error {
	sum := m.SceneSeconds()
	if sum < target-tolerance || sum > target+tolerance {
		return fmt.Errorf("scenes last %ds, want %ds +/-%ds", sum, target, tolerance)
	}
	return nil
}

// SceneLayout is a fully specified, render-ready scene.
type SceneLayout struct {
	SceneID   int      `json:"scene_id" validate:"gte=1,lte=999"`
	Duration  int      `json:"duration" validate:"gte=1"`
	Location  string   `json:"location" validate:"required"`
	Camera    string   `json:"camera" validate:"required"`
	Action    string   `json:"action" validate:"required"`
	Emotion   string   `json:"emotion" validate:"required"`
	Dialogue  string   `json:"dialogue"`
	SFX       []string `json:"sfx"`
	MusicMood string   `json:"music_mood" validate:"required"`
}

// SceneLayoutValidation is the continuity report produced once per job.
type SceneLayoutValidation struct {
	IssuesFound []string      `json:"issues_found"`
	FixedScenes []SceneLayout `json:"fixed_scenes" validate:"required,min=1,dive"`
}

// EditorPlan holds advisory assembly parameters.
type EditorPlan struct {
	Resolution      string `json:"resolution" validate:"required"`
	FPS             int    `json:"fps" validate:"gte=1"`
	Format          string `json:"format" validate:"required"`
	SubtitlesFormat string `json:"subtitles_format"`
	Transitions     bool   `json:"transitions"`
	Music           bool   `json:"music"`
}

// DefaultEditorPlan is the plan used when the producer stage is not reached.
func DefaultEditorPlan() EditorPlan {
	return EditorPlan{
		Resolution:      "1920x1080",
		FPS:             30,
		Format:          "mp4",
		SubtitlesFormat: "srt",
	}
}

// SceneKey is the fixed-width, zero-padded form of a scene id used for every
// per-scene file name.
func SceneKey(sceneID int) string {
	return fmt.Sprintf("%03d", sceneID)
}

// SortScenes orders layouts by scene id.
func SortScenes(scenes []SceneLayout) {
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].SceneID < scenes[j].SceneID })
}

// DedupeScenes keeps the first layout of every scene id, so that scene ids
// stay unique within a job.
func DedupeScenes(scenes []SceneLayout) (unique []SceneLayout, dropped []int) {
	seen := make(map[int]bool, len(scenes))
	for _, s := range scenes {
		if seen[s.SceneID] {
			dropped = append(dropped, s.SceneID)
			continue
		}
		seen[s.SceneID] = true
		unique = append(unique, s)
	}
	return unique, dropped
}

// FailedLayout names a scene whose layout task did not produce a value.
type FailedLayout struct {
	SceneID int    `json:"scene_id"`
	Error   string `json:"error"`
}

// DebugReport is the persisted outcome of the continuity check.
type DebugReport struct {
	SceneLayoutValidation
	FailedLayouts   []FailedLayout `json:"failed_layouts,omitempty"`
	DroppedSceneIDs []int          `json:"dropped_scene_ids,omitempty"`
}
