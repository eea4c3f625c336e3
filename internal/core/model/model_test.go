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

// Package model_test covers request defaults, the status state machine and
// validation of the generated models.
package model_test

import (
	"fmt"
	"sort"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRequestDefaults(t *testing.T) {
	req := model.JobRequest{Story: "A robot finds a flower", CharacterJobID: "  abc "}
	req.ApplyDefaults()

	assert.Equal(t, model.DefaultDurationSeconds, req.DurationSeconds)
	assert.Equal(t, model.DefaultStylePack, req.StylePack)
	require.NotNil(t, req.Subtitles)
	assert.True(t, *req.Subtitles)
	assert.Equal(t, "en", req.Voice.Language)
	assert.Equal(t, "male", req.Voice.Gender)
	assert.Equal(t, "abc", req.CharacterJobID)

	// Explicit values survive.
	off := false
	req = model.JobRequest{Story: "x", DurationSeconds: 60, Subtitles: &off}
	req.ApplyDefaults()
	assert.Equal(t, 60, req.DurationSeconds)
	assert.False(t, *req.Subtitles)
}

func TestCharacterRequestDefaults(t *testing.T) {
	req := model.CharacterRequest{Prompt: "   "}
	req.ApplyDefaults()
	assert.Equal(t, model.DefaultCharacterPrompt, req.Prompt)
}

func TestStoryLifecycleIsAccepted(t *testing.T) {
	steps := []model.Checkpoint{
		model.CheckpointScript,
		model.CheckpointBible,
		model.CheckpointCharacter,
		{Status: model.StatusGenerating, Progress: model.CharacterProgress, Message: model.CharacterCreatedMessage},
		model.CheckpointDirector,
		model.CheckpointContinuity,
		model.CheckpointAssembling,
		model.CheckpointCompleted,
	}
	var current *model.StatusRecord
	for _, cp := range steps {
		next := model.NewStatusRecord("job", cp.Status, cp.Progress, cp.Message)
		require.NoError(t, model.ValidateTransition(current, next), "%s %d", cp.Status, cp.Progress)
		current = &next
	}
	assert.True(t, current.Status.IsTerminal())
}

func TestCharacterLifecycleIsAccepted(t *testing.T) {
	designing := model.NewStatusRecord("c", model.CheckpointDesigning.Status, 0, model.CheckpointDesigning.Message)
	require.NoError(t, model.ValidateTransition(nil, designing))
	ready := model.NewStatusRecord("c", model.StatusCompleted, 100, "")
	require.NoError(t, model.ValidateTransition(&designing, ready))
}

func TestTransitionsNeverMoveBackwards(t *testing.T) {
	tests := []struct {
		name string
		from model.StatusRecord
		to   model.StatusRecord
	}{
		{"completed is terminal", model.NewStatusRecord("j", model.StatusCompleted, 100, ""), model.NewStatusRecord("j", model.StatusPlanning, 100, "")},
		{"failed is terminal", model.NewStatusRecord("j", model.StatusFailed, 0, ""), model.NewStatusRecord("j", model.StatusCompleted, 100, "")},
		{"failed cannot be re-failed", model.NewStatusRecord("j", model.StatusFailed, 0, "a"), model.NewStatusRecord("j", model.StatusFailed, 0, "b")},
		{"assembling cannot re-plan", model.NewStatusRecord("j", model.StatusAssembling, 90, ""), model.NewStatusRecord("j", model.StatusPlanning, 95, "")},
		{"progress cannot decrease", model.NewStatusRecord("j", model.StatusPlanning, 35, ""), model.NewStatusRecord("j", model.StatusPlanning, 20, "")},
		{"back to queued", model.NewStatusRecord("j", model.StatusPlanning, 10, ""), model.NewStatusRecord("j", model.StatusQueued, 10, "")},
		{"unknown status", model.NewStatusRecord("j", model.StatusPlanning, 10, ""), model.NewStatusRecord("j", "paused", 10, "")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := tt.from
			assert.ErrorIs(t, model.ValidateTransition(&from, tt.to), model.ErrInvalidTransition)
		})
	}
}

func TestFailureIsReachableFromEveryActiveState(t *testing.T) {
	for _, s := range []model.Status{model.StatusQueued, model.StatusPlanning, model.StatusGenerating, model.StatusAssembling} {
		from := model.NewStatusRecord("j", s, 50, "")
		assert.NoError(t, model.ValidateTransition(&from, model.NewStatusRecord("j", model.StatusFailed, 0, "boom")), s)
	}
}

func TestNewStatusRecordDefaultsMessage(t *testing.T) {
	rec := model.NewStatusRecord("j", model.StatusPlanning, 10, "")
	assert.Equal(t, "planning", rec.Message)
	assert.Equal(t, model.ProgressTotal, rec.ProgressTotal)
}

func TestSceneKeyOrderingMatchesNumericOrder(t *testing.T) {
	ids := []int{999, 1, 10, 100, 2, 20, 99, 9}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, model.SceneKey(id)+".mp4")
	}
	sort.Strings(names)

	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	for i, id := range sorted {
		assert.Equal(t, fmt.Sprintf("%03d.mp4", id), names[i])
	}
}

func TestDedupeScenesKeepsFirst(t *testing.T) {
	scenes := []model.SceneLayout{{SceneID: 2, Action: "a"}, {SceneID: 1}, {SceneID: 2, Action: "b"}}
	unique, dropped := model.DedupeScenes(scenes)
	require.Len(t, unique, 2)
	assert.Equal(t, "a", unique[0].Action)
	assert.Equal(t, []int{2}, dropped)

	model.SortScenes(unique)
	assert.Equal(t, 1, unique[0].SceneID)
}

func TestExamplesValidate(t *testing.T) {
	assert.NoError(t, model.Validate(model.ExampleBible()))
	assert.NoError(t, model.Validate(model.ExampleSceneLayout()))
	plan := model.DefaultEditorPlan()
	assert.NoError(t, model.Validate(&plan))
}

func TestValidateRejectsIncompleteValues(t *testing.T) {
	assert.Error(t, model.Validate(&model.SeriesBible{}))
	assert.Error(t, model.Validate(&model.SceneLayout{SceneID: 1000, Duration: 5, Location: "home", Camera: "wide", Action: "idle", Emotion: "calm", MusicMood: "soft"}))
	assert.Error(t, model.Validate(&model.SceneManifest{TotalDuration: 15}))
}

func TestBibleAllowsEnumeratedValues(t *testing.T) {
	bible := model.ExampleBible()
	assert.True(t, bible.AllowsLocation("Street"))
	assert.False(t, bible.AllowsLocation("moon"))
	assert.True(t, bible.AllowsCamera("close"))
	assert.Contains(t, bible.CharacterDescription(), "Name: Bolt.")
}

func TestBibleChecksLayoutsAndManifests(t *testing.T) {
	bible := model.ExampleBible()
	layout := model.ExampleSceneLayout()
	assert.NoError(t, bible.CheckLayout(layout))

	layout.Location = "moon"
	layout.Camera = "drone"
	err := bible.CheckLayout(layout)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `location "moon"`)
	assert.Contains(t, err.Error(), `camera "drone"`)

	manifest := &model.SceneManifest{Scenes: []model.SceneManifestItem{
		{SceneID: 1, Duration: 5, Location: "home"},
		{SceneID: 2, Duration: 5, Location: "moon"},
	}}
	assert.ErrorContains(t, bible.CheckManifest(manifest), "scene 2")
}

func TestManifestCheckDuration(t *testing.T) {
	manifest := &model.SceneManifest{Scenes: []model.SceneManifestItem{{Duration: 40}, {Duration: 40}, {Duration: 40}}}
	assert.Equal(t, 120, manifest.SceneSeconds())
	assert.ErrorContains(t, manifest.CheckDuration(15, 2), "scenes last 120s")
	assert.NoError(t, manifest.CheckDuration(121, 2))
	assert.NoError(t, manifest.CheckDuration(118, 2))
	assert.Error(t, manifest.CheckDuration(117, 2))
}

func TestSchemasCarryTitles(t *testing.T) {
	assert.Equal(t, model.SchemaSeriesBible, model.SeriesBibleSchema().Title)
	assert.Equal(t, model.SchemaSceneManifest, model.SceneManifestSchema().Title)
	assert.Equal(t, model.SchemaSceneLayout, model.SceneLayoutSchema().Title)
	assert.Equal(t, model.SchemaSceneLayoutValidation, model.SceneLayoutValidationSchema().Title)
	assert.Equal(t, model.SchemaEditorPlan, model.EditorPlanSchema().Title)
	assert.Contains(t, model.SceneLayoutSchema().Required, "scene_id")
}
