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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs storyctl against a private configuration and jobs directory.
func execute(t *testing.T, jobsDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(cloud.EnvConfigFilePrefix, "")
	t.Setenv(cloud.EnvConfigRuntime, "")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config-dir", t.TempDir(), "--runtime", "none", "--jobs-dir", jobsDir}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestSubmitCreatesQueuedJob(t *testing.T) {
	jobsDir := t.TempDir()
	out, err := execute(t, jobsDir, "submit", "--story", "A robot finds a flower.", "--duration", "60", "--profile", "full")
	require.NoError(t, err)
	jobID := strings.TrimSpace(out)

	store, err := services.NewJobStore(jobsDir)
	require.NoError(t, err)
	req, err := store.ReadInput(jobID)
	require.NoError(t, err)
	assert.Equal(t, 60, req.DurationSeconds)
	assert.Equal(t, "full", req.Profile)

	status, err := store.ReadStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, status.Status)
}

func TestSubmitReadsStoryFile(t *testing.T) {
	jobsDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "story.txt")
	require.NoError(t, os.WriteFile(path, []byte("A robot finds a flower."), 0o644))

	out, err := execute(t, jobsDir, "submit", "-f", path)
	require.NoError(t, err)

	store, err := services.NewJobStore(jobsDir)
	require.NoError(t, err)
	req, err := store.ReadInput(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "A robot finds a flower.", req.Story)
}

func TestSubmitRequiresStory(t *testing.T) {
	_, err := execute(t, t.TempDir(), "submit")
	assert.ErrorContains(t, err, "story is required")
}

func TestStatusTable(t *testing.T) {
	jobsDir := t.TempDir()
	story, err := execute(t, jobsDir, "submit", "--story", "A robot finds a flower.")
	require.NoError(t, err)
	character, err := execute(t, jobsDir, "character", "--prompt", "a rusty robot")
	require.NoError(t, err)

	out, err := execute(t, jobsDir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, strings.TrimSpace(story))
	assert.Contains(t, out, strings.TrimSpace(character))
	assert.Contains(t, out, "queued")
	assert.Contains(t, out, "character")
	assert.Contains(t, out, services.QueuedMessage)
}

func TestStatusUnknownJob(t *testing.T) {
	_, err := execute(t, t.TempDir(), "status", "8d4a5a0e-7f4e-4d5f-9a59-0c9a1f2f6b11")
	assert.ErrorIs(t, err, services.ErrJobNotFound)
}

func TestRenderJobTable(t *testing.T) {
	out := renderJobTable([]jobRow{
		{ID: "a", Kind: model.JobKindStory, Record: model.NewStatusRecord("a", model.StatusGenerating, 35, "Director planning scenes...")},
		{ID: "b", Kind: model.JobKindStory, Record: model.NewStatusRecord("b", model.StatusFailed, 0, "boom"), Video: "/jobs/b/final.mp4"},
	})
	assert.Contains(t, out, "Progress")
	assert.Contains(t, out, "35%")
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, "/jobs/b/final.mp4")
	assert.NotContains(t, renderJobTable(nil), "35%")
}
