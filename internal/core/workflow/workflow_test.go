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

package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/jaycherian/gcp-go-story-video/internal/core/workflow"
	"github.com/jaycherian/gcp-go-story-video/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const robotStory = "A robot finds a flower in a scrapyard and takes it home."

type fakeRenderer struct {
	calls atomic.Int32
}

func (r *fakeRenderer) Render(_ context.Context, scene model.SceneLayout, _ string, outPath string) error {
	r.calls.Add(1)
	return os.WriteFile(outPath, []byte(model.SceneKey(scene.SceneID)), 0o644)
}

type fakeAssembler struct {
	err error
}

func (a *fakeAssembler) Concat(_ context.Context, listPath, outPath string) error {
	if a.err != nil {
		return a.err
	}
	data, err := os.ReadFile(listPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

// testConfig copies the shared test configuration.
func testConfig() *cloud.Config {
	config := *testutil.GetConfig()
	config.Generation.CallDelayMs = 0
	return &config
}

func newRunner(t *testing.T, config *cloud.Config, collaborators workflow.Collaborators) (*workflow.Runner, *services.JobStore) {
	t.Helper()
	store, err := services.NewJobStore(t.TempDir())
	require.NoError(t, err)
	runner, err := workflow.NewRunner(config, store, collaborators)
	require.NoError(t, err)
	return runner, store
}

func TestStoryWorkflowCompletes(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Scenes: 3, Image: testutil.PNG(t, 8, 8)}
	renderer := &fakeRenderer{}
	runner, store := newRunner(t, testConfig(), workflow.Collaborators{
		Text: gen, Images: gen, Renderer: renderer, Assembler: &fakeAssembler{},
	})

	ctx, span := tracer.Start(context.Background(), "story-workflow-test")
	defer span.End()
	jobID, err := store.Create(model.JobRequest{Story: robotStory, Profile: "teaser"})
	require.NoError(t, err)
	logger.InfoContext(ctx, "running story job", "job_id", jobID)
	require.NoError(t, runner.Run(ctx, model.JobTask{JobID: jobID, Kind: model.JobKindStory}))

	status, err := store.Status(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
	assert.Equal(t, 100, status.ProgressCurrent)
	assert.Equal(t, model.CheckpointCompleted.Message, status.Message)
	require.NotNil(t, status.Artifacts)
	assert.NotEmpty(t, status.Artifacts.CharacterImage)

	assert.Equal(t, int32(3), renderer.calls.Load())
	path, err := store.FinalVideo(jobID)
	require.NoError(t, err)
	assert.FileExists(t, path)

	files, _ := store.Files(jobID)
	for _, f := range []string{files.Script(), files.Bible(), files.Manifest(), files.DebugReport(), files.EditorPlan(), files.Character()} {
		assert.FileExists(t, f)
	}
}

func TestStoryWorkflowFailureIsRecorded(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Broken: map[string]bool{model.SchemaSeriesBible: true}}
	renderer := &fakeRenderer{}
	runner, store := newRunner(t, testConfig(), workflow.Collaborators{
		Text: gen, Renderer: renderer, Assembler: &fakeAssembler{},
	})

	jobID, err := store.Create(model.JobRequest{Story: robotStory})
	require.NoError(t, err)
	err = runner.Run(context.Background(), model.JobTask{JobID: jobID})
	require.Error(t, err)

	status, serr := store.ReadStatus(jobID)
	require.NoError(t, serr)
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Equal(t, 0, status.ProgressCurrent)
	assert.Contains(t, status.Message, model.SchemaSeriesBible)
	// Nothing downstream of the bible ran.
	assert.Zero(t, gen.Calls(model.SchemaSceneManifest))
	assert.Zero(t, renderer.calls.Load())

	files, _ := store.Files(jobID)
	assert.FileExists(t, files.Script())
	assert.NoFileExists(t, files.Manifest())
}

func TestStoryWorkflowFailsWhenAssemblyFails(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Scenes: 2}
	runner, store := newRunner(t, testConfig(), workflow.Collaborators{
		Text: gen, Renderer: &fakeRenderer{}, Assembler: &fakeAssembler{err: errors.New("concat exploded")},
	})

	jobID, err := store.Create(model.JobRequest{Story: robotStory})
	require.NoError(t, err)
	require.Error(t, runner.Run(context.Background(), model.JobTask{JobID: jobID}))

	status, err := store.ReadStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, status.Status)
	assert.Contains(t, status.Message, "video assembly failed")
	assert.Contains(t, status.Message, "concat exploded")
}

func TestStoryWorkflowToleratesFailedScenes(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Scenes: 3, BrokenScenes: map[int]bool{2: true}}
	renderer := &fakeRenderer{}
	runner, store := newRunner(t, testConfig(), workflow.Collaborators{
		Text: gen, Renderer: renderer, Assembler: &fakeAssembler{},
	})

	jobID, err := store.Create(model.JobRequest{Story: robotStory})
	require.NoError(t, err)
	require.NoError(t, runner.Run(context.Background(), model.JobTask{JobID: jobID}))

	files, _ := store.Files(jobID)
	var report model.DebugReport
	require.NoError(t, services.ReadJSONFile(files.DebugReport(), &report))
	require.Len(t, report.FailedLayouts, 1)
	assert.Equal(t, 2, report.FailedLayouts[0].SceneID)
	assert.Equal(t, int32(2), renderer.calls.Load())

	status, err := store.ReadStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
}

func TestCharacterWorkflow(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{Image: testutil.PNG(t, 8, 8)}
		runner, store := newRunner(t, testConfig(), workflow.Collaborators{Text: gen, Images: gen})

		jobID, err := store.CreateCharacter(model.CharacterRequest{Prompt: "a small rusty robot"})
		require.NoError(t, err)
		require.NoError(t, runner.Run(context.Background(), model.JobTask{JobID: jobID, Kind: model.JobKindCharacter}))

		status, err := store.ReadStatus(jobID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, status.Status)
		assert.Equal(t, model.CheckpointCharacterReady.Message, status.Message)
		files, _ := store.Files(jobID)
		assert.FileExists(t, files.Character())
	})

	t.Run("no image model", func(t *testing.T) {
		gen := &testutil.ScriptedGenerator{}
		runner, store := newRunner(t, testConfig(), workflow.Collaborators{Text: gen})

		jobID, err := store.CreateCharacter(model.CharacterRequest{Prompt: "a small rusty robot"})
		require.NoError(t, err)
		require.Error(t, runner.Run(context.Background(), model.JobTask{JobID: jobID, Kind: model.JobKindCharacter}))

		status, err := store.ReadStatus(jobID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, status.Status)
		assert.Equal(t, model.CharacterFailedMessage, status.Message)
	})
}

func TestRunnerExecutesQueuedMessages(t *testing.T) {
	gen := &testutil.ScriptedGenerator{Image: testutil.PNG(t, 8, 8)}
	runner, store := newRunner(t, testConfig(), workflow.Collaborators{Text: gen, Images: gen})
	jobID, err := store.CreateCharacter(model.CharacterRequest{Prompt: "a small rusty robot"})
	require.NoError(t, err)

	// The Pub/Sub listener hands over the raw message body.
	body, err := json.Marshal(model.JobTask{JobID: jobID, Kind: model.JobKindCharacter})
	require.NoError(t, err)
	chCtx := cor.NewContext(context.Background())
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, string(body))
	runner.Execute(chCtx)
	require.NoError(t, cor.JoinErrors(chCtx))

	status, err := store.ReadStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)
}

func TestRunnerRejectsBadInput(t *testing.T) {
	runner, _ := newRunner(t, testConfig(), workflow.Collaborators{Text: &testutil.ScriptedGenerator{}})

	assert.ErrorIs(t, runner.Run(context.Background(), model.JobTask{JobID: "missing"}), services.ErrJobNotFound)

	chCtx := cor.NewContext(context.Background())
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, "not json")
	runner.Execute(chCtx)
	assert.True(t, chCtx.HasErrors())
}

func TestStoryWorkflowRendersWithFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found on PATH")
	}
	gen := &testutil.ScriptedGenerator{Scenes: 10}
	config := testConfig()
	config.Application.AssetsDir = t.TempDir()
	runner, store := newRunner(t, config, workflow.Collaborators{
		Text:      gen,
		Renderer:  commands.NewFFMpegRenderer(config.Render, config.Application.AssetsDir),
		Assembler: commands.NewFFMpegAssembler(config.Render.FFmpegPath),
	})

	jobID, err := store.Create(model.JobRequest{Story: robotStory, Profile: "full", DurationSeconds: 60})
	require.NoError(t, err)
	require.NoError(t, runner.Run(context.Background(), model.JobTask{JobID: jobID}))

	status, err := store.ReadStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, status.Status)

	path, err := store.FinalVideo(jobID)
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(1024))
}
