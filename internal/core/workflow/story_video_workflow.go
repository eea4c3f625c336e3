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

package workflow

import (
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// StoryVideoWorkflow turns a queued story job into a video. The task graph
// is a sequential prefix (script, bible, character, manifest) followed by
// two fan-out groups, each closed by its join:
//
//	layout fan-out  -> continuity check
//	render fan-out  -> video assembly
//
// The first error stops the chain and the job is marked failed with the
// error text. Files already written are left in place.
type StoryVideoWorkflow struct {
	cor.BaseCommand
	store *services.JobStore
	chain cor.Chain // The underlying chain of commands to be executed.
}

// NewStoryVideoWorkflow builds the workflow.
//
// Inputs:
//   - config: The application configuration (profiles, prompts, render profile, workers).
//   - store: The job store.
//   - collaborators: The models, renderer and assembler.
//
// Outputs:
//   - *StoryVideoWorkflow: The workflow, ready to Execute.
//   - error: Returned when a prompt template does not parse.
func NewStoryVideoWorkflow(config *cloud.Config, store *services.JobStore, collaborators Collaborators) (*StoryVideoWorkflow, error) {
	prompts, err := commands.NewPromptSet(config.PromptTemplates)
	if err != nil {
		return nil, err
	}
	w := &StoryVideoWorkflow{BaseCommand: *cor.NewBaseCommand("story-video-workflow"), store: store}
	client := collaborators.textClient(config)
	images := collaborators.imageClient(config)
	workers := config.Generation.Workers

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewJobTaskReader("read-job-task", store, config))

	out.AddCommand(commands.NewStatusCheckpoint("status-script", store, model.CheckpointScript))
	out.AddCommand(commands.NewScriptWriter("write-script", client, prompts))

	out.AddCommand(commands.NewStatusCheckpoint("status-bible", store, model.CheckpointBible))
	out.AddCommand(commands.NewBibleCreator("create-series-bible", client, prompts))

	out.AddCommand(commands.NewStatusCheckpoint("status-character", store, model.CheckpointCharacter))
	out.AddCommand(commands.NewCharacterResolver("resolve-character", store, client, images, prompts))

	out.AddCommand(commands.NewStatusCheckpoint("status-director", store, model.CheckpointDirector))
	out.AddCommand(commands.NewSceneDirector("direct-scenes", client, prompts))
	out.AddCommand(commands.NewSceneLayout("layout-scenes", workers, client, prompts))

	out.AddCommand(commands.NewStatusCheckpoint("status-continuity", store, model.CheckpointContinuity))
	out.AddCommand(commands.NewContinuityCheck("check-continuity", client, prompts))
	out.AddCommand(commands.NewSceneRender("render-scenes", workers, collaborators.Renderer))

	out.AddCommand(commands.NewStatusCheckpoint("status-assembling", store, model.CheckpointAssembling))
	out.AddCommand(commands.NewVideoAssembly("assemble-video", collaborators.Assembler))
	if collaborators.Storage != nil && config.Storage.OutputBucket != "" {
		out.AddCommand(commands.NewGCSFileUpload("publish-video", collaborators.Storage, config.Storage.OutputBucket))
	}
	out.AddCommand(commands.NewStatusCheckpoint("status-completed", store, model.CheckpointCompleted))

	w.chain = out
	return w, nil
}

// Execute runs the chain and records a failure in the job status.
func (w *StoryVideoWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if !context.HasErrors() {
		w.Succeed(context)
		return
	}
	markFailed(w.store, context, "")
}

// markFailed writes the failed status. message overrides the error text.
func markFailed(store *services.JobStore, context cor.Context, message string) {
	err := cor.JoinErrors(context)
	jobID, ok := context.Get(commands.ParamJobID).(string)
	if !ok {
		slog.Error("job failed before it was loaded", "error", err)
		return
	}
	if message == "" {
		message = err.Error()
	}
	slog.Error("job failed", "job_id", jobID, "error", err)
	if werr := store.WriteStatus(model.NewStatusRecord(jobID, model.StatusFailed, 0, message)); werr != nil {
		slog.Error("unable to record job failure", "job_id", jobID, "error", werr)
	}
}
