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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// JobTaskReader is the entry point of every workflow. It accepts the task as
// a model.JobTask or as the raw JSON body of a queue message, and loads the
// persisted inputs of the job into the context.
//
// Logic Flow:
//  1. Decode the task from the input parameter.
//  2. Resolve the job directory and fail when it does not exist.
//  3. For a story job, read input.json and resolve the pipeline profile into
//     the PromptData used by every prompt template.
//  4. For a character job, read the stored character prompt.
type JobTaskReader struct {
	cor.BaseCommand
	store  *services.JobStore
	config *cloud.Config
}

// NewJobTaskReader is the constructor for the JobTaskReader command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - store: The job store holding the job directories.
//   - config: The application configuration, used to resolve profiles.
//
// Outputs:
//   - *JobTaskReader: A pointer to the newly instantiated command.
func NewJobTaskReader(name string, store *services.JobStore, config *cloud.Config) *JobTaskReader {
	return &JobTaskReader{BaseCommand: *cor.NewBaseCommand(name), store: store, config: config}
}

// DecodeTask converts a context value into a JobTask.
func DecodeTask(in any) (model.JobTask, error) {
	var task model.JobTask
	switch v := in.(type) {
	case model.JobTask:
		task = v
	case *model.JobTask:
		task = *v
	case string:
		if err := json.Unmarshal([]byte(v), &task); err != nil {
			return task, fmt.Errorf("failed to unmarshal job task: %w", err)
		}
	case []byte:
		if err := json.Unmarshal(v, &task); err != nil {
			return task, fmt.Errorf("failed to unmarshal job task: %w", err)
		}
	default:
		return task, fmt.Errorf("unsupported job task type %T", in)
	}
	if task.Kind == "" {
		task.Kind = model.JobKindStory
	}
	return task, nil
}

func (c *JobTaskReader) Execute(context cor.Context) {
	task, err := DecodeTask(context.Get(c.GetInputParam()))
	if err != nil {
		c.Fail(context, err)
		return
	}
	if !c.store.Exists(task.JobID) {
		c.Fail(context, fmt.Errorf("%w: %s", services.ErrJobNotFound, task.JobID))
		return
	}
	files, _ := c.store.Files(task.JobID)

	context.Add(ParamTask, task)
	context.Add(ParamJobID, task.JobID)
	context.Add(ParamFiles, files)

	switch task.Kind {
	case model.JobKindCharacter:
		prompt, err := c.store.ReadCharacterPrompt(task.JobID)
		if err != nil {
			c.Fail(context, err)
			return
		}
		context.Add(ParamCharacterPrompt, prompt)
	default:
		req, err := c.store.ReadInput(task.JobID)
		if err != nil {
			c.Fail(context, err)
			return
		}
		name, profile, ok := c.config.Profile(req.Profile)
		if !ok {
			slog.Warn("unknown profile, deriving scenes from the requested duration", "job_id", task.JobID, "profile", name)
		}
		data := NewPromptData(profile, req)
		if data.TotalSeconds != req.DurationSeconds {
			slog.Warn("profile overrides the requested duration", "job_id", task.JobID, "profile", name,
				"requested_seconds", req.DurationSeconds, "target_seconds", data.TotalSeconds)
		}
		slog.Info("job loaded", "job_id", task.JobID, "profile", name, "scenes", data.SceneCount, "seconds", data.TotalSeconds)
		context.Add(ParamRequest, req)
		context.Add(ParamPromptData, data)
	}

	c.Succeed(context)
	context.Add(c.GetOutputParam(), task)
}
