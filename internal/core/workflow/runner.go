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
	"context"
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// Runner routes a job task to the workflow of its kind. It is both the
// services.TaskRunner of the local dispatcher and the cor.Command driven by
// the Pub/Sub listener.
type Runner struct {
	cor.BaseCommand
	story     cor.Command
	character cor.Command
}

// NewRunner builds both workflows around the same collaborators.
func NewRunner(config *cloud.Config, store *services.JobStore, collaborators Collaborators) (*Runner, error) {
	story, err := NewStoryVideoWorkflow(config, store, collaborators)
	if err != nil {
		return nil, err
	}
	return &Runner{
		BaseCommand: *cor.NewBaseCommand("job-runner"),
		story:       story,
		character:   NewCharacterWorkflow(config, store, collaborators),
	}, nil
}

// Run executes task to completion and returns the job's errors, if any.
func (r *Runner) Run(ctx context.Context, task model.JobTask) error {
	chCtx := cor.NewContext(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, task)
	r.Execute(chCtx)
	return cor.JoinErrors(chCtx)
}

func (r *Runner) Execute(context cor.Context) {
	task, err := commands.DecodeTask(context.Get(r.GetInputParam()))
	if err != nil {
		r.Fail(context, err)
		return
	}
	parent := context.GetContext()
	context.SetContext(services.ExtractTrace(parent, task))
	defer context.SetContext(parent)
	context.Add(cor.CtxIn, task)

	slog.Info("job started", "job_id", task.JobID, "kind", task.Kind)
	switch task.Kind {
	case model.JobKindCharacter:
		r.character.Execute(context)
	default:
		r.story.Execute(context)
	}
	if context.HasErrors() {
		return
	}
	slog.Info("job finished", "job_id", task.JobID, "kind", task.Kind)
	r.Succeed(context)
}
