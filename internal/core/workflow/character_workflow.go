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
	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// CharacterWorkflow renders a character image from a prompt so that a later
// story job can link it.
type CharacterWorkflow struct {
	cor.BaseCommand
	store *services.JobStore
	chain cor.Chain
}

func NewCharacterWorkflow(config *cloud.Config, store *services.JobStore, collaborators Collaborators) *CharacterWorkflow {
	w := &CharacterWorkflow{BaseCommand: *cor.NewBaseCommand("character-workflow"), store: store}

	out := cor.NewBaseChain(w.GetName())
	out.AddCommand(commands.NewJobTaskReader("read-job-task", store, config))
	out.AddCommand(commands.NewStatusCheckpoint("status-designing", store, model.CheckpointDesigning))
	out.AddCommand(commands.NewCharacterImage("generate-character", collaborators.imageClient(config)))
	out.AddCommand(commands.NewStatusCheckpoint("status-ready", store, model.CheckpointCharacterReady))

	w.chain = out
	return w
}

func (w *CharacterWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
	if !context.HasErrors() {
		w.Succeed(context)
		return
	}
	markFailed(w.store, context, model.CharacterFailedMessage)
}
