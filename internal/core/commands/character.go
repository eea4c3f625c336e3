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
	"errors"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// CharacterResolver makes sure the job has a character asset before the
// scenes are planned. A linked asset wins; otherwise the bible character is
// turned into an image prompt and rendered. Failing to produce an asset is
// not an error: the renderer falls back to the shared character.
type CharacterResolver struct {
	cor.BaseCommand
	store   *services.JobStore
	client  *generation.Client
	images  *generation.ImageClient
	prompts *PromptSet
}

func NewCharacterResolver(
	name string,
	store *services.JobStore,
	client *generation.Client,
	images *generation.ImageClient,
	prompts *PromptSet) *CharacterResolver {
	out := &CharacterResolver{
		BaseCommand: *cor.NewBaseCommand(name),
		store:       store,
		client:      client,
		images:      images,
		prompts:     prompts,
	}
	out.InputParamName = ParamBible
	out.OutputParamName = ParamCharacter
	return out
}

func (c *CharacterResolver) IsExecutable(context cor.Context) bool {
	return has(context, ParamBible, ParamRequest, ParamPromptData, ParamFiles)
}

func (c *CharacterResolver) Execute(context cor.Context) {
	bible, _ := value[*model.SeriesBible](context, ParamBible)
	req, _ := value[model.JobRequest](context, ParamRequest)
	data, _ := value[PromptData](context, ParamPromptData)
	files, _ := value[services.JobFiles](context, ParamFiles)
	jobID := files.ID()

	// The link normally happened at submission; repeating it covers jobs
	// whose source asset appeared later.
	if req.CharacterJobID != "" {
		c.store.LinkCharacter(req.CharacterJobID, jobID)
	}

	message := model.CharacterLinkedMessage
	switch {
	case services.FileExists(files.Character()):
		slog.Info("using existing character asset", "job_id", jobID)
	case c.design(context, bible, data, files):
		message = model.CharacterCreatedMessage
	default:
		slog.Warn("character generation failed, using fallback", "job_id", jobID)
		message = model.CharacterFallbackMessage
	}

	if err := writeStatus(c.store, jobID, model.StatusGenerating, model.CharacterProgress, message); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	if services.FileExists(files.Character()) {
		context.Add(c.GetOutputParam(), files.Character())
	}
}

// design asks the model for an image prompt, then renders it.
func (c *CharacterResolver) design(context cor.Context, bible *model.SeriesBible, data PromptData, files services.JobFiles) bool {
	description := bible.CharacterDescription()
	imagePrompt := description
	prompt, err := Render(c.prompts.CharacterDesigner, data.With(nil, description))
	if err == nil {
		var text string
		text, err = c.client.Text(context.GetContext(), prompt)
		if t := strings.TrimSpace(text); err == nil && t != "" {
			imagePrompt = t
		}
	}
	if err != nil {
		slog.Warn("character designer failed, using the bible description", "job_id", files.ID(), "error", err)
	}
	return saveCharacter(context, c.images, imagePrompt, files)
}

// saveCharacter renders prompt and stores it as the job's character asset.
// The asset is only ever visible complete, so a crash mid-write never
// leaves a file that later runs would take as an existing asset.
func saveCharacter(context cor.Context, images *generation.ImageClient, prompt string, files services.JobFiles) bool {
	data, ok := images.Generate(context.GetContext(), prompt)
	if !ok {
		return false
	}
	if err := services.WriteFileAtomic(files.Character(), data); err != nil {
		slog.Warn("unable to store character asset", "job_id", files.ID(), "error", err)
		return false
	}
	return true
}

// CharacterImage is the single stage of a character-only job. Unlike the
// resolver it fails the job when no image is produced.
type CharacterImage struct {
	cor.BaseCommand
	images *generation.ImageClient
}

func NewCharacterImage(name string, images *generation.ImageClient) *CharacterImage {
	out := &CharacterImage{BaseCommand: *cor.NewBaseCommand(name), images: images}
	out.InputParamName = ParamCharacterPrompt
	out.OutputParamName = ParamCharacter
	return out
}

func (c *CharacterImage) IsExecutable(context cor.Context) bool {
	return has(context, ParamCharacterPrompt, ParamFiles)
}

func (c *CharacterImage) Execute(context cor.Context) {
	prompt, _ := value[string](context, ParamCharacterPrompt)
	files, _ := value[services.JobFiles](context, ParamFiles)

	if !saveCharacter(context, c.images, prompt, files) {
		c.Fail(context, errors.New(model.CharacterFailedMessage))
		return
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), files.Character())
}
