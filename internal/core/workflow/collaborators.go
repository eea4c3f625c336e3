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

// Package workflow assembles the pipeline stages into the task graphs a job
// runs: the story-to-video workflow and the character-only workflow.
package workflow

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/commands"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
)

// Collaborators are the external systems a workflow talks to. Each one is
// passed in explicitly so tests can substitute fakes.
type Collaborators struct {
	Text      generation.TextGenerator
	Images    generation.ImageGenerator // Optional; without it no character asset is generated.
	Renderer  commands.SceneRenderer
	Assembler commands.VideoAssembler
	Storage   *storage.Client // Optional; publishes final videos when set.
}

// NewCollaborators wires the configured Gemini models and the ffmpeg
// renderer and assembler.
func NewCollaborators(config *cloud.Config, clients *cloud.ServiceClients) (Collaborators, error) {
	text, err := clients.AgentModel(config.Generation.AgentModel)
	if err != nil {
		return Collaborators{}, err
	}
	out := Collaborators{
		Text:      text,
		Renderer:  commands.NewFFMpegRenderer(config.Render, config.Application.AssetsDir),
		Assembler: commands.NewFFMpegAssembler(config.Render.FFmpegPath),
		Storage:   clients.StorageClient,
	}
	if clients.ImageModel != nil {
		out.Images = clients.ImageModel
	}
	return out, nil
}

func (c Collaborators) generationOptions(config *cloud.Config) []generation.Option {
	return []generation.Option{
		generation.WithMaxRetries(config.Generation.MaxRetries),
		generation.WithDelay(time.Duration(config.Generation.CallDelayMs) * time.Millisecond),
	}
}

func (c Collaborators) textClient(config *cloud.Config) *generation.Client {
	return generation.NewClient(c.Text, c.generationOptions(config)...)
}

func (c Collaborators) imageClient(config *cloud.Config) *generation.ImageClient {
	images := c.Images
	if images == nil {
		images = noImages{}
	}
	return generation.NewImageClient(images, config.ImageModels.Primary, config.ImageModels.Fallback, c.generationOptions(config)...)
}

// noImages stands in for an image model that is not configured.
type noImages struct{}

func (noImages) GenerateImage(context.Context, string, string) ([]byte, error) { return nil, nil }
