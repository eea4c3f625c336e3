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
	goctx "context"
	"fmt"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// SceneRenderer turns one layout into a clip of the scene's duration. It
// writes a placeholder clip when the real render fails and only returns an
// error when not even the placeholder could be written.
type SceneRenderer interface {
	Render(ctx goctx.Context, scene model.SceneLayout, characterPath, outPath string) error
}

// NewSceneRender builds the render fan-out node. It reads []RenderTask from
// ParamRenderTasks and writes []cor.Result[string] of clip paths to ParamClips.
func NewSceneRender(name string, workers int, renderer SceneRenderer) *cor.FanOut[RenderTask, string] {
	task := func(ctx goctx.Context, _ int, t RenderTask) (string, error) {
		if err := renderer.Render(ctx, t.Scene, t.CharacterPath, t.ClipPath); err != nil {
			return "", fmt.Errorf("scene %s: %w", model.SceneKey(t.Scene.SceneID), err)
		}
		if !services.FileExists(t.ClipPath) {
			return "", fmt.Errorf("scene %s: no clip at %s", model.SceneKey(t.Scene.SceneID), t.ClipPath)
		}
		return t.ClipPath, nil
	}
	out := cor.NewFanOut[RenderTask, string](name, workers, task)
	out.InputParamName = ParamRenderTasks
	out.OutputParamName = ParamClips
	return out
}
