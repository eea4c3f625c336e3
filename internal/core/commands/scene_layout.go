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
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// layoutScriptLimit bounds the screenplay excerpt given to each layout task.
const layoutScriptLimit = 1500

// SceneLayoutTask generates and persists the layout of one manifest item.
// Tasks run concurrently inside a cor.FanOut; each one writes only its own
// scenes/NNN.json.
type SceneLayoutTask struct {
	client  *generation.Client
	prompts *PromptSet
}

// NewSceneLayout builds the layout fan-out node. It reads []LayoutTask from
// ParamLayoutTasks and writes the ordered []cor.Result[model.SceneLayout] to
// ParamLayouts once every task has reported.
//
// Inputs:
//   - name: A string name for this node.
//   - workers: The number of layout tasks running at once.
//   - client: The generation client.
//   - prompts: The parsed prompt templates.
//
// Outputs:
//   - *cor.FanOut: The fan-out node.
func NewSceneLayout(name string, workers int, client *generation.Client, prompts *PromptSet) *cor.FanOut[LayoutTask, model.SceneLayout] {
	t := &SceneLayoutTask{client: client, prompts: prompts}
	out := cor.NewFanOut[LayoutTask, model.SceneLayout](name, workers, t.Run)
	out.InputParamName = ParamLayoutTasks
	out.OutputParamName = ParamLayouts
	return out
}

// Run produces the layout of task.Item. A layout whose location or camera
// the bible does not enumerate is retried like malformed output. The scene
// id is taken from the manifest whatever the model answered, so that file
// keys stay unique.
func (t *SceneLayoutTask) Run(ctx goctx.Context, _ int, task LayoutTask) (model.SceneLayout, error) {
	prompt, err := Render(t.prompts.SceneLayout, task.Data.With(model.ExampleSceneLayout(), ""))
	if err != nil {
		return model.SceneLayout{}, err
	}
	prompt = section(prompt, "BIBLE", mustJSON(task.Bible))
	prompt = section(prompt, "SCENE", mustJSON(task.Item))
	prompt = section(prompt, "SCREENPLAY EXCERPT", truncate(task.Script, layoutScriptLimit))

	layout, err := generation.Generate(ctx, t.client, prompt, model.SceneLayoutSchema(), task.Bible.CheckLayout)
	if err != nil {
		return model.SceneLayout{}, fmt.Errorf("scene %s: %w", model.SceneKey(task.Item.SceneID), err)
	}
	layout.SceneID = task.Item.SceneID
	if layout.Duration <= 0 {
		layout.Duration = task.Item.Duration
	}

	if err := services.WriteJSONFile(task.Files.Layout(layout.SceneID), layout); err != nil {
		return model.SceneLayout{}, err
	}
	slog.Debug("scene layout written", "job_id", task.Files.ID(), "scene_id", layout.SceneID)
	return *layout, nil
}
