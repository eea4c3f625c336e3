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
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// RenderTask is one unit of the render fan-out.
type RenderTask struct {
	JobID         string
	Scene         model.SceneLayout
	CharacterPath string // Empty when the job has no character asset.
	ClipPath      string
}

// ContinuityCheck is the join of the layout fan-out. It runs once, after
// every layout task has reported, over the layouts that succeeded.
//
// Logic Flow:
//  1. Split the fan-out results; fail only when no layout succeeded.
//  2. Ask the continuity supervisor to validate and fix the full list.
//  3. Keep the first layout of every scene id and sort by id.
//  4. Persist debug_report.json with the issues, failed tasks and dropped ids.
//     Values the supervisor left outside the bible are added to the issues.
//  5. Ask the post producer for the editor plan. A failure here falls back
//     to model.DefaultEditorPlan since the plan is advisory.
//  6. Emit one RenderTask per final scene.
type ContinuityCheck struct {
	cor.BaseCommand
	client  *generation.Client
	prompts *PromptSet
}

func NewContinuityCheck(name string, client *generation.Client, prompts *PromptSet) *ContinuityCheck {
	out := &ContinuityCheck{BaseCommand: *cor.NewBaseCommand(name), client: client, prompts: prompts}
	out.InputParamName = ParamLayouts
	out.OutputParamName = ParamRenderTasks
	return out
}

func (c *ContinuityCheck) IsExecutable(context cor.Context) bool {
	return has(context, ParamLayouts, ParamLayoutTasks, ParamBible, ParamPromptData, ParamFiles)
}

func (c *ContinuityCheck) Execute(context cor.Context) {
	results, _ := value[[]cor.Result[model.SceneLayout]](context, ParamLayouts)
	tasks, _ := value[[]LayoutTask](context, ParamLayoutTasks)
	bible, _ := value[*model.SeriesBible](context, ParamBible)
	data, _ := value[PromptData](context, ParamPromptData)
	files, _ := value[services.JobFiles](context, ParamFiles)
	characterPath, _ := value[string](context, ParamCharacter)

	layouts := cor.Succeeded(results)
	report := model.DebugReport{}
	for _, r := range cor.Failed(results) {
		sceneID := 0
		if r.Index < len(tasks) {
			sceneID = tasks[r.Index].Item.SceneID
		}
		slog.Warn("scene layout excluded", "job_id", files.ID(), "scene_id", sceneID, "error", r.Err)
		report.FailedLayouts = append(report.FailedLayouts, model.FailedLayout{SceneID: sceneID, Error: r.Err.Error()})
	}
	if len(layouts) == 0 {
		errs := make([]error, 0, len(results)+1)
		errs = append(errs, errors.New("no scene layout succeeded"))
		for _, r := range cor.Failed(results) {
			errs = append(errs, r.Err)
		}
		c.Fail(context, errors.Join(errs...))
		return
	}

	prompt, err := Render(c.prompts.Continuity, data)
	if err != nil {
		c.Fail(context, err)
		return
	}
	prompt = section(section(prompt, "BIBLE", mustJSON(bible)), "SCENES", mustJSON(layouts))
	validation, err := generation.Generate[model.SceneLayoutValidation](context.GetContext(), c.client, prompt, model.SceneLayoutValidationSchema())
	if err != nil {
		c.Fail(context, err)
		return
	}

	final, dropped := model.DedupeScenes(validation.FixedScenes)
	model.SortScenes(final)
	report.IssuesFound = validation.IssuesFound
	for _, scene := range final {
		if err := bible.CheckLayout(&scene); err != nil {
			report.IssuesFound = append(report.IssuesFound, fmt.Sprintf("scene %s: %v", model.SceneKey(scene.SceneID), err))
		}
	}
	report.FixedScenes = final
	report.DroppedSceneIDs = dropped
	if err := services.WriteJSONFile(files.DebugReport(), report); err != nil {
		c.Fail(context, err)
		return
	}
	slog.Info("continuity checked", "job_id", files.ID(), "scenes", len(final), "issues", len(report.IssuesFound), "dropped", len(dropped))

	plan := c.editorPlan(context, data, len(final), files.ID())
	if err := services.WriteJSONFile(files.EditorPlan(), plan); err != nil {
		c.Fail(context, err)
		return
	}

	renders := make([]RenderTask, 0, len(final))
	for _, scene := range final {
		renders = append(renders, RenderTask{
			JobID:         files.ID(),
			Scene:         scene,
			CharacterPath: characterPath,
			ClipPath:      files.Clip(scene.SceneID),
		})
	}
	c.Succeed(context)
	context.Add(c.GetOutputParam(), renders)
}

func (c *ContinuityCheck) editorPlan(context cor.Context, data PromptData, scenes int, jobID string) model.EditorPlan {
	data.SceneCount = scenes
	prompt, err := Render(c.prompts.PostProducer, data)
	if err == nil {
		var plan *model.EditorPlan
		plan, err = generation.Generate[model.EditorPlan](context.GetContext(), c.client, prompt, model.EditorPlanSchema())
		if err == nil {
			return *plan
		}
	}
	slog.Warn("editor plan unavailable, using defaults", "job_id", jobID, "error", err)
	return model.DefaultEditorPlan()
}
