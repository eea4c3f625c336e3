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
	"log/slog"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// LayoutTask is one unit of the layout fan-out. It carries everything the
// task needs so that it never reads shared state.
type LayoutTask struct {
	Files  services.JobFiles
	Item   model.SceneManifestItem
	Bible  *model.SeriesBible
	Script string
	Data   PromptData
}

// durationTarget is the pacing contract handed to the director.
type durationTarget struct {
	SceneCount       int `json:"scene_count"`
	TotalSeconds     int `json:"total_seconds"`
	ToleranceSeconds int `json:"tolerance_seconds"`
}

// SceneDirector splits the screenplay into the ordered scene manifest and
// emits one LayoutTask per manifest item. A manifest whose scenes do not add
// up to the target duration, or that leaves the bible's locations, is a
// failed generation attempt.
type SceneDirector struct {
	cor.BaseCommand
	client  *generation.Client
	prompts *PromptSet
}

func NewSceneDirector(name string, client *generation.Client, prompts *PromptSet) *SceneDirector {
	out := &SceneDirector{BaseCommand: *cor.NewBaseCommand(name), client: client, prompts: prompts}
	out.InputParamName = ParamBible
	out.OutputParamName = ParamLayoutTasks
	return out
}

func (c *SceneDirector) IsExecutable(context cor.Context) bool {
	return has(context, ParamScript, ParamBible, ParamPromptData, ParamFiles)
}

func (c *SceneDirector) Execute(context cor.Context) {
	script, _ := value[string](context, ParamScript)
	bible, _ := value[*model.SeriesBible](context, ParamBible)
	data, _ := value[PromptData](context, ParamPromptData)
	files, _ := value[services.JobFiles](context, ParamFiles)

	prompt, err := Render(c.prompts.EpisodeDirector, data)
	if err != nil {
		c.Fail(context, err)
		return
	}
	target := durationTarget{SceneCount: data.SceneCount, TotalSeconds: data.TotalSeconds, ToleranceSeconds: data.ToleranceSeconds}
	prompt = section(section(prompt, "SCREENPLAY", script), "BIBLE", mustJSON(bible))
	prompt = section(prompt, "TARGET", mustJSON(target))

	manifest, err := generation.Generate(context.GetContext(), c.client, prompt, model.SceneManifestSchema(),
		func(m *model.SceneManifest) error {
			return m.CheckDuration(target.TotalSeconds, target.ToleranceSeconds)
		},
		bible.CheckManifest)
	if err != nil {
		c.Fail(context, err)
		return
	}
	if sum := manifest.SceneSeconds(); manifest.TotalDuration != sum {
		slog.Debug("total duration replaced by the scene sum", "job_id", files.ID(), "claimed", manifest.TotalDuration, "sum", sum)
		manifest.TotalDuration = sum
	}
	if NormalizeManifest(manifest) {
		slog.Warn("scene ids were not unique, renumbered", "job_id", files.ID())
	}
	if err := services.WriteJSONFile(files.Manifest(), manifest); err != nil {
		c.Fail(context, err)
		return
	}

	tasks := make([]LayoutTask, 0, len(manifest.Scenes))
	for _, item := range manifest.Scenes {
		tasks = append(tasks, LayoutTask{Files: files, Item: item, Bible: bible, Script: script, Data: data})
	}

	slog.Info("scene manifest written", "job_id", files.ID(), "scenes", len(tasks), "total_duration", manifest.TotalDuration)
	c.Succeed(context)
	context.Add(c.GetOutputParam(), tasks)
}

// NormalizeManifest keeps scene ids unique. The manifest is truncated to
// model.MaxSceneID items and, when ids repeat, renumbered 1..N in manifest
// order. It reports whether ids were rewritten.
func NormalizeManifest(m *model.SceneManifest) bool {
	if len(m.Scenes) > model.MaxSceneID {
		m.Scenes = m.Scenes[:model.MaxSceneID]
	}
	seen := make(map[int]bool, len(m.Scenes))
	unique := true
	for _, s := range m.Scenes {
		if seen[s.SceneID] {
			unique = false
			break
		}
		seen[s.SceneID] = true
	}
	if unique {
		return false
	}
	for i := range m.Scenes {
		m.Scenes[i].SceneID = i + 1
	}
	return true
}
