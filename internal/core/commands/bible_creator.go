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

// bibleScriptLimit bounds the screenplay excerpt sent to the bible stage.
const bibleScriptLimit = 2000

// BibleCreator derives the series bible from the screenplay. The result is
// schema constrained, parsed straight into model.SeriesBible and persisted
// as bible.json.
type BibleCreator struct {
	cor.BaseCommand
	client  *generation.Client
	prompts *PromptSet
}

func NewBibleCreator(name string, client *generation.Client, prompts *PromptSet) *BibleCreator {
	out := &BibleCreator{BaseCommand: *cor.NewBaseCommand(name), client: client, prompts: prompts}
	out.InputParamName = ParamScript
	out.OutputParamName = ParamBible
	return out
}

func (c *BibleCreator) IsExecutable(context cor.Context) bool {
	return has(context, ParamScript, ParamPromptData, ParamFiles)
}

func (c *BibleCreator) Execute(context cor.Context) {
	script, _ := value[string](context, ParamScript)
	data, _ := value[PromptData](context, ParamPromptData)
	files, _ := value[services.JobFiles](context, ParamFiles)

	prompt, err := Render(c.prompts.SeriesBible, data.With(model.ExampleBible(), ""))
	if err != nil {
		c.Fail(context, err)
		return
	}
	bible, err := generation.Generate[model.SeriesBible](context.GetContext(), c.client,
		section(prompt, "SCRIPT", truncate(script, bibleScriptLimit)), model.SeriesBibleSchema())
	if err != nil {
		c.Fail(context, err)
		return
	}
	if err := services.WriteJSONFile(files.Bible(), bible); err != nil {
		c.Fail(context, err)
		return
	}

	slog.Info("series bible written", "job_id", files.ID(), "character", bible.Character.Name, "locations", len(bible.Locations))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), bible)
}

// truncate keeps at most limit runes of s.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
