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
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-story-video/internal/core/generation"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// ScriptWriter turns the story into a short screenplay with a plain text
// generation call and persists it as script.txt.
type ScriptWriter struct {
	cor.BaseCommand
	client  *generation.Client
	prompts *PromptSet
}

// NewScriptWriter is the constructor for the ScriptWriter command.
//
// Inputs:
//   - name: A string name for this command instance.
//   - client: The generation client shared by the planning stages.
//   - prompts: The parsed prompt templates.
//
// Outputs:
//   - *ScriptWriter: A pointer to the newly instantiated command.
func NewScriptWriter(name string, client *generation.Client, prompts *PromptSet) *ScriptWriter {
	out := &ScriptWriter{BaseCommand: *cor.NewBaseCommand(name), client: client, prompts: prompts}
	out.InputParamName = ParamRequest
	out.OutputParamName = ParamScript
	return out
}

func (c *ScriptWriter) IsExecutable(context cor.Context) bool {
	return has(context, ParamRequest, ParamPromptData, ParamFiles)
}

func (c *ScriptWriter) Execute(context cor.Context) {
	req, _ := value[model.JobRequest](context, ParamRequest)
	data, _ := value[PromptData](context, ParamPromptData)
	files, _ := value[services.JobFiles](context, ParamFiles)

	prompt, err := Render(c.prompts.HeadWriter, data)
	if err != nil {
		c.Fail(context, err)
		return
	}
	script, err := c.client.Text(context.GetContext(), section(prompt, "STORY", req.Story))
	if err != nil {
		c.Fail(context, fmt.Errorf("script generation failed: %w", err))
		return
	}
	script = strings.TrimSpace(script)
	if script == "" {
		c.Fail(context, errors.New("script generation returned no text"))
		return
	}
	if err := services.WriteFileAtomic(files.Script(), []byte(script)); err != nil {
		c.Fail(context, err)
		return
	}

	slog.Info("script written", "job_id", files.ID(), "chars", len(script))
	c.Succeed(context)
	context.Add(c.GetOutputParam(), script)
}
