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

// Package commands holds one cor.Command per stage of the story-to-video
// pipeline, plus the ffmpeg collaborators that render scenes and assemble
// the final video. Stages exchange values through named Context keys so
// that a stage can read outputs produced several steps earlier.
package commands

import "github.com/jaycherian/gcp-go-story-video/internal/core/cor"

// Context keys shared by the pipeline stages.
const (
	ParamTask            = "__job_task__"
	ParamJobID           = "__job_id__"
	ParamFiles           = "__job_files__"
	ParamRequest         = "__job_request__"
	ParamPromptData      = "__prompt_data__"
	ParamCharacterPrompt = "__character_prompt__"
	ParamScript          = "__script__"
	ParamBible           = "__bible__"
	ParamCharacter       = "__character_path__"
	ParamLayoutTasks     = "__layout_tasks__"
	ParamLayouts         = "__layouts__"
	ParamRenderTasks     = "__render_tasks__"
	ParamClips           = "__clips__"
	ParamFinalVideo      = "__final_video__"
	ParamPublished       = "__published_uri__"
)

// value returns the typed value stored under key.
func value[T any](context cor.Context, key string) (T, bool) {
	v, ok := context.Get(key).(T)
	return v, ok
}

// has reports whether every key holds a value.
func has(context cor.Context, keys ...string) bool {
	if context == nil || context.GetContext() == nil {
		return false
	}
	for _, k := range keys {
		if context.Get(k) == nil {
			return false
		}
	}
	return true
}
