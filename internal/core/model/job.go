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

// Package model defines the data carried through a story-to-video job: the
// submission parameters, the status record and its state machine, and the
// structured values the generation stages produce (series bible, scene
// manifest, scene layouts, continuity report, editor plan).
package model

import "strings"

// Defaults applied to a submission when the caller leaves a field empty.
const (
	DefaultDurationSeconds = 300
	DefaultStylePack       = "basic_cartoon_v1"
	DefaultCharacterPrompt = "A friendly robot"
)

// JobKind distinguishes the two workflows a job can run.
type JobKind string

const (
	JobKindStory     JobKind = "story"
	JobKindCharacter JobKind = "character"
)

// VoiceConfig is carried through for narration support; the pipeline records
// it with the job inputs.
type VoiceConfig struct {
	Enabled  bool   `json:"enabled"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// JobRequest holds the parameters of a story submission.
type JobRequest struct {
	Story           string      `json:"story" binding:"required"`
	DurationSeconds int         `json:"duration_seconds"`
	StylePack       string      `json:"style_pack"`
	Subtitles       *bool       `json:"subtitles,omitempty"`
	Voice           VoiceConfig `json:"voice"`
	CharacterJobID  string      `json:"character_job_id,omitempty"`
	Profile         string      `json:"profile,omitempty"`
}

// ApplyDefaults fills empty fields with their documented defaults.
func (r *JobRequest) ApplyDefaults() {
	if r.DurationSeconds <= 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	if strings.TrimSpace(r.StylePack) == "" {
		r.StylePack = DefaultStylePack
	}
	if r.Subtitles == nil {
		on := true
		r.Subtitles = &on
	}
	if r.Voice.Language == "" {
		r.Voice.Language = "en"
	}
	if r.Voice.Gender == "" {
		r.Voice.Gender = "male"
	}
	r.CharacterJobID = strings.TrimSpace(r.CharacterJobID)
	r.Profile = strings.TrimSpace(r.Profile)
}

// CharacterRequest is the submission of a character-only job.
type CharacterRequest struct {
	Prompt string `json:"prompt"`
}

// ApplyDefaults sets the default prompt when none is given.
func (r *CharacterRequest) ApplyDefaults() {
	if strings.TrimSpace(r.Prompt) == "" {
		r.Prompt = DefaultCharacterPrompt
	}
}

// JobResponse is returned by a submission.
type JobResponse struct {
	JobID  string `json:"job_id"`
	Status Status `json:"status"`
}

// JobTask is the unit of work handed to a dispatcher: which job to run and
// which workflow runs it. Everything else is read back from the job directory.
// Trace carries the submitting request's trace context across a queue.
type JobTask struct {
	JobID string            `json:"job_id"`
	Kind  JobKind           `json:"kind"`
	Trace map[string]string `json:"trace,omitempty"`
}

// Artifacts are the decoded intermediate outputs exposed by the status API.
type Artifacts struct {
	Script         string       `json:"script,omitempty"`
	Bible          *SeriesBible `json:"bible,omitempty"`
	CharacterImage string       `json:"character_image,omitempty"`
}

// IsEmpty reports whether no artifact is available yet.
func (a *Artifacts) IsEmpty() bool {
	return a == nil || (a.Script == "" && a.Bible == nil && a.CharacterImage == "")
}

// JobStatus is a status record enriched with artifacts.
type JobStatus struct {
	StatusRecord
	Artifacts *Artifacts `json:"artifacts,omitempty"`
}
