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

package model

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusPlanning   Status = "planning"
	StatusGenerating Status = "generating"
	StatusAssembling Status = "assembling"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ProgressTotal is the fixed denominator of every status record.
const ProgressTotal = 100

// ErrInvalidTransition is returned when a status update would move a job
// backwards or out of a terminal state.
var ErrInvalidTransition = errors.New("invalid job status transition")

// allowedTransitions encodes the forward-only lifecycle:
// queued -> planning -> generating(character) -> planning(scenes) -> assembling -> completed,
// with failed reachable from every non-terminal state. A character-only job
// goes queued -> generating -> completed.
var allowedTransitions = map[Status]map[Status]bool{
	StatusQueued: {
		StatusPlanning:   true,
		StatusGenerating: true,
		StatusFailed:     true,
	},
	StatusPlanning: {
		StatusPlanning:   true,
		StatusGenerating: true,
		StatusAssembling: true,
		StatusFailed:     true,
	},
	StatusGenerating: {
		StatusGenerating: true,
		StatusPlanning:   true,
		StatusAssembling: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusAssembling: {
		StatusAssembling: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

// IsKnownStatus reports whether s is part of the lifecycle.
func IsKnownStatus(s Status) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// IsTerminal reports whether no further transition is possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a job in from may move to to.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

// StatusRecord is the single live status of a job. Each update replaces it.
type StatusRecord struct {
	JobID           string `json:"job_id"`
	Status          Status `json:"status"`
	ProgressCurrent int    `json:"progress_current"`
	ProgressTotal   int    `json:"progress_total"`
	Message         string `json:"message"`
}

// NewStatusRecord builds a record; an empty message defaults to the status name.
func NewStatusRecord(jobID string, status Status, progress int, message string) StatusRecord {
	if message == "" {
		message = string(status)
	}
	return StatusRecord{
		JobID:           jobID,
		Status:          status,
		ProgressCurrent: progress,
		ProgressTotal:   ProgressTotal,
		Message:         message,
	}
}

// ValidateTransition checks that next may replace current. Progress may not
// decrease except when failing, which resets it to zero. A nil current means
// the job has no record yet, which is equivalent to queued.
func ValidateTransition(current *StatusRecord, next StatusRecord) error {
	if !IsKnownStatus(next.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next.Status)
	}
	from := StatusQueued
	progress := 0
	if current != nil {
		from = current.Status
		progress = current.ProgressCurrent
	}
	if current == nil && next.Status == StatusQueued {
		return nil
	}
	if !CanTransition(from, next.Status) {
		return fmt.Errorf("%w: %q -> %q (job_id=%s)", ErrInvalidTransition, from, next.Status, next.JobID)
	}
	if next.Status != StatusFailed && next.ProgressCurrent < progress {
		return fmt.Errorf("%w: progress %d -> %d (job_id=%s)", ErrInvalidTransition, progress, next.ProgressCurrent, next.JobID)
	}
	return nil
}

// Checkpoint is a fixed progress marker written at a stage boundary.
type Checkpoint struct {
	Status   Status
	Progress int
	Message  string
}

// Checkpoints of the story workflow.
var (
	CheckpointScript     = Checkpoint{StatusPlanning, 10, "Head Writer creating script..."}
	CheckpointBible      = Checkpoint{StatusPlanning, 20, "Creating Series Bible..."}
	CheckpointCharacter  = Checkpoint{StatusGenerating, 25, "Checking character assets..."}
	CheckpointDirector   = Checkpoint{StatusPlanning, 35, "Director planning scenes..."}
	CheckpointContinuity = Checkpoint{StatusPlanning, 50, "Continuity Supervisor checking..."}
	CheckpointAssembling = Checkpoint{StatusAssembling, 90, "Stitching final video..."}
	CheckpointCompleted  = Checkpoint{StatusCompleted, 100, "Ready to download"}
)

// Character stage outcomes, all at progress 30.
const (
	CharacterProgress        = 30
	CharacterLinkedMessage   = "Using approved character"
	CharacterCreatedMessage  = "Character created successfully"
	CharacterFallbackMessage = "Character generation failed, using fallback"
)

// Checkpoints of the character-only workflow.
var (
	CheckpointDesigning      = Checkpoint{StatusGenerating, 0, "Designing character..."}
	CheckpointCharacterReady = Checkpoint{StatusCompleted, 100, "Character ready"}
)

// CharacterFailedMessage is the failure message of a character-only job.
const CharacterFailedMessage = "Character generation failed"
