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
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
)

// StatusCheckpoint writes a fixed status record. Checkpoints only sit between
// stages, never inside a fan-out group, so the status file has one writer at
// a time.
type StatusCheckpoint struct {
	cor.BaseCommand
	store      *services.JobStore
	checkpoint model.Checkpoint
}

func NewStatusCheckpoint(name string, store *services.JobStore, checkpoint model.Checkpoint) *StatusCheckpoint {
	out := &StatusCheckpoint{BaseCommand: *cor.NewBaseCommand(name), store: store, checkpoint: checkpoint}
	out.InputParamName = ParamJobID
	return out
}

func (c *StatusCheckpoint) Execute(context cor.Context) {
	jobID, _ := value[string](context, ParamJobID)
	cp := c.checkpoint
	if err := writeStatus(c.store, jobID, cp.Status, cp.Progress, cp.Message); err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
}

// writeStatus is used by stages whose message depends on their outcome.
func writeStatus(store *services.JobStore, jobID string, status model.Status, progress int, message string) error {
	record := model.NewStatusRecord(jobID, status, progress, message)
	if err := store.WriteStatus(record); err != nil {
		return err
	}
	slog.Info("job status", "job_id", jobID, "status", status, "progress", progress, "message", message)
	return nil
}
