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

package main

import (
	"fmt"

	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// jobRow is one line of the status table.
type jobRow struct {
	ID     string
	Kind   model.JobKind
	Record model.StatusRecord
	Video  string
}

// loadJobRow collects everything the table shows for jobID.
func loadJobRow(store *services.JobStore, jobID string) (jobRow, error) {
	record, err := store.ReadStatus(jobID)
	if err != nil {
		return jobRow{}, fmt.Errorf("job %s: %w", jobID, err)
	}
	row := jobRow{ID: jobID, Record: record}
	row.Kind, _ = store.Kind(jobID)
	if path, err := store.FinalVideo(jobID); err == nil {
		row.Video = path
	}
	return row, nil
}

func (r jobRow) cells() table.Row {
	return table.Row{
		r.ID,
		string(r.Kind),
		string(r.Record.Status),
		fmt.Sprintf("%d%%", r.Record.ProgressCurrent),
		r.Record.Message,
		r.Video,
	}
}

// renderJobTable formats rows as a rounded table. Progress is right aligned
// and a failed job's message is highlighted.
func renderJobTable(rows []jobRow) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Job", "Kind", "Status", "Progress", "Message", "Video"})
	for _, r := range rows {
		cells := r.cells()
		if r.Record.Status == model.StatusFailed {
			cells[4] = text.Colors{text.FgRed}.Sprint(r.Record.Message)
		}
		tw.AppendRow(cells)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Progress", Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Name: "Message", WidthMax: 60},
	})
	return tw.Render()
}
