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
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/model"
	"github.com/jaycherian/gcp-go-story-video/internal/core/workflow"
	"github.com/jaycherian/gcp-go-story-video/internal/telemetry"
	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var req model.JobRequest
	var storyFile string
	var run bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create a story job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if storyFile != "" {
				data, err := os.ReadFile(storyFile)
				if err != nil {
					return err
				}
				req.Story = string(data)
			}
			if strings.TrimSpace(req.Story) == "" {
				return errors.New("a story is required (--story or --file)")
			}
			store, err := ctx.store()
			if err != nil {
				return err
			}
			jobID, err := store.Create(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			if !run {
				return nil
			}
			return runJob(cmd, ctx, jobID)
		},
	}

	cmd.Flags().StringVar(&req.Story, "story", "", "Story text")
	cmd.Flags().StringVarP(&storyFile, "file", "f", "", "Read the story from a file")
	cmd.Flags().IntVarP(&req.DurationSeconds, "duration", "d", model.DefaultDurationSeconds, "Target duration in seconds")
	cmd.Flags().StringVar(&req.StylePack, "style", model.DefaultStylePack, "Style pack identifier")
	cmd.Flags().StringVarP(&req.Profile, "profile", "p", "", "Pipeline profile (default from configuration)")
	cmd.Flags().StringVar(&req.CharacterJobID, "character", "", "Link the character asset of a previous job")
	cmd.Flags().BoolVar(&run, "run", false, "Run the job in this process after submitting it")
	return cmd
}

func newCharacterCommand(ctx *commandContext) *cobra.Command {
	var req model.CharacterRequest
	var run bool

	cmd := &cobra.Command{
		Use:   "character",
		Short: "Create a character-only job",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.store()
			if err != nil {
				return err
			}
			jobID, err := store.CreateCharacter(req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jobID)
			if !run {
				return nil
			}
			return runJob(cmd, ctx, jobID)
		},
	}

	cmd.Flags().StringVar(&req.Prompt, "prompt", "", "Character description")
	cmd.Flags().BoolVar(&run, "run", false, "Run the job in this process after submitting it")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-id>",
		Short: "Run a queued job in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, ctx, args[0])
		},
	}
}

// runJob executes jobID synchronously with the configured models and prints
// its final status.
func runJob(cmd *cobra.Command, ctx *commandContext, jobID string) error {
	config, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	closeLog, err := telemetry.SetupLogging(config.Logging)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := ctx.store()
	if err != nil {
		return err
	}
	kind, err := store.Kind(jobID)
	if err != nil {
		return err
	}

	clients, err := cloud.NewCloudServiceClients(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer clients.Close()
	collaborators, err := workflow.NewCollaborators(config, clients)
	if err != nil {
		return err
	}
	runner, err := workflow.NewRunner(config, store, collaborators)
	if err != nil {
		return err
	}

	runErr := runner.Run(cmd.Context(), model.JobTask{JobID: jobID, Kind: kind})
	if err := printStatus(cmd, ctx, []string{jobID}); err != nil {
		return err
	}
	return runErr
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status [job-id...]",
		Short: "Show job status (all jobs when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd, ctx, args)
		},
	}
}

func printStatus(cmd *cobra.Command, ctx *commandContext, ids []string) error {
	store, err := ctx.store()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		if ids, err = store.List(); err != nil {
			return err
		}
	}

	rows := make([]jobRow, 0, len(ids))
	for _, id := range ids {
		row, err := loadJobRow(store, id)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderJobTable(rows))
	return nil
}
