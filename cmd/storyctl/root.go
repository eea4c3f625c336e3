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
	"os"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/spf13/cobra"
)

// commandContext loads the configuration once for all subcommands.
type commandContext struct {
	configDir string
	runtime   string
	jobsDir   string
	config    *cloud.Config
}

func (c *commandContext) ensureConfig() (*cloud.Config, error) {
	if c.config != nil {
		return c.config, nil
	}
	if c.configDir != "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, c.configDir); err != nil {
			return nil, err
		}
	}
	if c.runtime != "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, c.runtime); err != nil {
			return nil, err
		}
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if c.jobsDir != "" {
		config.Application.JobsDir = c.jobsDir
	}
	c.config = config
	return config, nil
}

func (c *commandContext) store() (*services.JobStore, error) {
	config, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return services.NewJobStore(config.Application.JobsDir)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "storyctl",
		Short:         "Story video job CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.configDir, "config-dir", "", "Directory holding the .env*.toml files")
	rootCmd.PersistentFlags().StringVar(&ctx.runtime, "runtime", "", "Runtime configuration to layer over the base file")
	rootCmd.PersistentFlags().StringVar(&ctx.jobsDir, "jobs-dir", "", "Override the configured jobs directory")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newCharacterCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}
