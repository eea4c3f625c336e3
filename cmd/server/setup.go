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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/core/services"
	"github.com/jaycherian/gcp-go-story-video/internal/core/workflow"
)

// StateManager holds the service graph of the server.
type StateManager struct {
	config     *cloud.Config
	cloud      *cloud.ServiceClients
	store      *services.JobStore
	runner     *workflow.Runner
	dispatcher services.Dispatcher
	downloads  *services.DownloadService
	stop       func()
}

var state = &StateManager{}

// SetupOS selects the configs directory and the local runtime unless the
// environment already names them.
func SetupOS() error {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		return os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return nil
}

func GetConfig() *cloud.Config {
	if state.config == nil {
		if err := SetupOS(); err != nil {
			log.Fatalf("failed to setup os: %v\n", err)
		}
		config := cloud.NewConfig()
		if err := cloud.LoadConfig(config); err != nil {
			log.Fatalf("failed to load configuration: %v\n", err)
		}
		state.config = config
	}
	return state.config
}

// InitState builds the clients, the job store, the workflows and the
// dispatcher selected by [dispatch] mode.
func InitState(ctx context.Context) error {
	config := GetConfig()

	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	if state.store, err = services.NewJobStore(config.Application.JobsDir); err != nil {
		return err
	}

	collaborators, err := workflow.NewCollaborators(config, cloudClients)
	if err != nil {
		return err
	}
	if state.runner, err = workflow.NewRunner(config, state.store, collaborators); err != nil {
		return err
	}

	if cloudClients.StorageClient != nil {
		state.downloads = &services.DownloadService{
			StorageClient: cloudClients.StorageClient,
			IAMClient:     cloudClients.IAMClient,
			SignerEmail:   config.Application.SignerServiceAccountEmail,
			Bucket:        config.Storage.OutputBucket,
		}
	}

	return SetupDispatch(ctx, config, cloudClients)
}

// SetupDispatch starts the workers that run queued jobs.
func SetupDispatch(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients) error {
	switch config.Dispatch.Mode {
	case cloud.DispatchLocal, "":
		local := services.NewLocalDispatcher(state.runner, config.Dispatch.Workers, config.Dispatch.QueueSize)
		local.Start(ctx)
		state.dispatcher = local
		state.stop = local.Stop
	case cloud.DispatchPubSub:
		listener, ok := cloudClients.PubSubListeners[config.Dispatch.Subscription]
		if !ok {
			return fmt.Errorf("no listener for subscription %q", config.Dispatch.Subscription)
		}
		listener.SetCommand(state.runner)
		listener.Listen(ctx)
		publisher := services.NewPubSubDispatcher(cloudClients.PubsubClient, config.Dispatch.Topic)
		state.dispatcher = publisher
		state.stop = publisher.Stop
	default:
		return fmt.Errorf("unknown dispatch mode %q", config.Dispatch.Mode)
	}
	slog.Info("dispatch ready", "mode", config.Dispatch.Mode)
	return nil
}

// Close stops the dispatcher, waiting for running local jobs, and releases
// the clients.
func (s *StateManager) Close() {
	if s.stop != nil {
		s.stop()
	}
	if s.cloud != nil {
		s.cloud.Close()
	}
}
