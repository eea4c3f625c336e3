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

// Command server runs the HTTP front end and the workers of the story video
// engine.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaycherian/gcp-go-story-video/internal/api"
	"github.com/jaycherian/gcp-go-story-video/internal/telemetry"
)

func main() {
	config := GetConfig()

	closeLog, err := telemetry.SetupLogging(config.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()
	slog.Info("Logging initialized", "level", config.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		slog.Error("Failed to setup OpenTelemetry", "error", err)
		log.Fatal(err)
	}
	slog.Info("Tracing initialized", "exporters", config.Telemetry.Enabled)

	if err := InitState(ctx); err != nil {
		slog.Error("Failed to initialize state", "error", err)
		log.Fatal(err)
	}
	slog.Info("Initialized State")

	handlers := &api.Handlers{Store: state.store, Dispatcher: state.dispatcher, Downloads: state.downloads}
	srv := &http.Server{
		Addr:    config.Application.ListenAddress,
		Handler: api.NewRouter(handlers, config.Application.Name),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to listen", "error", err)
			os.Exit(1)
		}
	}()
	slog.Info("Server Ready", "address", config.Application.ListenAddress)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutdown Server ...")

	// The server gets 5 seconds to finish the requests it is handling.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server Shutdown Failed", "error", err)
	}

	// Local jobs already queued run to completion before the clients close.
	state.Close()
	cancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		slog.Error("Telemetry shutdown failed", "error", err)
	}
	slog.Info("Server exiting")
}
