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

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"github.com/jaycherian/gcp-go-story-video/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestLoggerUsesCloudLoggingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, cloud.Logging{Level: "debug"})

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.WarnContext(ctx, "scene render failed", "scene_id", 2)
	span.End()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARNING", line["severity"])
	assert.Equal(t, "scene render failed", line["message"])
	assert.Contains(t, line, "timestamp")
	assert.Equal(t, span.SpanContext().TraceID().String(), line["logging.googleapis.com/trace"])
}

func TestLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, cloud.Logging{Level: "warn"})
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.With("job_id", "j1").Error("shown")
	assert.Contains(t, buf.String(), `"job_id":"j1"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, telemetry.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, telemetry.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, telemetry.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, telemetry.ParseLevel("loud"))
}

func TestSetupLoggingWritesFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	closeFn, err := telemetry.SetupLogging(cloud.Logging{Level: "info", File: path})
	require.NoError(t, err)
	slog.Info("job queued", "job_id", "j1")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job queued")
}

func TestSetupOpenTelemetryDisabled(t *testing.T) {
	config := cloud.NewConfig()
	shutdown, err := telemetry.SetupOpenTelemetry(context.Background(), config)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
