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

package workflow_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jaycherian/gcp-go-story-video/internal/telemetry"
	"github.com/jaycherian/gcp-go-story-video/internal/testutil"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

const tName = "github.com/jaycherian/gcp-go-story-video/tests/workflow"

var (
	tracer = otel.Tracer(tName)
	logger = otelslog.NewLogger(tName)
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithCancel(context.Background())

	config := testutil.GetConfig()
	closeLog, err := telemetry.SetupLogging(config.Logging)
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	shutdown, err := telemetry.SetupOpenTelemetry(ctx, config)
	if err != nil {
		log.Fatalf("failed to setup telemetry: %v", err)
	}

	code := m.Run()

	_ = shutdown(ctx)
	_ = closeLog()
	cancel()
	os.Exit(code)
}
