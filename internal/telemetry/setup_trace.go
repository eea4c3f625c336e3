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

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/metric"
	telemetryexporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/jaycherian/gcp-go-story-video/internal/cloud"
	"go.opentelemetry.io/contrib/detectors/gcp"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// SetupOpenTelemetry installs the propagators and, when telemetry is
// enabled, the Cloud Trace and Cloud Monitoring exporters. Propagators are
// always installed because job tasks carry the submitting request's trace
// context across the queue.
//
// Inputs:
//   - ctx: The parent context, used for initialization of clients.
//   - config: The application configuration (project id, service name, telemetry switch).
//
// Returns:
//   - shutdown: Flushes and stops every provider; call it on exit.
//   - err: An error if an exporter cannot be created.
func SetupOpenTelemetry(ctx context.Context, config *cloud.Config) (shutdown func(context.Context) error, err error) {
	var providers shutdownList
	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())
	if !config.Telemetry.Enabled {
		slog.Debug("telemetry exporters disabled")
		return providers.shutdown, nil
	}

	res, err := newResource(ctx, config.Application.Name)
	if err != nil {
		return nil, err
	}
	project := config.Application.GoogleProjectId

	tp, err := newTracerProvider(project, res)
	if err != nil {
		return nil, err
	}
	providers = append(providers, tp.Shutdown)
	otel.SetTracerProvider(tp)

	mp, err := newMeterProvider(project, res)
	if err != nil {
		return nil, errors.Join(err, providers.shutdown(ctx))
	}
	providers = append(providers, mp.Shutdown)
	otel.SetMeterProvider(mp)

	slog.Info("telemetry exporters ready", "project", project)
	return providers.shutdown, nil
}

// shutdownList stops providers in registration order and joins their errors.
type shutdownList []func(context.Context) error

func (l shutdownList) shutdown(ctx context.Context) error {
	var err error
	for _, fn := range l {
		err = errors.Join(err, fn(ctx))
	}
	return err
}

// newResource describes the process, with GCP attributes when running on
// Google Cloud. Partial detection is logged and tolerated.
func newResource(ctx context.Context, serviceName string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithDetectors(gcp.NewDetector()),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	switch {
	case errors.Is(err, resource.ErrPartialResource), errors.Is(err, resource.ErrSchemaURLConflict):
		slog.Warn("partial resource detection", "error", err)
		return res, nil
	case err != nil:
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}
	return res, nil
}

func newTracerProvider(project string, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := telemetryexporter.New(telemetryexporter.WithProjectID(project))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func newMeterProvider(project string, res *resource.Resource) (*metric.MeterProvider, error) {
	exporter, err := mexporter.New(mexporter.WithProjectID(project))
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(exporter)),
		metric.WithResource(res),
	), nil
}
