// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics is the OTel metrics hook (spec §2 "Observability"). A nil
// *Metrics is a valid no-op; NewMetrics returns nil when the module is
// "none" or unset.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry

	runsTotal   metric.Int64Counter
	jobsTotal   metric.Int64Counter
	stepsTotal  metric.Int64Counter
	runSeconds  metric.Float64Histogram
	jobSeconds  metric.Float64Histogram
	stepSeconds metric.Float64Histogram
}

// NewMetrics builds the metrics hook selected by
// AETHERFLOW_METRICS_MODULE: "otel" wires an OTel meter with a
// Prometheus reader; "none" (or empty) disables metrics entirely.
func NewMetrics(module string) (*Metrics, error) {
	switch module {
	case "", "none":
		return nil, nil
	case "otel":
	default:
		return nil, fmt.Errorf("observability: unknown metrics module %q", module)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("aetherflow")

	m := &Metrics{provider: provider, registry: registry}
	if m.runsTotal, err = meter.Int64Counter("aetherflow_runs_total"); err != nil {
		return nil, err
	}
	if m.jobsTotal, err = meter.Int64Counter("aetherflow_jobs_total"); err != nil {
		return nil, err
	}
	if m.stepsTotal, err = meter.Int64Counter("aetherflow_steps_total"); err != nil {
		return nil, err
	}
	if m.runSeconds, err = meter.Float64Histogram("aetherflow_run_duration_seconds"); err != nil {
		return nil, err
	}
	if m.jobSeconds, err = meter.Float64Histogram("aetherflow_job_duration_seconds"); err != nil {
		return nil, err
	}
	if m.stepSeconds, err = meter.Float64Histogram("aetherflow_step_duration_seconds"); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry exposes the Prometheus registry for callers that serve a
// /metrics endpoint; the binaries under cmd/ do not serve one.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Shutdown flushes and stops the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

func (m *Metrics) RunEnd(ctx context.Context, s *RunSummary) {
	if m == nil {
		return
	}
	status := "SUCCESS"
	if s.Failed() {
		status = "FAILED"
	}
	attrs := metric.WithAttributes(
		attribute.String("flow_id", s.FlowID),
		attribute.String("status", status),
	)
	m.runsTotal.Add(ctx, 1, attrs)
	m.runSeconds.Record(ctx, float64(s.DurationMs)/1000, attrs)
}

func (m *Metrics) JobEnd(ctx context.Context, j JobSummary) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", string(j.Status)))
	m.jobsTotal.Add(ctx, 1, attrs)
	m.jobSeconds.Record(ctx, float64(j.DurationMs)/1000, attrs)
}

func (m *Metrics) StepEnd(ctx context.Context, s StepSummary) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("step_type", s.StepType),
		attribute.String("status", string(s.Status)),
	)
	m.stepsTotal.Add(ctx, 1, attrs)
	m.stepSeconds.Record(ctx, float64(s.DurationMs)/1000, attrs)
}
