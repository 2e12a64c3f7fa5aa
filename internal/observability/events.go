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

// Package observability emits the structured run/job/step lifecycle
// events and the run_summary document from spec §6 "Log events", plus
// the OTel metrics hook selected by AETHERFLOW_METRICS_MODULE.
package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Event names from spec §6.
const (
	EventRunStart   = "run_start"
	EventRunSummary = "run_summary"
	EventJobStart   = "job_start"
	EventJobEnd     = "job_end"
	EventStepStart  = "step_start"
	EventStepEnd    = "step_end"
)

// StepSummary is one step's entry in the run summary.
type StepSummary struct {
	StepID     string         `json:"step_id"`
	StepType   string         `json:"step_type"`
	Status     flow.RunStatus `json:"status"`
	DurationMs int64          `json:"duration_ms"`
}

// JobSummary is one job's entry in the run summary.
type JobSummary struct {
	JobID      string         `json:"job_id"`
	Status     flow.RunStatus `json:"status"`
	DurationMs int64          `json:"duration_ms"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Steps      []StepSummary  `json:"steps"`
}

// RunSummary is the document emitted once at the very end of every run
// (spec §6 "A run_summary event is emitted at the very end of every
// run").
type RunSummary struct {
	FlowID       string                 `json:"flow_id"`
	RunID        string                 `json:"run_id"`
	DurationMs   int64                  `json:"duration_ms"`
	StatusCounts map[flow.RunStatus]int `json:"status_counts"`
	Jobs         []JobSummary           `json:"jobs"`
}

// CountStatuses rebuilds StatusCounts from the job list.
func (s *RunSummary) CountStatuses() {
	counts := make(map[flow.RunStatus]int)
	for _, j := range s.Jobs {
		counts[j.Status]++
	}
	s.StatusCounts = counts
}

// Failed reports whether any job ended FAILED (the runner's non-zero
// exit condition, spec §7).
func (s *RunSummary) Failed() bool {
	return s.StatusCounts[flow.StatusFailed] > 0
}

// Emitter writes lifecycle events through a structured logger. A nil
// *Emitter is a valid no-op, so callers never need to branch.
type Emitter struct {
	logger  *slog.Logger
	metrics *Metrics
}

// NewEmitter builds an Emitter over logger and an optional metrics hook.
func NewEmitter(logger *slog.Logger, metrics *Metrics) *Emitter {
	return &Emitter{logger: logger, metrics: metrics}
}

func (e *Emitter) emit(ctx context.Context, event string, attrs ...slog.Attr) {
	if e == nil || e.logger == nil {
		return
	}
	base := []slog.Attr{
		slog.String(log.EventKey, event),
		slog.Int64("ts_ms", time.Now().UnixMilli()),
	}
	e.logger.LogAttrs(ctx, slog.LevelInfo, event, append(base, attrs...)...)
}

// RunStart announces a run beginning.
func (e *Emitter) RunStart(ctx context.Context, flowID, runID string) {
	e.emit(ctx, EventRunStart,
		slog.String(log.FlowIDKey, flowID),
		slog.String(log.RunIDKey, runID))
}

// JobStart announces a job beginning.
func (e *Emitter) JobStart(ctx context.Context, jobID string) {
	e.emit(ctx, EventJobStart, slog.String(log.JobIDKey, jobID))
}

// JobEnd announces a job's terminal status.
func (e *Emitter) JobEnd(ctx context.Context, j JobSummary) {
	attrs := []slog.Attr{
		slog.String(log.JobIDKey, j.JobID),
		slog.String("status", string(j.Status)),
		slog.Int64(log.DurationKey, j.DurationMs),
	}
	if j.SkipReason != "" {
		attrs = append(attrs, slog.String("skip_reason", j.SkipReason))
	}
	e.emit(ctx, EventJobEnd, attrs...)
	if e != nil && e.metrics != nil {
		e.metrics.JobEnd(ctx, j)
	}
}

// StepStart announces a step beginning.
func (e *Emitter) StepStart(ctx context.Context, jobID, stepID, stepType string) {
	e.emit(ctx, EventStepStart,
		slog.String(log.JobIDKey, jobID),
		slog.String(log.StepIDKey, stepID),
		slog.String("step_type", stepType))
}

// StepEnd announces a step's terminal status.
func (e *Emitter) StepEnd(ctx context.Context, jobID string, s StepSummary) {
	e.emit(ctx, EventStepEnd,
		slog.String(log.JobIDKey, jobID),
		slog.String(log.StepIDKey, s.StepID),
		slog.String("step_type", s.StepType),
		slog.String("status", string(s.Status)),
		slog.Int64(log.DurationKey, s.DurationMs))
	if e != nil && e.metrics != nil {
		e.metrics.StepEnd(ctx, s)
	}
}

// RunEnd emits the run_summary event and feeds the metrics hook.
func (e *Emitter) RunEnd(ctx context.Context, s *RunSummary) {
	statusCounts := make(map[string]int, len(s.StatusCounts))
	for status, n := range s.StatusCounts {
		statusCounts[string(status)] = n
	}
	e.emit(ctx, EventRunSummary,
		slog.String(log.FlowIDKey, s.FlowID),
		slog.String(log.RunIDKey, s.RunID),
		slog.Int64(log.DurationKey, s.DurationMs),
		slog.Any("status_counts", statusCounts),
		slog.Any("jobs", s.Jobs))
	if e != nil && e.metrics != nil {
		e.metrics.RunEnd(ctx, s)
	}
}
