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
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

func jsonEmitter(t *testing.T) (*Emitter, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return NewEmitter(logger, nil), &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var obj map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &obj))
		out = append(out, obj)
	}
	return out
}

func TestEmitter_LifecycleEventShape(t *testing.T) {
	e, buf := jsonEmitter(t)
	ctx := context.Background()

	e.RunStart(ctx, "f1", "abc123def456")
	e.JobStart(ctx, "j1")
	e.StepStart(ctx, "j1", "s1", "db.extract")
	e.StepEnd(ctx, "j1", StepSummary{StepID: "s1", StepType: "db.extract", Status: flow.StatusSuccess, DurationMs: 5})
	e.JobEnd(ctx, JobSummary{JobID: "j1", Status: flow.StatusSuccess, DurationMs: 7})

	lines := decodeLines(t, buf)
	require.Len(t, lines, 5)
	for _, obj := range lines {
		assert.Contains(t, obj, "event")
		assert.Contains(t, obj, "ts_ms")
	}
	assert.Equal(t, "run_start", lines[0]["event"])
	assert.Equal(t, "step_end", lines[3]["event"])
	assert.Equal(t, "SUCCESS", lines[3]["status"])
}

func TestEmitter_RunSummaryShape(t *testing.T) {
	e, buf := jsonEmitter(t)
	s := &RunSummary{
		FlowID:     "f1",
		RunID:      "abc123def456",
		DurationMs: 42,
		Jobs: []JobSummary{
			{JobID: "a", Status: flow.StatusSuccess, Steps: []StepSummary{}},
			{JobID: "b", Status: flow.StatusSkipped, SkipReason: "condition=false", Steps: []StepSummary{}},
		},
	}
	s.CountStatuses()
	require.False(t, s.Failed())
	e.RunEnd(context.Background(), s)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	obj := lines[0]
	assert.Equal(t, "run_summary", obj["event"])
	assert.Equal(t, "f1", obj["flow_id"])
	assert.Equal(t, "abc123def456", obj["run_id"])
	counts, ok := obj["status_counts"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, counts["SUCCESS"])
	assert.EqualValues(t, 1, counts["SKIPPED"])
}

func TestNilEmitterIsNoop(t *testing.T) {
	var e *Emitter
	e.RunStart(context.Background(), "f", "r")
	e.RunEnd(context.Background(), &RunSummary{StatusCounts: map[flow.RunStatus]int{}})
}
