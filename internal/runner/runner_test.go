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

package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/step"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// emitStep returns SUCCESS with its "output" input as the step output.
type emitStep struct {
	output map[string]any
}

func (s *emitStep) Validate() error { return nil }
func (s *emitStep) Run(*step.Context) (step.Result, error) {
	return step.Result{Status: step.StatusSuccess, Output: s.output}, nil
}

// skipStep always returns SKIPPED with reason no_data.
type skipStep struct{}

func (skipStep) Validate() error { return nil }
func (skipStep) Run(*step.Context) (step.Result, error) {
	return step.Result{Status: step.StatusSkipped, Reason: "no_data"}, nil
}

// boomStep counts invocations and errors (the "must not execute" probe
// used by the skip/gating scenarios).
type boomStep struct {
	calls *atomic.Int32
}

func (s *boomStep) Validate() error { return nil }
func (s *boomStep) Run(*step.Context) (step.Result, error) {
	s.calls.Add(1)
	return step.Result{}, errors.New("boom executed")
}

// failStep returns a declared FAILED result without erroring.
type failStep struct{}

func (failStep) Validate() error { return nil }
func (failStep) Run(*step.Context) (step.Result, error) {
	return step.Result{Status: step.StatusFailed, Reason: "declared failure"}, nil
}

func testRunner(t *testing.T, boomCalls *atomic.Int32, extraEnv map[string]string) (*Runner, string) {
	t.Helper()
	work := t.TempDir()
	snap := settings.Snapshot{"WORK": work}
	for k, v := range extraEnv {
		snap[k] = v
	}

	reg := step.NewRegistry()
	reg.Register("test.emit", func(id string, inputs map[string]any) (step.Step, error) {
		out, _ := inputs["output"].(map[string]any)
		return &emitStep{output: out}, nil
	})
	reg.Register("test.skip", func(id string, inputs map[string]any) (step.Step, error) {
		return skipStep{}, nil
	})
	reg.Register("test.boom", func(id string, inputs map[string]any) (step.Step, error) {
		return &boomStep{calls: boomCalls}, nil
	})
	reg.Register("test.fail", func(id string, inputs map[string]any) (step.Step, error) {
		return failStep{}, nil
	})

	return &Runner{
		Snapshot:   snap,
		Steps:      reg,
		Connectors: connector.NewRegistry(),
	}, work
}

func writeFlow(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

const flowHeader = `version: 1
flow:
  id: test-flow
  workspace:
    root: "{{env.WORK}}"
    cleanup_policy: never
    layout:
      artifacts: artifacts
      scratch: scratch
      manifests: manifests
  state:
    backend: file
    path: state.json
  locks:
    scope: none
    ttl_seconds: 60
`

func jobStatus(t *testing.T, res *Result, jobID string) (flow.RunStatus, string) {
	t.Helper()
	for _, j := range res.Summary.Jobs {
		if j.JobID == jobID {
			return j.Status, j.SkipReason
		}
	}
	t.Fatalf("job %s not in summary", jobID)
	return "", ""
}

func TestRun_WhenGatingSkipsJob(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: probe
    steps:
      - id: emit
        type: test.emit
        inputs:
          output:
            has_data: false
        outputs:
          has_data: "{{result.has_data}}"
  - id: process
    depends_on: [probe]
    when: jobs.probe.outputs.has_data == true
    steps:
      - id: boom
        type: test.boom
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.Equal(t, int32(0), boomCalls.Load())

	status, _ := jobStatus(t, res, "probe")
	assert.Equal(t, flow.StatusSuccess, status)
	status, reason := jobStatus(t, res, "process")
	assert.Equal(t, flow.StatusSkipped, status)
	assert.Equal(t, "condition=false", reason)
}

func TestRun_OnNoDataSkipsRestOfJob(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: j
    steps:
      - id: probe
        type: test.skip
        inputs: {}
        on_no_data: skip_job
      - id: boom
        type: test.boom
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)
	assert.Equal(t, int32(0), boomCalls.Load())

	status, reason := jobStatus(t, res, "j")
	assert.Equal(t, flow.StatusSkipped, status)
	assert.Contains(t, reason, "probe")
	require.Len(t, res.Summary.Jobs[0].Steps, 2)
	assert.Equal(t, flow.StatusSkipped, res.Summary.Jobs[0].Steps[1].Status)
}

func TestRun_DependsOnBlocksAfterFailure(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: a
    steps:
      - id: fail
        type: test.fail
        inputs: {}
  - id: b
    depends_on: [a]
    steps:
      - id: boom
        type: test.boom
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)
	assert.Equal(t, int32(0), boomCalls.Load())

	status, _ := jobStatus(t, res, "a")
	assert.Equal(t, flow.StatusFailed, status)
	status, _ = jobStatus(t, res, "b")
	assert.Equal(t, flow.StatusBlocked, status)

	// Step statuses under the blocked job are not recorded.
	for _, j := range res.Summary.Jobs {
		if j.JobID == "b" {
			assert.Empty(t, j.Steps)
		}
	}
	assert.True(t, res.Summary.Failed())
}

func TestRun_StepErrorAbortsRun(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: a
    steps:
      - id: boom
        type: test.boom
        inputs: {}
  - id: later
    steps:
      - id: emit
        type: test.emit
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.Error(t, err)
	assert.Equal(t, int32(1), boomCalls.Load())
	// The run aborted before job "later" executed.
	require.Len(t, res.Summary.Jobs, 1)
}

func TestRun_ResumeSkipsSucceededStep(t *testing.T) {
	var boomCalls atomic.Int32
	r, work := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: j
    steps:
      - id: emit
        type: test.emit
        inputs:
          output:
            n: 1
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)

	// Pin the same run id: the persisted SUCCESS must short-circuit.
	res2, err := r.Run(context.Background(), Options{FlowPath: flowPath, RunID: res.RunID})
	require.NoError(t, err)
	assert.Equal(t, res.RunID, res2.RunID)
	status, _ := jobStatus(t, res2, "j")
	assert.Equal(t, flow.StatusSuccess, status)

	// Second run reports zero-duration resume for the step.
	assert.Zero(t, res2.Summary.Jobs[0].Steps[0].DurationMs)
	_ = work
}

func TestRun_ValidationFailureAborts(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: j
    steps:
      - id: s
        type: not.registered
        inputs: {}
`)

	_, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	var vErr *ErrValidationFailed
	require.ErrorAs(t, err, &vErr)
	assert.NotEmpty(t, vErr.Report.Errors)
}

func TestRun_OutputsFlowBetweenSteps(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: j
    steps:
      - id: first
        type: test.emit
        inputs:
          output:
            count: 42
      - id: second
        type: test.emit
        inputs:
          output:
            prior: "{{steps.first.count}}"
        outputs:
          prior: "{{result.prior}}"
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)
	status, _ := jobStatus(t, res, "j")
	assert.Equal(t, flow.StatusSuccess, status)
}

func TestRun_CleanupPolicyOnSuccess(t *testing.T) {
	var boomCalls atomic.Int32
	r, work := testRunner(t, &boomCalls, nil)
	header := fmt.Sprintf(`version: 1
flow:
  id: cleanup-flow
  workspace:
    root: %q
    cleanup_policy: on_success
    layout:
      artifacts: artifacts
      scratch: scratch
      manifests: manifests
  state:
    backend: file
    path: state.json
  locks:
    scope: none
    ttl_seconds: 60
`, work)
	flowPath := writeFlow(t, header+`
jobs:
  - id: j
    steps:
      - id: emit
        type: test.emit
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath})
	require.NoError(t, err)

	jobDir := filepath.Join(work, "cleanup-flow", "j", res.RunID)
	_, statErr := os.Stat(jobDir)
	assert.True(t, os.IsNotExist(statErr), "job dir should be cleaned after success")
}

func TestRun_DryRunExecutesNothing(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: j
    steps:
      - id: boom
        type: test.boom
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, int32(0), boomCalls.Load())
	require.Len(t, res.Summary.Jobs, 1)
}

func TestRun_FlowJobSelectsSingleJob(t *testing.T) {
	var boomCalls atomic.Int32
	r, _ := testRunner(t, &boomCalls, nil)
	flowPath := writeFlow(t, flowHeader+`
jobs:
  - id: a
    steps:
      - id: boom
        type: test.boom
        inputs: {}
  - id: b
    steps:
      - id: emit
        type: test.emit
        inputs: {}
`)

	res, err := r.Run(context.Background(), Options{FlowPath: flowPath, FlowJob: "b"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), boomCalls.Load())
	require.Len(t, res.Summary.Jobs, 1)
	assert.Equal(t, "b", res.Summary.Jobs[0].JobID)
}
