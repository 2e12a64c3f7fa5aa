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

package diagnostics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/step"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

type noopStep struct{}

func (noopStep) Validate() error                      { return nil }
func (noopStep) Run(*step.Context) (step.Result, error) { return step.Result{}, nil }

func testFlow(t *testing.T) (*runner.Runner, string) {
	t.Helper()
	work := t.TempDir()

	reg := step.NewRegistry()
	reg.Register("test.noop", func(string, map[string]any) (step.Step, error) { return noopStep{}, nil })

	r := &runner.Runner{
		Snapshot:   settings.Snapshot{"WORK": work},
		Steps:      reg,
		Connectors: connector.NewRegistry(),
	}

	flowPath := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(flowPath, []byte(`version: 1
flow:
  id: diag-flow
  workspace:
    root: "{{env.WORK}}"
    cleanup_policy: never
    layout: {artifacts: artifacts, scratch: scratch, manifests: manifests}
  state: {backend: file, path: state.json}
  locks: {scope: none, ttl_seconds: 60}
jobs:
  - id: a
    steps:
      - id: s1
        type: test.noop
        inputs: {}
  - id: b
    depends_on: [a]
    when: jobs.a.outputs.ok == true
    steps:
      - id: s2
        type: test.noop
        inputs: {}
`), 0o644))
	return r, flowPath
}

func TestExplain_RendersPlan(t *testing.T) {
	r, flowPath := testFlow(t)
	plan, err := Explain(r, flowPath)
	require.NoError(t, err)
	require.True(t, plan.Report.OK)
	require.Len(t, plan.Jobs, 2)
	assert.Equal(t, "a", plan.Jobs[0].JobID)
	assert.Equal(t, []string{"a"}, plan.Jobs[1].DependsOn)
	assert.Equal(t, "jobs.a.outputs.ok == true", plan.Jobs[1].When)

	var buf strings.Builder
	PrintPlan(&buf, plan)
	assert.Contains(t, buf.String(), "flow: diag-flow")
	assert.Contains(t, buf.String(), "s2 (test.noop)")
}

func TestPrintReport_OKAndInvalid(t *testing.T) {
	var buf strings.Builder
	PrintReport(&buf, "flow.yaml", &validate.Report{OK: true})
	assert.Equal(t, "OK: flow.yaml\n", buf.String())

	buf.Reset()
	r := &validate.Report{}
	r.OK = false
	r.Errors = []validate.Issue{{Code: "schema_error", Loc: "jobs[0]", Msg: "bad"}}
	PrintReport(&buf, "flow.yaml", r)
	assert.Contains(t, buf.String(), "INVALID: flow.yaml")
	assert.Contains(t, buf.String(), "schema_error")
}
