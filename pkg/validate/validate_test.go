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

package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/settings"
)

const validFlow = `
version: 1
flow:
  id: daily-extract
  workspace:
    root: "{{env.WORK_ROOT}}"
    cleanup_policy: on_success
    layout: {artifacts: artifacts, scratch: scratch, manifests: manifests}
  state: {backend: sqlite, path: state.db}
  locks: {scope: job, ttl_seconds: 300}
resources:
  warehouse:
    kind: db
    driver: postgres
    config:
      dsn: "{{env.DB_DSN}}"
    options: {}
    decode:
      config_paths: ["dsn"]
jobs:
  - id: extract
    steps:
      - id: pull
        type: db.extract
        inputs:
          query: "select 1"
  - id: report
    depends_on: ["extract"]
    when: "jobs.extract.outputs.row_count > 0"
    steps:
      - id: run_external
        type: external.process
        inputs:
          command: ["echo", "hi"]
`

func baseOptions() Options {
	return Options{
		Settings: settings.FromSnapshot(settings.Snapshot{}),
		EnvRoot: map[string]any{
			"WORK_ROOT": "/tmp/work",
			"DB_DSN":    "postgres://localhost/db",
		},
		RegisteredStepTypes: map[string]bool{"db.extract": true, "external.process": true},
	}
}

func TestValidate_ValidFlowPasses(t *testing.T) {
	report, err := Validate([]byte(validFlow), baseOptions())
	require.NoError(t, err)
	require.True(t, report.OK, "errors: %+v", report.Errors)
	require.Empty(t, report.Errors)
}

func TestValidate_UnknownTopLevelKeyFails(t *testing.T) {
	bad := validFlow + "\nbogus_top_level: true\n"
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
}

func TestValidate_DuplicateJobIDFails(t *testing.T) {
	bad := strings.Replace(validFlow, "id: report", "id: extract", 1)
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "duplicate_job_id"))
}

func TestValidate_ForwardDependsOnFails(t *testing.T) {
	bad := strings.Replace(validFlow, `depends_on: ["extract"]`, `depends_on: ["does_not_exist"]`, 1)
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "forward_depends_on"))
}

func TestValidate_UnregisteredStepTypeFails(t *testing.T) {
	opts := baseOptions()
	opts.RegisteredStepTypes = map[string]bool{"external.process": true}
	report, err := Validate([]byte(validFlow), opts)
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "unregistered_step_type"))
}

func TestValidate_InvalidWhenFails(t *testing.T) {
	bad := strings.Replace(validFlow, `when: "jobs.extract.outputs.row_count > 0"`, `when: "env.FOO == 1"`, 1)
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "invalid_when"))
}

func TestValidate_MissingEnvKeyIsWarningByDefault(t *testing.T) {
	opts := baseOptions()
	opts.EnvRoot = map[string]any{} // WORK_ROOT and DB_DSN both now missing
	report, err := Validate([]byte(validFlow), opts)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.NotEmpty(t, report.Warnings)
}

func TestValidate_MissingEnvKeyIsErrorWhenStrict(t *testing.T) {
	opts := baseOptions()
	opts.EnvRoot = map[string]any{}
	opts.Settings = settings.FromSnapshot(settings.Snapshot{"AETHERFLOW_VALIDATE_ENV_STRICT": "true"})
	report, err := Validate([]byte(validFlow), opts)
	require.NoError(t, err)
	require.False(t, report.OK)
}

func TestValidate_DecodeConcatRejectsNonStandaloneToken(t *testing.T) {
	bad := strings.Replace(validFlow, `dsn: "{{env.DB_DSN}}"`, `dsn: "Bearer {{env.DB_DSN}}"`, 1)
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "decode_concat_not_allowed"))
}

func TestValidate_ExternalProcessRequiresCommand(t *testing.T) {
	bad := strings.Replace(validFlow, `inputs:
          command: ["echo", "hi"]`, `inputs:
          timeout_seconds: 5`, 1)
	report, err := Validate([]byte(bad), baseOptions())
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "missing_required_input"))
}

func TestValidate_EnterpriseArchiveAllowlist(t *testing.T) {
	flowYAML := strings.Replace(validFlow, "kind: db\n    driver: postgres", "kind: archive\n    driver: external", 1)
	opts := baseOptions()
	opts.Settings = settings.FromSnapshot(settings.Snapshot{"AETHERFLOW_MODE": "enterprise"})
	opts.ZipDrivers = []string{"pyzipper", "zipfile"}
	report, err := Validate([]byte(flowYAML), opts)
	require.NoError(t, err)
	require.False(t, report.OK)
	require.True(t, hasCode(report.Errors, "archive_driver_not_allowed"))
}

func hasCode(issues []Issue, code string) bool {
	for _, i := range issues {
		if i.Code == code {
			return true
		}
	}
	return false
}
