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
	"os"

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

// Inspection is the read-only view the doctor/explain surfaces work
// from: the validation report plus the flow, its materialized
// resources, and the sealed snapshot — everything short of executing a
// step.
type Inspection struct {
	Report    *validate.Report
	Spec      *flow.FlowSpec
	Resources map[string]flow.ResourceSpec
	Env       map[string]string
	Settings  *settings.Settings
}

// Inspect runs the same validation and resolution phases as Run but
// stops before building a run context (spec §4.2 "A single validation
// pipeline for every entrypoint"). When the report has errors only
// Report, Env and Settings are set; Spec and Resources are filled in for
// a clean report, Resources only if materialization succeeded.
func (r *Runner) Inspect(flowPath string) (*Inspection, error) {
	baseSettings := settings.FromSnapshot(r.Snapshot)
	if err := baseSettings.Validate(r.Snapshot); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(flowPath)
	if err != nil {
		return nil, err
	}

	sealed, runSettings, secretsModule, err := r.seal(baseSettings, nil, nil)
	if err != nil {
		return nil, err
	}

	report, err := validate.Validate(raw, validate.Options{
		Settings:            runSettings,
		EnvRoot:             envRoot(sealed),
		RegisteredStepTypes: r.registeredStepTypes(),
	})
	if err != nil {
		return nil, err
	}

	out := &Inspection{Report: report, Env: sealed, Settings: runSettings}
	if !report.OK {
		return out, nil
	}

	fs, err := flow.DecodeFlowSpec(raw)
	if err != nil {
		return out, err
	}
	out.Spec = fs

	resources, _, err := materializeResources(fs.Resources, sealed, runSettings, secretsModule)
	if err != nil {
		return out, err
	}
	out.Resources = resources
	return out, nil
}
