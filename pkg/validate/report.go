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

// Package validate implements the six-stage validation pipeline from spec
// §4.2: schema, structural semantic, template scan, decode-concat scan,
// enterprise archive-allowlist scan, and step-specific semantic. Every
// entrypoint (run/validate/doctor/explain/scheduler) calls Validate before
// doing anything else; there is no alternate path (spec §4.2 "no bypass").
package validate

import "github.com/aetherflow/aetherflow/internal/settings"

// Issue is one finding from the pipeline: {code, loc, msg} per spec §4.2
// "Output".
type Issue struct {
	Code string
	Loc  string
	Msg  string
}

// Report is the pipeline's output: {ok, errors[], warnings[], flow_yaml}.
type Report struct {
	OK       bool
	Errors   []Issue
	Warnings []Issue
	FlowYAML string
}

func (r *Report) addError(code, loc, msg string) {
	r.Errors = append(r.Errors, Issue{Code: code, Loc: loc, Msg: msg})
	r.OK = false
}

func (r *Report) addWarning(code, loc, msg string) {
	r.Warnings = append(r.Warnings, Issue{Code: code, Loc: loc, Msg: msg})
}

// Options parameterizes a Validate call with the settings that affect
// pipeline behavior (spec §4.2 stage 3 and stage 5).
type Options struct {
	// Settings carries AETHERFLOW_VALIDATE_ENV_STRICT and AETHERFLOW_MODE.
	Settings *settings.Settings

	// EnvRoot is the "env" root exposed to the template scan (stage 3),
	// typically the sealed run snapshot reduced to a map. A nil map means
	// no env keys are known, so every lookup is treated as missing.
	EnvRoot map[string]any

	// ZipDrivers is the manifest-declared archive driver allowlist,
	// required for the enterprise scan (stage 5) when mode=enterprise.
	ZipDrivers []string

	// RegisteredStepTypes is the set of step type names known to the step
	// registry (spec §4.2 stage 2 "step type must be registered").
	RegisteredStepTypes map[string]bool
}
