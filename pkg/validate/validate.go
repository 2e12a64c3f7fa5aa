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
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Validate runs the full six-stage pipeline over raw flow YAML (spec
// §4.2). Every entrypoint — run, validate, doctor, explain, scheduler —
// calls this function before doing anything else with the flow; there is
// no other path into a FlowSpec being treated as valid.
func Validate(raw []byte, opts Options) (*Report, error) {
	r := &Report{OK: true, FlowYAML: string(raw)}

	// Stage 1: schema.
	schemaStage(raw, r)
	fs := decodeFlowStage(raw, r)
	if fs == nil {
		// Strict decode failed outright; later stages need a typed
		// FlowSpec to walk, so stop here with whatever stage-1 errors
		// were collected.
		return r, nil
	}

	// Stage 2: structural semantic.
	structuralStage(fs, opts, r)

	// Stage 3: template scan.
	templateScanStage(fs, opts, r)

	// Stage 4: resource decode-concat scan.
	decodeConcatStage(fs, r)

	// Stage 5: enterprise mode scan.
	enterpriseStage(fs, opts, r)

	// Stage 6: step-specific semantic.
	stepSemanticStage(fs, r)

	return r, nil
}

// ValidateManifest runs the schema stage of the pipeline over raw bundle
// manifest YAML (spec §4.2 stage 1, scoped to BundleManifest — manifests
// are validated at bundle-sync time, before any flow within them loads).
func ValidateManifest(raw []byte) (*Report, error) {
	r := &Report{OK: true, FlowYAML: string(raw)}

	manifestSchemaStage(raw, r)
	if _, err := flow.DecodeBundleManifest(raw); err != nil {
		r.addError("schema_error", "", err.Error())
	}

	return r, nil
}
