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
	"fmt"
	"sync"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// StepCheck inspects one step's rendered-shape inputs (pre-render, as
// decoded from YAML) and appends any issues it finds to the report. loc
// is the step's dotted path, already prefixed with job/step indices.
type StepCheck func(inputs map[string]any, loc string, r *Report)

var (
	stepChecksMu sync.RWMutex
	stepChecks   = map[string]StepCheck{}
)

// RegisterStepCheck adds a step-specific semantic check for stepType
// (spec §4.2 stage 6), open for built-in and plugin-registered steps to
// extend. Registering the same type twice replaces the prior check.
func RegisterStepCheck(stepType string, check StepCheck) {
	stepChecksMu.Lock()
	defer stepChecksMu.Unlock()
	stepChecks[stepType] = check
}

func lookupStepCheck(stepType string) (StepCheck, bool) {
	stepChecksMu.RLock()
	defer stepChecksMu.RUnlock()
	c, ok := stepChecks[stepType]
	return c, ok
}

// stepSemanticStage runs stage 6 (spec §4.2): built-in types with extra
// requirements, e.g. external.process requires inputs.command.
func stepSemanticStage(fs *flow.FlowSpec, r *Report) {
	for i, job := range fs.Jobs {
		for j, step := range job.Steps {
			loc := fmt.Sprintf("jobs[%d].steps[%d]", i, j)
			if check, ok := lookupStepCheck(step.Type); ok {
				check(step.Inputs, loc, r)
			}
		}
	}
}

func init() {
	RegisterStepCheck("external.process", checkExternalProcess)
	RegisterStepCheck("db.extract", checkLogMode)
	RegisterStepCheck("db.execute", checkLogMode)
}

func checkExternalProcess(inputs map[string]any, loc string, r *Report) {
	if _, ok := inputs["command"]; !ok {
		r.addError("missing_required_input", loc+".inputs.command", "external.process requires inputs.command")
	}
	idem, ok := inputs["idempotency"].(map[string]any)
	if !ok {
		return
	}
	if strategy, _ := idem["strategy"].(string); strategy == "atomic_dir" {
		for _, key := range []string{"temp_output_dir", "final_output_dir"} {
			if s, _ := idem[key].(string); s == "" {
				r.addError("missing_required_input", loc+".inputs.idempotency."+key,
					"atomic_dir idempotency requires temp_output_dir and final_output_dir")
			}
		}
	}
}

// allowedLogModes is the fixed set spec §4.2 stage 6 references ("log
// modes are from a fixed set").
var allowedLogModes = map[string]bool{"none": true, "summary": true, "full": true}

func checkLogMode(inputs map[string]any, loc string, r *Report) {
	raw, ok := inputs["log_mode"]
	if !ok {
		return
	}
	mode, isStr := raw.(string)
	if !isStr || !allowedLogModes[mode] {
		r.addError("invalid_log_mode", loc+".inputs.log_mode", fmt.Sprintf("log_mode %v is not one of none|summary|full", raw))
	}
}
