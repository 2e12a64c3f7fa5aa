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

	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/predicate"
)

// structuralStage runs stage 2 (spec §4.2): job IDs unique, step IDs
// unique within a job, depends_on resolves only to a prior job in
// declaration order, when expressions parse under the restricted AST,
// and step types are registered.
func structuralStage(fs *flow.FlowSpec, opts Options, r *Report) {
	seenJobs := make(map[string]int, len(fs.Jobs))

	for i, job := range fs.Jobs {
		loc := fmt.Sprintf("jobs[%d]", i)
		if job.ID == "" {
			r.addError("missing_job_id", loc, "job is missing an id")
			continue
		}
		if prior, dup := seenJobs[job.ID]; dup {
			r.addError("duplicate_job_id", loc, fmt.Sprintf("job id %q duplicates jobs[%d]", job.ID, prior))
		}
		seenJobs[job.ID] = i

		for _, dep := range job.DependsOn {
			depIdx, known := seenJobs[dep]
			if !known || depIdx >= i {
				r.addError("forward_depends_on", loc+".depends_on",
					fmt.Sprintf("job %q depends_on %q which is not a prior job in declaration order", job.ID, dep))
			}
		}

		if job.When != "" {
			if _, err := predicate.Parse(job.When); err != nil {
				r.addError("invalid_when", loc+".when", err.Error())
			}
		}

		seenSteps := make(map[string]bool, len(job.Steps))
		for j, step := range job.Steps {
			stepLoc := fmt.Sprintf("%s.steps[%d]", loc, j)
			if step.ID == "" {
				r.addError("missing_step_id", stepLoc, "step is missing an id")
			} else if seenSteps[step.ID] {
				r.addError("duplicate_step_id", stepLoc, fmt.Sprintf("step id %q duplicates a prior step in job %q", step.ID, job.ID))
			}
			seenSteps[step.ID] = true

			if step.Type == "" {
				r.addError("missing_step_type", stepLoc+".type", "step is missing a type")
			} else if opts.RegisteredStepTypes != nil && !opts.RegisteredStepTypes[step.Type] {
				r.addError("unregistered_step_type", stepLoc+".type", fmt.Sprintf("step type %q is not registered", step.Type))
			}
		}
	}
}
