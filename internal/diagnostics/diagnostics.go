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

// Package diagnostics implements the doctor/explain/validate CLI
// surfaces (spec §2 "Diagnostics"): connectivity probes, execution-plan
// rendering, and the OK:/INVALID: report printer from spec §7.
package diagnostics

import (
	"context"
	"fmt"
	"io"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

// Probe is one resource's connectivity result.
type Probe struct {
	Resource string `json:"resource"`
	Kind     string `json:"kind"`
	Driver   string `json:"driver"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// DoctorReport is the doctor command's output: the validation report
// plus one best-effort probe per declared resource.
type DoctorReport struct {
	Report *validate.Report `json:"report"`
	Probes []Probe          `json:"probes"`
}

// Doctor validates the flow and probes every declared resource by
// constructing (and immediately closing) an uncached connector.
// Transport failures land in the probe, never abort the report.
func Doctor(ctx context.Context, r *runner.Runner, flowPath string) (*DoctorReport, error) {
	insp, err := r.Inspect(flowPath)
	if err != nil {
		return nil, err
	}
	out := &DoctorReport{Report: insp.Report, Probes: []Probe{}}
	if insp.Resources == nil {
		return out, nil
	}

	mgr := connector.NewManager(r.Connectors, insp.Settings, insp.Resources)
	defer mgr.CloseAll()
	none := connector.CacheNone

	for name, res := range insp.Resources {
		probe := Probe{Resource: name, Kind: res.Kind, Driver: res.Driver}
		c, err := mgr.Get(ctx, res.Kind, name, &none)
		if err != nil {
			probe.Error = err.Error()
		} else {
			probe.OK = true
			c.Close()
		}
		out.Probes = append(out.Probes, probe)
	}
	return out, nil
}

// PlanStep is one step of the execution plan.
type PlanStep struct {
	StepID   string `json:"step_id"`
	StepType string `json:"step_type"`
	WithLock bool   `json:"with_lock,omitempty"`
}

// PlanJob is one job of the execution plan, in declaration order.
type PlanJob struct {
	JobID     string     `json:"job_id"`
	DependsOn []string   `json:"depends_on,omitempty"`
	When      string     `json:"when,omitempty"`
	Steps     []PlanStep `json:"steps"`
}

// Plan is the explain command's output: the ordered execution plan a
// run would follow, with no side effects.
type Plan struct {
	FlowID string           `json:"flow_id"`
	Report *validate.Report `json:"report"`
	Jobs   []PlanJob        `json:"jobs"`
}

// Explain resolves the flow and renders its execution plan without
// invoking any step (spec SPEC_FULL internal/diagnostics).
func Explain(r *runner.Runner, flowPath string) (*Plan, error) {
	insp, err := r.Inspect(flowPath)
	if err != nil {
		return nil, err
	}
	plan := &Plan{Report: insp.Report, Jobs: []PlanJob{}}
	if insp.Spec == nil {
		return plan, nil
	}
	plan.FlowID = insp.Spec.Flow.ID
	for _, job := range insp.Spec.Jobs {
		pj := PlanJob{
			JobID:     job.ID,
			DependsOn: job.DependsOn,
			When:      job.When,
			Steps:     []PlanStep{},
		}
		for _, s := range job.Steps {
			pj.Steps = append(pj.Steps, PlanStep{
				StepID:   s.ID,
				StepType: s.Type,
				WithLock: s.Lock != nil,
			})
		}
		plan.Jobs = append(plan.Jobs, pj)
	}
	return plan, nil
}

// PrintReport writes the validator's human-readable form (spec §7):
// "OK: <path>" or "INVALID: <path>" followed by one line per error.
func PrintReport(w io.Writer, path string, r *validate.Report) {
	if r.OK {
		fmt.Fprintf(w, "OK: %s\n", path)
	} else {
		fmt.Fprintf(w, "INVALID: %s\n", path)
		for _, issue := range r.Errors {
			fmt.Fprintf(w, "  error[%s] %s: %s\n", issue.Code, issue.Loc, issue.Msg)
		}
	}
	for _, issue := range r.Warnings {
		fmt.Fprintf(w, "  warning[%s] %s: %s\n", issue.Code, issue.Loc, issue.Msg)
	}
}

// PrintPlan writes the plan in the explain command's text form.
func PrintPlan(w io.Writer, p *Plan) {
	fmt.Fprintf(w, "flow: %s\n", p.FlowID)
	for _, job := range p.Jobs {
		fmt.Fprintf(w, "job %s", job.JobID)
		if len(job.DependsOn) > 0 {
			fmt.Fprintf(w, " (depends_on: %v)", job.DependsOn)
		}
		if job.When != "" {
			fmt.Fprintf(w, " (when: %s)", job.When)
		}
		fmt.Fprintln(w)
		for _, s := range job.Steps {
			lock := ""
			if s.WithLock {
				lock = " [with_lock]"
			}
			fmt.Fprintf(w, "  - %s (%s)%s\n", s.StepID, s.StepType, lock)
		}
	}
}
