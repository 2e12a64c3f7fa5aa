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
	"fmt"
	"os"
	"time"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/observability"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/step"
	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/predicate"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/runctx"
)

// skipReasonConditionFalse is the observable skip reason for a false
// `when` predicate (spec §8 property 9).
const skipReasonConditionFalse = "condition=false"

// execution carries the mutable state of one run through the job loop.
type execution struct {
	runner   *Runner
	spec     *flow.FlowSpec
	rc       *runctx.RunContext
	settings *settings.Settings
	emitter  *observability.Emitter
	dryRun   bool
	flowJob  string

	// jobOutputs accumulates finalized outputs per completed job, the
	// data `when` predicates and jobs.<id>.outputs.* templates read.
	jobOutputs map[string]map[string]any

	// jobStatus records each job's terminal status for depends_on gating.
	jobStatus map[string]flow.RunStatus
}

func (e *execution) run(ctx context.Context) (*observability.RunSummary, error) {
	start := time.Now()
	e.jobOutputs = make(map[string]map[string]any)
	e.jobStatus = make(map[string]flow.RunStatus)

	summary := &observability.RunSummary{
		FlowID: e.rc.FlowID,
		RunID:  e.rc.RunID,
	}
	e.emitter.RunStart(ctx, e.rc.FlowID, e.rc.RunID)

	var flowLockKey string
	if e.spec.Flow.Locks.Scope == flow.LockScopeFlow && !e.dryRun {
		flowLockKey = "flow:" + e.rc.FlowID
		if err := e.acquireLock(flowLockKey, e.spec.Flow.Locks.TTLSeconds); err != nil {
			return e.finish(ctx, summary, start), err
		}
		defer e.rc.State.ReleaseLock(flowLockKey, e.rc.RunID)
	}

	if e.flowJob != "" {
		found := false
		for _, j := range e.spec.Jobs {
			if j.ID == e.flowJob {
				found = true
				break
			}
		}
		if !found {
			return e.finish(ctx, summary, start),
				&aetherrors.RuntimeError{Message: fmt.Sprintf("runner: flow has no job %q", e.flowJob)}
		}
	}

	// A job whose step returns FAILED ends the job but not the run:
	// later jobs observe the status and block (spec §8 property 8). A
	// step that errors aborts the whole run after cleanup (spec §4.3
	// "Failure").
	var runErr error
	for _, job := range e.spec.Jobs {
		if e.flowJob != "" && job.ID != e.flowJob {
			continue
		}
		js, err := e.runJob(ctx, job)
		summary.Jobs = append(summary.Jobs, js)
		if err != nil {
			runErr = err
			break
		}
	}

	return e.finish(ctx, summary, start), runErr
}

func (e *execution) finish(ctx context.Context, summary *observability.RunSummary, start time.Time) *observability.RunSummary {
	summary.DurationMs = time.Since(start).Milliseconds()
	summary.CountStatuses()
	e.emitter.RunEnd(ctx, summary)
	return summary
}

func (e *execution) acquireLock(key string, ttlSeconds int) error {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	acquired, err := e.rc.State.TryAcquireLock(key, e.rc.RunID, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		return err
	}
	if !acquired {
		return &aetherrors.RuntimeError{Message: fmt.Sprintf("runner: lock %q is held by another run", key)}
	}
	return nil
}

// depsSatisfied reports whether every declared dependency ended SUCCESS.
// The single-job (--flow-job) path treats dependencies as satisfied.
func (e *execution) depsSatisfied(job flow.JobSpec) bool {
	if e.flowJob != "" {
		return true
	}
	for _, dep := range job.DependsOn {
		if e.jobStatus[dep] != flow.StatusSuccess {
			return false
		}
	}
	return true
}

// jobsRoot builds the jobs.<id>.outputs.* tree for templates and `when`
// evaluation from the finalized outputs of completed jobs.
func (e *execution) jobsRoot() map[string]any {
	out := make(map[string]any, len(e.jobOutputs))
	for id, outputs := range e.jobOutputs {
		var o map[string]any = outputs
		if o == nil {
			o = map[string]any{}
		}
		out[id] = map[string]any{"outputs": o}
	}
	return out
}

func (e *execution) runJob(ctx context.Context, job flow.JobSpec) (observability.JobSummary, error) {
	js := observability.JobSummary{JobID: job.ID, Steps: []observability.StepSummary{}}
	start := time.Now()

	record := func(status flow.RunStatus, reason string) observability.JobSummary {
		js.Status = status
		js.SkipReason = reason
		js.DurationMs = time.Since(start).Milliseconds()
		e.jobStatus[job.ID] = status
		if !e.dryRun {
			if err := e.rc.State.SetJobStatus(job.ID, e.rc.RunID, status); err != nil {
				e.rc.Logger.Warn("failed to persist job status", "job_id", job.ID, "error", err.Error())
			}
		}
		e.emitter.JobEnd(ctx, js)
		return js
	}

	// depends_on gating: any non-SUCCESS dependency blocks the job and
	// no step statuses are recorded (spec §8 property 8).
	if !e.depsSatisfied(job) {
		e.emitter.JobStart(ctx, job.ID)
		return record(flow.StatusBlocked, "dependency not successful"), nil
	}

	// `when` gating against finalized upstream outputs.
	if job.When != "" {
		prog, err := predicate.Compile(job.When)
		if err != nil {
			e.emitter.JobStart(ctx, job.ID)
			record(flow.StatusFailed, "")
			return js, err
		}
		ok, err := prog.Eval(e.jobsRoot())
		if err != nil {
			e.emitter.JobStart(ctx, job.ID)
			record(flow.StatusFailed, "")
			return js, err
		}
		if !ok {
			e.emitter.JobStart(ctx, job.ID)
			return record(flow.StatusSkipped, skipReasonConditionFalse), nil
		}
	}

	e.emitter.JobStart(ctx, job.ID)

	if e.spec.Flow.Locks.Scope == flow.LockScopeJob && !e.dryRun {
		key := "job:" + e.rc.FlowID + ":" + job.ID
		if err := e.acquireLock(key, e.spec.Flow.Locks.TTLSeconds); err != nil {
			record(flow.StatusFailed, "")
			return js, err
		}
		defer e.rc.State.ReleaseLock(key, e.rc.RunID)
	}

	dirs := e.rc.JobDir(job.ID)
	if !e.dryRun {
		for _, dir := range []string{dirs.Artifacts, dirs.Scratch, dirs.Manifests} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				record(flow.StatusFailed, "")
				return js, err
			}
		}
	}
	sandbox := runctx.NewSandbox(dirs, e.rc.WorkRoot, e.settings.StrictSandbox, e.settings.IsEnterprise())

	stepOutputs := make(map[string]any)
	jobOutputs := make(map[string]any)
	skipRest := ""

	for _, spec := range job.Steps {
		ss, output, err := e.runStep(ctx, job.ID, spec, dirs, sandbox, stepOutputs, jobOutputs, skipRest)
		js.Steps = append(js.Steps, ss)
		if err != nil {
			record(flow.StatusFailed, "")
			e.cleanup(dirs, flow.StatusFailed)
			return js, err
		}
		if ss.Status == flow.StatusFailed {
			// Declared failure without an error: the job fails, the run
			// moves on so downstream jobs can block on the status.
			record(flow.StatusFailed, "")
			e.cleanup(dirs, flow.StatusFailed)
			return js, nil
		}

		if ss.Status == flow.StatusSkipped && skipRest == "" && spec.OnNoData == flow.OnNoDataSkipJob {
			skipRest = fmt.Sprintf("step %s returned no data", spec.ID)
		}
		if output != nil {
			stepOutputs[spec.ID] = output
		}

		// Declared outputs render after the step succeeds, with the
		// step's own output exposed as `result` (spec §4.3 step 7).
		if spec.Outputs != nil && ss.Status == flow.StatusSuccess {
			rendered, err := e.renderOutputs(spec.Outputs, stepOutputs, jobOutputs, output)
			if err != nil {
				record(flow.StatusFailed, "")
				e.cleanup(dirs, flow.StatusFailed)
				return js, err
			}
			for k, v := range rendered {
				jobOutputs[k] = v
			}
		}
	}

	status := flow.StatusSuccess
	reason := ""
	if skipRest != "" {
		status = flow.StatusSkipped
		reason = skipRest
	}
	e.jobOutputs[job.ID] = jobOutputs
	js = record(status, reason)
	e.cleanup(dirs, status)
	return js, nil
}

// cleanup applies the workspace cleanup policy (spec §4.3 "Cleanup
// policy"): on_success removes the job dir only after success, always
// removes it regardless, never preserves it.
func (e *execution) cleanup(dirs runctx.JobDirs, status flow.RunStatus) {
	if e.dryRun {
		return
	}
	policy := e.spec.Flow.Workspace.CleanupPolicy
	remove := policy == flow.CleanupAlways ||
		(policy == flow.CleanupOnSuccess && status == flow.StatusSuccess)
	if !remove {
		return
	}
	if err := os.RemoveAll(dirs.Root); err != nil {
		e.rc.Logger.Warn("job dir cleanup failed", "dir", dirs.Root, "error", err.Error())
	}
}

func (e *execution) stepEnvironment(stepOutputs, jobOutputs map[string]any, result map[string]any) resolver.Environment {
	roots := map[string]any{
		"env":     envRoot(e.rc.Env),
		"steps":   stepOutputs,
		"job":     map[string]any{"outputs": jobOutputs},
		"jobs":    e.jobsRoot(),
		"run_id":  e.rc.RunID,
		"flow_id": e.rc.FlowID,
		"result":  map[string]any{},
	}
	if result != nil {
		roots["result"] = result
	}
	return resolver.NewEnvironment(roots)
}

var stepAllowedRoots = resolver.NewAllowedRoots("env", "steps", "job", "jobs", "run_id", "flow_id", "result")

func (e *execution) renderOutputs(outputs map[string]any, stepOutputs, jobOutputs map[string]any, result map[string]any) (map[string]any, error) {
	env := e.stepEnvironment(stepOutputs, jobOutputs, result)
	return resolver.RenderStringMap(outputs, env, stepAllowedRoots)
}

func (e *execution) runStep(ctx context.Context, jobID string, spec flow.StepSpec, dirs runctx.JobDirs, sandbox *runctx.Sandbox, stepOutputs, jobOutputs map[string]any, skipRest string) (observability.StepSummary, map[string]any, error) {
	ss := observability.StepSummary{StepID: spec.ID, StepType: spec.Type}
	start := time.Now()

	persist := func(status flow.RunStatus) {
		ss.Status = status
		ss.DurationMs = time.Since(start).Milliseconds()
		if !e.dryRun {
			if err := e.rc.State.SetStepStatus(jobID, e.rc.RunID, spec.ID, status); err != nil {
				e.rc.Logger.Warn("failed to persist step status", "step_id", spec.ID, "error", err.Error())
			}
		}
		e.emitter.StepEnd(ctx, jobID, ss)
	}

	// Short-circuit propagation from an upstream on_no_data skip.
	if skipRest != "" {
		e.emitter.StepStart(ctx, jobID, spec.ID, spec.Type)
		persist(flow.StatusSkipped)
		return ss, nil, nil
	}

	// Resume idempotency: a step already SUCCESS or SKIPPED under this
	// (flow_id, run_id) does not re-execute (spec §8 property 10).
	if !e.dryRun {
		if prior, ok, err := e.rc.State.StepStatus(jobID, e.rc.RunID, spec.ID); err == nil && ok {
			if prior == flow.StatusSuccess || prior == flow.StatusSkipped {
				ss.Status = prior
				ss.DurationMs = 0
				return ss, nil, nil
			}
		}
	}

	e.emitter.StepStart(ctx, jobID, spec.ID, spec.Type)

	env := e.stepEnvironment(stepOutputs, jobOutputs, nil)
	renderedAny, err := resolver.RenderStringMap(spec.Inputs, env, stepAllowedRoots)
	if err != nil {
		persist(flow.StatusFailed)
		return ss, nil, err
	}

	instance, err := e.runner.Steps.New(spec.Type, spec.ID, renderedAny)
	if err != nil {
		persist(flow.StatusFailed)
		return ss, nil, err
	}
	if err := instance.Validate(); err != nil {
		persist(flow.StatusFailed)
		return ss, nil, err
	}

	if e.dryRun {
		persist(flow.StatusSkipped)
		return ss, nil, nil
	}

	stepCtx := &step.Context{
		Context:    ctx,
		RunCtx:     e.rc,
		Connectors: e.rc.Connectors.(*connector.Manager),
		Sandbox:    sandbox,
		State:      e.rc.State,
		FlowID:     e.rc.FlowID,
		RunID:      e.rc.RunID,
		JobID:      jobID,
		StepID:     spec.ID,
	}

	var result step.Result
	runOnce := func() (step.Result, error) { return instance.Run(stepCtx) }

	// with_lock meta-wrapping: acquire the TTL lock or fail, release on
	// every exit path (spec §9 Open Question, resolved in DESIGN.md).
	if spec.Lock != nil {
		key := spec.Lock.Key
		if key == "" {
			key = "step:" + e.rc.FlowID + ":" + jobID + ":" + spec.ID
		}
		if err := e.acquireLock(key, spec.Lock.TTLSeconds); err != nil {
			persist(flow.StatusFailed)
			return ss, nil, err
		}
		inner := runOnce
		runOnce = func() (step.Result, error) {
			defer e.rc.State.ReleaseLock(key, e.rc.RunID)
			return inner()
		}
	}

	result, err = runOnce()
	if err != nil {
		persist(flow.StatusFailed)
		return ss, nil, err
	}

	status := flow.RunStatus(result.Status)
	if result.Status == "" {
		status = flow.StatusSuccess
	}
	if status == flow.StatusFailed {
		persist(flow.StatusFailed)
		return ss, result.Output, nil
	}

	// Status persistence precedes outputs becoming visible to later
	// steps (spec §5 "Ordering guarantees" d).
	persist(status)
	return ss, result.Output, nil
}
