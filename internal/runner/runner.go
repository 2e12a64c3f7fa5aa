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

// Package runner implements the run executor (spec §4.3): environment
// sealing, resource materialization, depends_on/when job gating, the
// step lifecycle with resumable state, skip propagation, cleanup
// policy, and the run summary.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/observability"
	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/state"
	"github.com/aetherflow/aetherflow/internal/step"
	"github.com/aetherflow/aetherflow/pkg/bundle"
	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
	"github.com/aetherflow/aetherflow/pkg/runctx"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

// Options parameterize one Run call (the `aetherflow run` CLI surface,
// spec §6).
type Options struct {
	// FlowPath is the flow YAML to execute. May be empty when Manifest
	// is set; the bundle's entry_flow is used then.
	FlowPath string

	// RunID pins the run identifier, enabling resume of a prior run.
	// Empty mints a fresh 12-hex id.
	RunID string

	// FlowJob restricts execution to one named job.
	FlowJob string

	// Manifest, when non-nil, syncs the bundle before the run and
	// overlays its injected env keys onto the snapshot.
	Manifest *flow.BundleManifest

	// AllowStaleBundle tolerates a failed sync when an active bundle
	// exists (spec §4.4 step 10).
	AllowStaleBundle bool

	// DryRun resolves and validates everything — env, resources,
	// rendered step inputs — without invoking any step's run().
	DryRun bool
}

// Result is what a completed (or failed) run reports back to the CLI.
type Result struct {
	RunID   string
	Report  *validate.Report
	Summary *observability.RunSummary
	Bundle  *bundle.Result
}

// Runner executes validated flows. One value serves many runs.
type Runner struct {
	Snapshot   settings.Snapshot
	Logger     *slog.Logger
	Steps      *step.Registry
	Connectors *connector.Registry
	Emitter    *observability.Emitter
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// ErrValidationFailed wraps a failed validation report so the CLI can
// map it to exit code 2 (spec §6 "Exit codes").
type ErrValidationFailed struct {
	Report *validate.Report
}

func (e *ErrValidationFailed) Error() string {
	return fmt.Sprintf("flow validation failed with %d error(s)", len(e.Report.Errors))
}

// Run executes one flow end to end (spec §4.3).
func (r *Runner) Run(ctx context.Context, opts Options) (*Result, error) {
	result := &Result{}

	baseSettings := settings.FromSnapshot(r.Snapshot)
	if err := baseSettings.Validate(r.Snapshot); err != nil {
		return result, err
	}

	// Bundle sync happens before anything else so its injected keys are
	// part of the sealed snapshot (spec §2 "Dataflow").
	var injected map[string]string
	if opts.Manifest != nil {
		sync := &bundle.Synchronizer{
			Settings: baseSettings,
			Registry: r.Connectors,
			WorkRoot: workRootFor(baseSettings),
			Logger:   r.logger(),
		}
		bres, err := sync.Sync(ctx, opts.Manifest, r.Snapshot, bundle.Options{AllowStale: opts.AllowStaleBundle})
		if err != nil {
			return result, err
		}
		result.Bundle = bres
		injected = bundle.InjectedEnv(bres, opts.Manifest)
		if opts.FlowPath == "" {
			opts.FlowPath = filepath.Join(bres.ActiveDir, filepath.FromSlash(opts.Manifest.Bundle.EntryFlow))
		}
	}

	raw, err := os.ReadFile(opts.FlowPath)
	if err != nil {
		return result, fmt.Errorf("runner: read flow: %w", err)
	}

	sealed, runSettings, secretsModule, err := r.seal(baseSettings, opts.Manifest, injected)
	if err != nil {
		return result, err
	}

	// Validation gate: every entrypoint passes through here; a report
	// with any error aborts before a single step executes (spec §4.2).
	report, err := validate.Validate(raw, validate.Options{
		Settings:            runSettings,
		EnvRoot:             envRoot(sealed),
		ZipDrivers:          zipDrivers(opts.Manifest),
		RegisteredStepTypes: r.registeredStepTypes(),
	})
	if err != nil {
		return result, err
	}
	result.Report = report
	if !report.OK {
		return result, &ErrValidationFailed{Report: report}
	}

	fs, err := flow.DecodeFlowSpec(raw)
	if err != nil {
		return result, err
	}

	rc, err := r.buildRunContext(fs, sealed, runSettings, secretsModule, opts)
	if err != nil {
		return result, err
	}
	result.RunID = rc.RunID

	exec := &execution{
		runner:   r,
		spec:     fs,
		rc:       rc,
		settings: runSettings,
		emitter:  r.Emitter,
		dryRun:   opts.DryRun,
		flowJob:  opts.FlowJob,
	}
	summary, runErr := exec.run(ctx)
	result.Summary = summary

	if closeErr := rc.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	return result, runErr
}

// seal builds the per-run environment snapshot and the settings and
// secrets module derived from it (spec §4.3 "Environment snapshot").
func (r *Runner) seal(base *settings.Settings, m *flow.BundleManifest, injected map[string]string) (map[string]string, *settings.Settings, secrets.Module, error) {
	// The secrets module is resolved from the pre-seal settings; its
	// expand_env hook is then applied as the final seal step.
	secretsModule, err := secrets.Load(base)
	if err != nil {
		return nil, nil, nil, err
	}

	var envFiles []flow.EnvFileSpec
	if base.EnvFilesJSON != "" {
		parsed, err := parseEnvFilesJSON(base.EnvFilesJSON)
		if err != nil {
			return nil, nil, nil, err
		}
		envFiles = append(envFiles, parsed...)
	}
	var trusted []string
	enterprise := base.IsEnterprise()
	if m != nil {
		envFiles = append(envFiles, m.EnvFiles...)
		if m.Mode == flow.BundleModeEnterprise {
			enterprise = true
		}
		if enterprise {
			if dir := injected["AETHERFLOW_PLUGIN_PATHS"]; dir != "" {
				trusted = []string{dir}
			}
		}
	}

	sealed, err := runctx.Seal(runctx.SealInputs{
		Ambient:            map[string]string(r.Snapshot),
		EnvFiles:           envFiles,
		BundleInjected:     injected,
		Enterprise:         enterprise,
		TrustedPluginPaths: trusted,
		Expander:           secrets.Expander(secretsModule),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	runSettings := settings.FromSnapshot(sealed)
	return sealed, runSettings, secretsModule, nil
}

func (r *Runner) buildRunContext(fs *flow.FlowSpec, sealed map[string]string, s *settings.Settings, secretsModule secrets.Module, opts Options) (*runctx.RunContext, error) {
	envOnly := resolver.NewEnvironment(map[string]any{"env": envRoot(sealed)})
	allowed := resolver.NewAllowedRoots("env")

	// Flow-meta render phase: workspace.root and state.path may carry
	// {{env.X}} (spec §3 "The workspace.root may itself reference env").
	workRoot, err := renderString(fs.Flow.Workspace.Root, envOnly, allowed)
	if err != nil {
		return nil, err
	}
	if workRoot == "" {
		workRoot = workRootFor(s)
	}
	statePath, err := renderString(fs.Flow.State.Path, envOnly, allowed)
	if err != nil {
		return nil, err
	}

	stateRoot := s.StateRoot
	if stateRoot == "" {
		stateRoot = workRoot
	}
	store, err := state.Open(flow.StateConfig{Backend: fs.Flow.State.Backend, Path: statePath}, stateRoot)
	if err != nil {
		return nil, err
	}

	resources, warn, err := materializeResources(fs.Resources, sealed, s, secretsModule)
	if err != nil {
		store.Close()
		return nil, err
	}
	if warn != "" {
		r.logger().Warn(warn)
	}

	runID := opts.RunID
	if runID == "" {
		runID = runctx.NewRunID()
	}

	rc := &runctx.RunContext{
		Settings:  s,
		FlowID:    fs.Flow.ID,
		RunID:     runID,
		WorkRoot:  workRoot,
		Layout:    runctx.LayoutFrom(fs.Flow.Workspace.Layout),
		State:     store,
		Resources: resources,
		Env:       sealed,
		Logger:    r.logger().With(slog.String("flow_id", fs.Flow.ID), slog.String("run_id", runID)),
	}
	rc.Connectors = connector.NewManager(r.Connectors, s, resources)
	return rc, nil
}

func (r *Runner) registeredStepTypes() map[string]bool {
	if r.Steps == nil {
		return nil
	}
	return r.Steps.Types()
}

func workRootFor(s *settings.Settings) string {
	if s.WorkRoot != "" {
		return s.WorkRoot
	}
	return filepath.Join(".", ".aetherflow")
}

func zipDrivers(m *flow.BundleManifest) []string {
	if m == nil {
		return nil
	}
	return m.ZipDrivers
}

func envRoot(sealed map[string]string) map[string]any {
	out := make(map[string]any, len(sealed))
	for k, v := range sealed {
		out[k] = v
	}
	return out
}

func renderString(s string, env resolver.Environment, allowed resolver.AllowedRoots) (string, error) {
	if s == "" {
		return "", nil
	}
	v, err := resolver.Render(s, env, allowed)
	if err != nil {
		return "", err
	}
	out, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), nil
	}
	return out, nil
}

// parseEnvFilesJSON decodes AETHERFLOW_ENV_FILES_JSON: a JSON array of
// {type, path, optional, prefix} objects (spec §6 "Env files").
func parseEnvFilesJSON(raw string) ([]flow.EnvFileSpec, error) {
	var entries []struct {
		Type     string `json:"type"`
		Path     string `json:"path"`
		Optional bool   `json:"optional"`
		Prefix   string `json:"prefix"`
	}
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &aetherrors.SpecError{
			Loc:     "AETHERFLOW_ENV_FILES_JSON",
			Code:    "invalid_env_files_json",
			Message: err.Error(),
		}
	}
	out := make([]flow.EnvFileSpec, len(entries))
	for i, e := range entries {
		out[i] = flow.EnvFileSpec{
			Type:     flow.EnvFileKind(e.Type),
			Path:     e.Path,
			Optional: e.Optional,
			Prefix:   e.Prefix,
		}
	}
	return out, nil
}
