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

// Package runctx implements RunContext (spec §3 "RunContext"): the
// per-run bundle of sealed environment, materialized resources, job
// directory derivation, and the sandboxed path policy the step engine
// resolves every user-supplied path through.
package runctx

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/state"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// ConnectorCloser is the subset of internal/connector.Manager that
// RunContext needs to release run-scoped connectors in its Close. Kept
// as a narrow interface here (rather than importing internal/connector
// directly) so pkg/runctx has no dependency on the connector registry.
type ConnectorCloser interface {
	CloseAll() error
}

// Layout names the three required job-directory children (spec §3
// "FlowMeta" workspace.layout, RequiredLayoutKeys).
type Layout struct {
	Artifacts string
	Scratch   string
	Manifests string
}

// LayoutFrom builds a Layout from FlowMeta.Workspace.Layout, applying
// the documented key names when absent (the schema stage already
// requires all three keys to be present; this is a defensive default
// for callers that build a RunContext without going through validation).
func LayoutFrom(m map[string]string) Layout {
	l := Layout{Artifacts: "artifacts", Scratch: "scratch", Manifests: "manifests"}
	if v, ok := m["artifacts"]; ok && v != "" {
		l.Artifacts = v
	}
	if v, ok := m["scratch"]; ok && v != "" {
		l.Scratch = v
	}
	if v, ok := m["manifests"]; ok && v != "" {
		l.Manifests = v
	}
	return l
}

// JobDirs are the derived directories for one (flow_id, job_id, run_id)
// triple (spec §3 "Derived directories").
type JobDirs struct {
	Root      string
	Artifacts string
	Scratch   string
	Manifests string
}

// DeriveJobDir computes job_dir = work_root/flow_id/job_id/run_id and
// its three children.
func DeriveJobDir(workRoot, flowID, jobID, runID string, layout Layout) JobDirs {
	root := filepath.Join(workRoot, flowID, jobID, runID)
	return JobDirs{
		Root:      root,
		Artifacts: filepath.Join(root, layout.Artifacts),
		Scratch:   filepath.Join(root, layout.Scratch),
		Manifests: filepath.Join(root, layout.Manifests),
	}
}

// NewRunID returns a 12-hex-character run identifier (spec §3
// "run_id (12-hex)"), derived from a random UUIDv4 with dashes removed.
func NewRunID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:12]
}

// RunContext is the per-run bundle threaded through resource
// materialization, job gating, and step execution (spec §3 "RunContext").
type RunContext struct {
	Settings  *settings.Settings
	FlowID    string
	RunID     string
	WorkRoot  string
	Layout    Layout
	State     state.Store
	Resources map[string]flow.ResourceSpec
	Env       map[string]string
	Connectors ConnectorCloser
	Logger    *slog.Logger
}

// JobDir returns the derived directories for jobID within this run.
func (rc *RunContext) JobDir(jobID string) JobDirs {
	return DeriveJobDir(rc.WorkRoot, rc.FlowID, jobID, rc.RunID, rc.Layout)
}

// Close releases the connectors manager and state store in that order,
// matching spec §4.3 "Connector manager is closed in a finally branch to
// release run-scoped resources." Both releases are best-effort; the
// first error encountered is returned after both have been attempted.
func (rc *RunContext) Close() error {
	var firstErr error
	if rc.Connectors != nil {
		if err := rc.Connectors.CloseAll(); err != nil {
			firstErr = err
		}
	}
	if rc.State != nil {
		if err := rc.State.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
