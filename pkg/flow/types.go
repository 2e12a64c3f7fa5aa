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

// Package flow holds the declarative data model: FlowSpec and everything
// it references (spec §3). Types carry yaml tags for gopkg.in/yaml.v3;
// strict-extra decoding lives in decode.go.
package flow

// CleanupPolicy controls whether a job's directory is removed after a run.
type CleanupPolicy string

const (
	CleanupOnSuccess CleanupPolicy = "on_success"
	CleanupAlways    CleanupPolicy = "always"
	CleanupNever     CleanupPolicy = "never"
)

// LockScope controls the granularity TTL locks are acquired at.
type LockScope string

const (
	LockScopeNone LockScope = "none"
	LockScopeJob  LockScope = "job"
	LockScopeFlow LockScope = "flow"
)

// StateBackend selects the persistent state store implementation.
type StateBackend string

const (
	StateBackendSQLite StateBackend = "sqlite"
	StateBackendFile   StateBackend = "file"
)

// OnNoData is the step-level short-circuit policy (spec §4.3 step 8).
type OnNoData string

const (
	OnNoDataSkipJob OnNoData = "skip_job"
)

// FlowSpec is the top-level flow document (spec §3 "FlowSpec").
type FlowSpec struct {
	Version   int                     `yaml:"version"`
	Flow      FlowMeta                `yaml:"flow"`
	Resources map[string]ResourceSpec `yaml:"resources"`
	Jobs      []JobSpec               `yaml:"jobs"`
}

// FlowMeta is the flow-level metadata subtree (spec §3 "FlowMeta").
// Workspace.Root may itself reference `{{env.X}}`.
type FlowMeta struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description,omitempty"`
	Workspace   WorkspaceConfig `yaml:"workspace"`
	State       StateConfig     `yaml:"state"`
	Locks       LocksConfig     `yaml:"locks"`
}

// WorkspaceConfig describes where a run's directories live and how they
// are cleaned up.
type WorkspaceConfig struct {
	Root          string            `yaml:"root"`
	CleanupPolicy CleanupPolicy     `yaml:"cleanup_policy"`
	Layout        map[string]string `yaml:"layout"`
}

// RequiredLayoutKeys are always present in WorkspaceConfig.Layout; the
// schema stage (spec §4.2 stage 1) rejects a manifest missing any of
// these.
var RequiredLayoutKeys = []string{"artifacts", "scratch", "manifests"}

// StateConfig selects and locates the persistent state store.
type StateConfig struct {
	Backend StateBackend `yaml:"backend"`
	Path    string       `yaml:"path"`
}

// LocksConfig configures the TTL lock granularity used by the `with_lock`
// meta-step and job/flow-scoped run serialization.
type LocksConfig struct {
	Scope      LockScope `yaml:"scope"`
	TTLSeconds int       `yaml:"ttl_seconds"`
}

// ResourceSpec declares one named external dependency: a database, SFTP
// endpoint, mail server, or archive driver (spec §3 "ResourceSpec").
// Unknown top-level keys are rejected at load time (decode.go).
type ResourceSpec struct {
	Kind    string         `yaml:"kind"`
	Driver  string         `yaml:"driver"`
	Profile string         `yaml:"profile,omitempty"`
	Config  map[string]any `yaml:"config"`
	Options map[string]any `yaml:"options"`
	Decode  DecodeSpec     `yaml:"decode"`
}

// DecodeSpec carries either shape described in spec §3 "DecodeSpec":
// a nested boolean tree, or explicit `*_paths` lists. Both are
// normalized to a flat set of (section, path) targets by
// pkg/resolver.NormalizeDecodeSpec.
type DecodeSpec struct {
	Config       map[string]any `yaml:"config,omitempty"`
	Options      map[string]any `yaml:"options,omitempty"`
	ConfigPaths  []string       `yaml:"config_paths,omitempty"`
	OptionsPaths []string       `yaml:"options_paths,omitempty"`
}

// JobSpec is one ordered unit of work within a flow (spec §3 "JobSpec").
type JobSpec struct {
	ID          string     `yaml:"id"`
	Description string     `yaml:"description,omitempty"`
	DependsOn   []string   `yaml:"depends_on,omitempty"`
	When        string     `yaml:"when,omitempty"`
	Steps       []StepSpec `yaml:"steps"`
}

// LockSpec wraps a step with a TTL lock (spec §9 with_lock resolution,
// see DESIGN.md "Open Question resolutions"). It is applied by the
// executor around an already-rendered, already-validated inner step.
type LockSpec struct {
	Key        string `yaml:"key"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// StepSpec is one unit operation within a job (spec §3 "StepSpec").
type StepSpec struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	Inputs   map[string]any `yaml:"inputs"`
	Outputs  map[string]any `yaml:"outputs,omitempty"`
	OnNoData OnNoData       `yaml:"on_no_data,omitempty"`
	Lock     *LockSpec      `yaml:"with_lock,omitempty"`
}

// ProfileSpec supplies config/options defaults merged under a resource's
// own config/options (spec §3 "ProfileSpec"). Resource values win on
// conflict; decode specs are unioned path-wise.
type ProfileSpec struct {
	Config  map[string]any `yaml:"config,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`
	Decode  DecodeSpec     `yaml:"decode,omitempty"`
}

// ProfilesDocument is the `name -> ProfileSpec` mapping loaded from
// AETHERFLOW_PROFILES_FILE or AETHERFLOW_PROFILES_JSON (spec §4.6).
type ProfilesDocument map[string]ProfileSpec

// RunStatus is the closed set of statuses a job or step run can hold
// (spec §3 "State store").
type RunStatus string

const (
	StatusPending RunStatus = "PENDING"
	StatusRunning RunStatus = "RUNNING"
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailed  RunStatus = "FAILED"
	StatusBlocked RunStatus = "BLOCKED"
	StatusSkipped RunStatus = "SKIPPED"
)
