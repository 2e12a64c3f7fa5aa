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

// Package settings builds the closed AETHERFLOW_* configuration surface
// from an explicit environment snapshot. No component outside this
// package's single constructor reads os.Getenv directly; every other
// package takes a *Settings or a raw env.Snapshot instead.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Mode selects between the fast-path and enterprise validation/runtime
// behaviors described in spec §4.2 and §4.3.
type Mode string

const (
	ModeInternalFast Mode = "internal_fast"
	ModeEnterprise   Mode = "enterprise"
)

// ConnectorCachePolicy is the default cache scope applied to connectors
// that do not declare their own policy (spec §4.5).
type ConnectorCachePolicy string

const (
	CacheRun     ConnectorCachePolicy = "run"
	CacheProcess ConnectorCachePolicy = "process"
	CacheNone    ConnectorCachePolicy = "none"
)

// supportedKeys is the closed set of AETHERFLOW_* environment variables
// recognized anywhere in this module (spec §6). Settings.Validate rejects
// any AETHERFLOW_* key in the snapshot that is not in this set, the way
// the teacher's supported.go rejects unrecognized provider types.
var supportedKeys = map[string]bool{
	"AETHERFLOW_WORK_ROOT":                true,
	"AETHERFLOW_STATE_ROOT":               true,
	"AETHERFLOW_PLUGIN_PATHS":             true,
	"AETHERFLOW_PLUGIN_STRICT":            true,
	"AETHERFLOW_STRICT_TEMPLATES":         true,
	"AETHERFLOW_LOG_LEVEL":                true,
	"AETHERFLOW_LOG_FORMAT":               true,
	"AETHERFLOW_METRICS_MODULE":           true,
	"AETHERFLOW_CONNECTOR_CACHE_DEFAULT":  true,
	"AETHERFLOW_CONNECTOR_CACHE_DISABLED": true,
	"AETHERFLOW_SECRETS_MODULE":           true,
	"AETHERFLOW_SECRETS_PATH":             true,
	"AETHERFLOW_MODE":                     true,
	"AETHERFLOW_MODE_ENTERPRISE":          true,
	"AETHERFLOW_STRICT_SANDBOX":           true,
	"AETHERFLOW_VALIDATE_ENV_STRICT":      true,
	"AETHERFLOW_PROFILES_FILE":            true,
	"AETHERFLOW_PROFILES_JSON":            true,
	"AETHERFLOW_ENV_FILES_JSON":           true,
	// Runtime-injected by bundle sync; recognized but never read from
	// ambient env by this package (the run executor overlays these onto
	// the sealed per-run snapshot itself, per spec §4.3).
	"AETHERFLOW_LOCAL_ROOT_DIR": true,
	"AETHERFLOW_ACTIVE_DIR":     true,
	"AETHERFLOW_CACHE_DIR":      true,
}

// Snapshot is an immutable copy of the process environment (or a subset
// of it), taken once per run. Every component that needs configuration
// takes a Snapshot or a *Settings derived from one, never os.Getenv.
type Snapshot map[string]string

// SnapshotFromEnviron copies the current process environment into a
// Snapshot. This is the only place in the module permitted to call
// os.Environ; every other call site receives the resulting map.
func SnapshotFromEnviron() Snapshot {
	env := os.Environ()
	snap := make(Snapshot, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			snap[kv[:i]] = kv[i+1:]
		}
	}
	return snap
}

// Settings is the parsed, typed view over a Snapshot's AETHERFLOW_* keys.
type Settings struct {
	WorkRoot               string
	StateRoot              string
	PluginPaths            []string
	PluginStrict           bool
	StrictTemplates        bool
	LogLevel               string
	LogFormat              string
	MetricsModule          string
	ConnectorCacheDefault  ConnectorCachePolicy
	ConnectorCacheDisabled bool
	SecretsModule          string
	SecretsPath            string
	Mode                   Mode
	ModeEnterprise         bool
	StrictSandbox          bool
	ValidateEnvStrict      bool
	ProfilesFile           string
	ProfilesJSON           string
	EnvFilesJSON           string
}

// FromSnapshot builds Settings from a Snapshot, applying the documented
// defaults for every unset key.
func FromSnapshot(snap Snapshot) *Settings {
	s := &Settings{
		LogLevel:              "info",
		LogFormat:             "json",
		ConnectorCacheDefault: CacheRun,
		Mode:                  ModeInternalFast,
	}

	if v := snap["AETHERFLOW_WORK_ROOT"]; v != "" {
		s.WorkRoot = v
	}
	if v := snap["AETHERFLOW_STATE_ROOT"]; v != "" {
		s.StateRoot = v
	}
	if v := snap["AETHERFLOW_PLUGIN_PATHS"]; v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				s.PluginPaths = append(s.PluginPaths, p)
			}
		}
	}
	s.PluginStrict = boolEnv(snap, "AETHERFLOW_PLUGIN_STRICT", false)
	s.StrictTemplates = boolEnv(snap, "AETHERFLOW_STRICT_TEMPLATES", false)
	if v := snap["AETHERFLOW_LOG_LEVEL"]; v != "" {
		s.LogLevel = strings.ToLower(v)
	}
	if v := snap["AETHERFLOW_LOG_FORMAT"]; v != "" {
		s.LogFormat = strings.ToLower(v)
	}
	if v := snap["AETHERFLOW_METRICS_MODULE"]; v != "" {
		s.MetricsModule = v
	}
	if v := snap["AETHERFLOW_CONNECTOR_CACHE_DEFAULT"]; v != "" {
		s.ConnectorCacheDefault = ConnectorCachePolicy(strings.ToLower(v))
	}
	s.ConnectorCacheDisabled = boolEnv(snap, "AETHERFLOW_CONNECTOR_CACHE_DISABLED", false)
	if v := snap["AETHERFLOW_SECRETS_MODULE"]; v != "" {
		s.SecretsModule = v
	}
	if v := snap["AETHERFLOW_SECRETS_PATH"]; v != "" {
		s.SecretsPath = v
	}
	if v := snap["AETHERFLOW_MODE"]; v != "" {
		s.Mode = Mode(strings.ToLower(v))
	}
	s.ModeEnterprise = boolEnv(snap, "AETHERFLOW_MODE_ENTERPRISE", false)
	if s.ModeEnterprise {
		s.Mode = ModeEnterprise
	}
	s.StrictSandbox = boolEnv(snap, "AETHERFLOW_STRICT_SANDBOX", false)
	s.ValidateEnvStrict = boolEnv(snap, "AETHERFLOW_VALIDATE_ENV_STRICT", false)
	if v := snap["AETHERFLOW_PROFILES_FILE"]; v != "" {
		s.ProfilesFile = v
	}
	if v := snap["AETHERFLOW_PROFILES_JSON"]; v != "" {
		s.ProfilesJSON = v
	}
	if v := snap["AETHERFLOW_ENV_FILES_JSON"]; v != "" {
		s.EnvFilesJSON = v
	}

	return s
}

// Validate rejects snapshots carrying unrecognized AETHERFLOW_* keys and
// mutually-exclusive profile sources, per spec §4.6 ("Exactly one may be
// set").
func (s *Settings) Validate(snap Snapshot) error {
	for k := range snap {
		if strings.HasPrefix(k, "AETHERFLOW_") && !supportedKeys[k] {
			return &aetherrors.SpecError{
				Loc:     k,
				Code:    "unknown_env_key",
				Message: fmt.Sprintf("unrecognized environment variable %q", k),
			}
		}
	}
	if s.ProfilesFile != "" && s.ProfilesJSON != "" {
		return &aetherrors.SpecError{
			Loc:     "AETHERFLOW_PROFILES_FILE/AETHERFLOW_PROFILES_JSON",
			Code:    "conflicting_profile_source",
			Message: "exactly one of AETHERFLOW_PROFILES_FILE or AETHERFLOW_PROFILES_JSON may be set",
		}
	}
	return nil
}

// IsEnterprise reports whether enterprise-mode validation and runtime
// rules (spec §4.2, §4.3) are active.
func (s *Settings) IsEnterprise() bool {
	return s.Mode == ModeEnterprise
}

func boolEnv(snap Snapshot, key string, def bool) bool {
	v, ok := snap[key]
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
