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

package runctx

import (
	"fmt"
	"strings"

	"github.com/aetherflow/aetherflow/internal/envfile"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// SealInputs are the ingredients for the once-per-run environment
// snapshot (spec §4.3 "Environment snapshot").
type SealInputs struct {
	// Ambient is the starting process environment (or a snapshot of it).
	Ambient map[string]string

	// EnvFiles are the manifest-declared overlays, applied in order.
	EnvFiles []flow.EnvFileSpec

	// BundleInjected carries the bundle-sync keys (AETHERFLOW_LOCAL_ROOT_DIR,
	// AETHERFLOW_ACTIVE_DIR, AETHERFLOW_CACHE_DIR, AETHERFLOW_PROFILES_FILE,
	// AETHERFLOW_PLUGIN_PATHS, AETHERFLOW_MODE, AETHERFLOW_MODE_ENTERPRISE).
	BundleInjected map[string]string

	// Enterprise, when true, drops any ambient AETHERFLOW_PLUGIN_PATHS and
	// substitutes TrustedPluginPaths instead (spec §4.3 "In enterprise
	// mode, AETHERFLOW_PLUGIN_PATHS from ambient env is dropped; only
	// manifest-declared trusted plugin paths are accepted").
	Enterprise bool

	// TrustedPluginPaths are the manifest-declared plugin search paths
	// accepted in enterprise mode.
	TrustedPluginPaths []string

	// Expander, if non-nil, is the secrets module's optional expand_env
	// hook (spec §4.1 "Secrets module contract"), applied last.
	Expander resolver.EnvExpander
}

// Seal builds the immutable per-run environment snapshot: ambient env,
// overlaid with env_files in order, overlaid with bundle-sync-injected
// keys, adjusted for enterprise plugin-path trust, and finally passed
// through the secrets module's expand_env if one is configured. The
// returned map is a fresh copy; callers must not mutate Ambient after
// calling Seal and expect it to stay isolated from the result.
func Seal(in SealInputs) (map[string]string, error) {
	out := make(map[string]string, len(in.Ambient))
	for k, v := range in.Ambient {
		out[k] = v
	}

	for _, spec := range in.EnvFiles {
		kv, err := envfile.Load(spec)
		if err != nil {
			return nil, fmt.Errorf("runctx: load env file %s: %w", spec.Path, err)
		}
		for k, v := range kv {
			out[k] = v
		}
	}

	for k, v := range in.BundleInjected {
		out[k] = v
	}

	if in.Enterprise {
		delete(out, "AETHERFLOW_PLUGIN_PATHS")
		if len(in.TrustedPluginPaths) > 0 {
			out["AETHERFLOW_PLUGIN_PATHS"] = strings.Join(in.TrustedPluginPaths, ",")
		}
	}

	if in.Expander != nil {
		expanded, err := in.Expander.ExpandEnv(out)
		if err != nil {
			return nil, fmt.Errorf("runctx: expand_env: %w", err)
		}
		out = expanded
	}

	return out, nil
}
