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
	"errors"
	"fmt"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

var (
	resourcePhaseRoots = resolver.NewAllowedRoots("env")
	stepPhaseRoots     = resolver.NewAllowedRoots("env", "steps", "job", "jobs", "run_id", "flow_id", "result")
)

// templateScanStage runs stage 3 (spec §4.2): every runtime-templated
// field is scanned with the resolver in the phase's allowed-root set.
// Syntax errors and unknown template roots are always fatal. Missing env
// keys are warnings unless AETHERFLOW_VALIDATE_ENV_STRICT is set.
func templateScanStage(fs *flow.FlowSpec, opts Options, r *Report) {
	envStrict := opts.Settings != nil && opts.Settings.ValidateEnvStrict
	env := resolver.NewEnvironment(map[string]any{"env": opts.EnvRoot})

	for name, res := range fs.Resources {
		loc := fmt.Sprintf("resources.%s", name)
		scanValue(res.Config, loc+".config", env, resourcePhaseRoots, envStrict, r)
		scanValue(res.Options, loc+".options", env, resourcePhaseRoots, envStrict, r)
	}

	scanString(fs.Flow.Workspace.Root, "flow.workspace.root", env, resourcePhaseRoots, envStrict, r)

	for i, job := range fs.Jobs {
		for j, step := range job.Steps {
			loc := fmt.Sprintf("jobs[%d].steps[%d]", i, j)
			scanValue(step.Inputs, loc+".inputs", env, stepPhaseRoots, envStrict, r)
			scanValue(step.Outputs, loc+".outputs", env, stepPhaseRoots, envStrict, r)
		}
	}
}

// scanValue recursively walks a decoded YAML value (map/slice/scalar),
// running the resolver against every string leaf.
func scanValue(v any, loc string, env resolver.Environment, allowed resolver.AllowedRoots, envStrict bool, r *Report) {
	switch x := v.(type) {
	case map[string]any:
		for k, vv := range x {
			scanValue(vv, loc+"."+k, env, allowed, envStrict, r)
		}
	case []any:
		for i, vv := range x {
			scanValue(vv, fmt.Sprintf("%s[%d]", loc, i), env, allowed, envStrict, r)
		}
	case string:
		scanString(x, loc, env, allowed, envStrict, r)
	}
}

// scanString classifies the resolver's outcome for one field: a syntax
// error or unknown root is always fatal; a missing key is a warning
// unless env-strict mode is on.
func scanString(s, loc string, env resolver.Environment, allowed resolver.AllowedRoots, envStrict bool, r *Report) {
	if s == "" {
		return
	}

	_, err := resolver.Render(s, env, allowed)
	if err == nil {
		return
	}

	var syntaxErr *aetherrors.ResolverSyntaxError
	var unknownRoot *resolver.ErrUnknownRoot
	var missingKey *aetherrors.ResolverMissingKey

	switch {
	case errors.As(err, &syntaxErr):
		r.addError("resolver_syntax_error", loc, syntaxErr.Error())
	case errors.As(err, &unknownRoot):
		r.addError("unknown_template_root", loc, err.Error())
	case errors.As(err, &missingKey):
		if envStrict {
			r.addError("missing_env_key", loc, err.Error())
		} else {
			r.addWarning("missing_env_key", loc, err.Error())
		}
	default:
		r.addError("resolver_error", loc, err.Error())
	}
}
