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
	"fmt"
	"os"

	"github.com/aetherflow/aetherflow/internal/secrets"
	"github.com/aetherflow/aetherflow/internal/settings"
	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// loadProfiles reads the profiles document from whichever source the
// settings name (spec §6 "Profiles YAML"). Both unset returns an empty
// document; both set was already rejected by Settings.Validate.
func loadProfiles(s *settings.Settings) (flow.ProfilesDocument, error) {
	switch {
	case s.ProfilesFile != "":
		raw, err := os.ReadFile(s.ProfilesFile)
		if err != nil {
			return nil, fmt.Errorf("runner: read profiles: %w", err)
		}
		return flow.DecodeProfilesDocument(raw)
	case s.ProfilesJSON != "":
		return flow.DecodeProfilesDocument([]byte(s.ProfilesJSON))
	default:
		return flow.ProfilesDocument{}, nil
	}
}

// materializeResources renders every resource against the sealed
// snapshot and applies the decode pipeline (spec §4.3 "Resource
// materialization", §4.1 "Decode pipeline"). The returned warning is
// non-empty when decode targets exist but no secrets module is
// configured.
func materializeResources(specs map[string]flow.ResourceSpec, sealed map[string]string, s *settings.Settings, module secrets.Module) (map[string]flow.ResourceSpec, string, error) {
	profiles, err := loadProfiles(s)
	if err != nil {
		return nil, "", err
	}

	env := resolver.NewEnvironment(map[string]any{"env": envRoot(sealed)})
	allowed := resolver.NewAllowedRoots("env")

	out := make(map[string]flow.ResourceSpec, len(specs))
	warning := ""
	for name, res := range specs {
		if res.Profile != "" {
			profile, ok := profiles[res.Profile]
			if !ok {
				return nil, "", &aetherrors.SpecError{
					Loc:     "resources." + name + ".profile",
					Code:    "unknown_profile",
					Message: fmt.Sprintf("profile %q is not defined", res.Profile),
				}
			}
			res = flow.MergeProfile(&profile, res)
		}

		targets := append(
			resolver.NormalizeDecodeSpec("config", res.Decode.Config, res.Decode.ConfigPaths),
			resolver.NormalizeDecodeSpec("options", res.Decode.Options, res.Decode.OptionsPaths)...,
		)

		// The raw pre-render standalone-token rule (spec §4.1 decode
		// pipeline step a) holds at runtime as well as validation.
		for _, t := range targets {
			section := res.Config
			if t.Section == "options" {
				section = res.Options
			}
			rawVal, ok := resolver.GetPath(section, t.Path)
			if !ok {
				continue
			}
			rawStr, ok := rawVal.(string)
			if !ok || !resolver.ContainsTemplate(rawStr) {
				continue
			}
			standalone, err := resolver.IsStandaloneToken(rawStr)
			if err != nil {
				return nil, "", err
			}
			if !standalone {
				return nil, "", &aetherrors.ResolverSyntaxError{
					Loc:     fmt.Sprintf("resources.%s.%s.%s", name, t.Section, t.Path),
					Snippet: rawStr,
				}
			}
		}

		cfg, err := resolver.RenderStringMap(res.Config, env, allowed)
		if err != nil {
			return nil, "", fmt.Errorf("runner: render resource %s config: %w", name, err)
		}
		opts, err := resolver.RenderStringMap(res.Options, env, allowed)
		if err != nil {
			return nil, "", fmt.Errorf("runner: render resource %s options: %w", name, err)
		}
		res.Config = cfg
		res.Options = opts

		var dec resolver.Decoder
		if module != nil {
			dec = module
		}
		missingDecoder, err := resolver.ApplyDecode(map[string]map[string]any{
			"config":  res.Config,
			"options": res.Options,
		}, targets, dec)
		if err != nil {
			return nil, "", fmt.Errorf("runner: decode resource %s: %w", name, err)
		}
		if missingDecoder {
			warning = fmt.Sprintf("resource %s declares decode targets but no secrets module exports decode; values left as rendered", name)
		}

		out[name] = res
	}
	return out, warning, nil
}
