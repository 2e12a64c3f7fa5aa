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

package flow

// MergeProfile combines a ProfileSpec's defaults with a ResourceSpec's
// own config/options via deep merge (resource wins on conflict) and
// unions the two decode specs path-wise (spec §3 "ProfileSpec").
func MergeProfile(profile *ProfileSpec, res ResourceSpec) ResourceSpec {
	if profile == nil {
		return res
	}

	merged := res
	merged.Config = deepMerge(profile.Config, res.Config)
	merged.Options = deepMerge(profile.Options, res.Options)
	merged.Decode = unionDecode(profile.Decode, res.Decode)
	return merged
}

// deepMerge merges override onto base; override wins on scalar and type
// conflicts, nested maps are merged recursively.
func deepMerge(base, override map[string]any) map[string]any {
	if base == nil && override == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, ov := range override {
		bv, exists := out[k]
		if !exists {
			out[k] = ov
			continue
		}
		bm, bok := bv.(map[string]any)
		om, ook := ov.(map[string]any)
		if bok && ook {
			out[k] = deepMerge(bm, om)
			continue
		}
		out[k] = ov
	}
	return out
}

func unionDecode(base, override DecodeSpec) DecodeSpec {
	return DecodeSpec{
		Config:       deepMerge(base.Config, override.Config),
		Options:      deepMerge(base.Options, override.Options),
		ConfigPaths:  unionStrings(base.ConfigPaths, override.ConfigPaths),
		OptionsPaths: unionStrings(base.OptionsPaths, override.OptionsPaths),
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
