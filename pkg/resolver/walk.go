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

package resolver

// RenderAny renders every string reachable inside v — atoms, lists, and
// nested mappings — against env, preserving non-string values as-is.
// Standalone tokens keep their native type per the typed-passthrough
// rule, which is what lets step inputs carry numbers and mappings
// through templates (spec §4.1 "Typed vs inline rendering").
func RenderAny(v any, env Environment, allowed AllowedRoots) (any, error) {
	switch x := v.(type) {
	case string:
		return Render(x, env, allowed)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, child := range x {
			r, err := RenderAny(child, env, allowed)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, child := range x {
			r, err := RenderAny(child, env, allowed)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// RenderStringMap renders a map[string]any subtree, returning the same
// shape. A nil input stays nil.
func RenderStringMap(m map[string]any, env Environment, allowed AllowedRoots) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	out, err := RenderAny(m, env, allowed)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}
