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

package step

import "fmt"

func requireString(inputs map[string]any, key string) (string, error) {
	v, ok := inputs[key]
	if !ok {
		return "", fmt.Errorf("step: missing required input %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("step: input %q must be a non-empty string", key)
	}
	return s, nil
}

func optString(inputs map[string]any, key, def string) string {
	v, ok := inputs[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

func optBool(inputs map[string]any, key string, def bool) bool {
	v, ok := inputs[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func optInt(inputs map[string]any, key string, def int) int {
	v, ok := inputs[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func optStringSlice(inputs map[string]any, key string) ([]string, error) {
	v, ok := inputs[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("step: input %q must be a list", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("step: input %q must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}

func optStringMap(inputs map[string]any, key string) map[string]any {
	v, ok := inputs[key]
	if !ok {
		return nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return m
}
