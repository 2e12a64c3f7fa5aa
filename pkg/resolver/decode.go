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

// DecodeTarget is one (section, path) pair produced by normalizing a
// ResourceSpec's DecodeSpec (spec §4.1 "Decode pipeline"). Section is
// "config" or "options"; Path is the dotted path within that section.
type DecodeTarget struct {
	Section string
	Path    string
}

// Decoder is the secrets module contract (spec §4.1 "Secrets module
// contract"): exactly one required callable, decode, plus one optional
// env-expansion callable. A Go-side secrets module implements this
// interface directly; a dynamically loaded one is adapted to it by the
// plugin loader.
type Decoder interface {
	Decode(s string) (string, error)
}

// EnvExpander is the optional second half of the secrets module
// contract. ExpandEnv must return a new map; it must never mutate env.
type EnvExpander interface {
	ExpandEnv(env map[string]string) (map[string]string, error)
}

// ApplyDecode runs the decode stage over a resource's already-rendered
// config/options sections: for every target whose rendered value is a
// string, invoke dec.Decode on it in place. If dec is nil (no secrets
// module configured) rendered values are left unchanged, matching the
// "non-fatal, leave unchanged" rule for a missing decode hook.
func ApplyDecode(rendered map[string]map[string]any, targets []DecodeTarget, dec Decoder) (bool, error) {
	if dec == nil {
		return len(targets) > 0, nil
	}
	for _, t := range targets {
		section, ok := rendered[t.Section]
		if !ok {
			continue
		}
		v, ok := getPath(section, t.Path)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		decoded, err := dec.Decode(s)
		if err != nil {
			return false, err
		}
		setPath(section, t.Path, decoded)
	}
	return false, nil
}

// GetPath exposes dotted-path lookup into a decoded config/options map
// for callers outside this package (the validator's decode-concat scan).
func GetPath(m map[string]any, path string) (any, bool) {
	return getPath(m, path)
}

func getPath(m map[string]any, path string) (any, bool) {
	segs := splitDots(path)
	var cur any = m
	for _, seg := range segs {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(m map[string]any, path string, val any) {
	segs := splitDots(path)
	cur := m
	for i, seg := range segs {
		if i == len(segs)-1 {
			cur[seg] = val
			return
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
}

func splitDots(path string) []string {
	var segs []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			segs = append(segs, path[start:i])
			start = i + 1
		}
	}
	segs = append(segs, path[start:])
	return segs
}

// NormalizeDecodeSpec flattens the DecodeSpec boolean-tree and *_paths
// list shapes (spec §3 DecodeSpec) into a flat []DecodeTarget. tree is
// the boolean-tree form (nested map[string]any where leaves are `true`);
// extraPaths are explicit dotted paths from a `*_paths` list field.
func NormalizeDecodeSpec(section string, tree map[string]any, extraPaths []string) []DecodeTarget {
	var targets []DecodeTarget
	var walk func(prefix string, node any)
	walk = func(prefix string, node any) {
		switch v := node.(type) {
		case bool:
			if v {
				targets = append(targets, DecodeTarget{Section: section, Path: prefix})
			}
		case map[string]any:
			for k, child := range v {
				next := k
				if prefix != "" {
					next = prefix + "." + k
				}
				walk(next, child)
			}
		}
	}
	for k, v := range tree {
		walk(k, v)
	}
	for _, p := range extraPaths {
		targets = append(targets, DecodeTarget{Section: section, Path: p})
	}
	return targets
}
