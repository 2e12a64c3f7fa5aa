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

// Package resolver implements the template grammar from spec §4.1: a
// small, explicit substitution language, not text/template. A valid token
// is exactly `{{ PATH }}` or `{{ PATH : DEFAULT }}`; nesting, pipelines,
// and actions are rejected outright rather than silently ignored.
package resolver

import (
	"strings"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Environment is a read-only dotted-path lookup over a fixed set of
// named roots. Each root is a map[string]any subtree; traversal walks
// nested maps segment by segment. An empty string value is treated as
// missing, matching spec §4.1 "Lookup".
type Environment struct {
	roots map[string]any
}

// NewEnvironment builds an Environment from named root values. Typical
// roots are "env", "steps", "job", "jobs", "run_id", "flow_id", "result".
func NewEnvironment(roots map[string]any) Environment {
	if roots == nil {
		roots = map[string]any{}
	}
	return Environment{roots: roots}
}

// AllowedRoots restricts an Environment to a whitelist, matching the
// phase tables in spec §4.1. Looking up any other root name fails with
// UnknownRoot.
type AllowedRoots map[string]bool

// NewAllowedRoots builds an AllowedRoots set from root names.
func NewAllowedRoots(names ...string) AllowedRoots {
	a := make(AllowedRoots, len(names))
	for _, n := range names {
		a[n] = true
	}
	return a
}

// ErrUnknownRoot is returned by lookup when a path's first segment is not
// in the allowed root set for the current phase.
type ErrUnknownRoot struct {
	Root string
}

func (e *ErrUnknownRoot) Error() string {
	return "unknown template root: " + e.Root
}

// lookup resolves a dotted PATH against env, restricted to allowed. The
// returned bool is false when the path is missing or resolves to "".
func lookup(env Environment, allowed AllowedRoots, path string) (any, bool, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || segs[0] == "" {
		return nil, false, nil
	}
	if allowed != nil && !allowed[segs[0]] {
		return nil, false, &ErrUnknownRoot{Root: segs[0]}
	}

	cur, ok := env.roots[segs[0]]
	if !ok {
		return nil, false, nil
	}

	for _, seg := range segs[1:] {
		m, ok := asMap(cur)
		if !ok {
			return nil, false, nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false, nil
		}
	}

	if s, isStr := cur.(string); isStr && s == "" {
		return nil, false, nil
	}
	return cur, true, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	default:
		return nil, false
	}
}

// Render substitutes every template token in s against env, restricted
// to allowed roots. A string consisting of exactly one standalone token
// (surrounded only by whitespace) returns the looked-up value with its
// native type preserved; any other string — mixed text, multiple tokens,
// or no tokens at all — is returned as a (possibly unmodified) string.
func Render(s string, env Environment, allowed AllowedRoots) (any, error) {
	toks, err := scan(s)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return s, nil
	}

	if len(toks) == 1 && strings.TrimSpace(s) == s[toks[0].start:toks[0].end] {
		return renderStandalone(toks[0], env, allowed)
	}

	var b strings.Builder
	last := 0
	for _, t := range toks {
		b.WriteString(s[last:t.start])
		if _, _, err := lookup(env, allowed, t.path); err != nil {
			return nil, err
		}
		resolved, ok := resolveToken(t, env, allowed)
		if !ok {
			return nil, &aetherrors.ResolverMissingKey{Path: t.path}
		}
		b.WriteString(stringify(resolved))
		last = t.end
	}
	b.WriteString(s[last:])
	return b.String(), nil
}

func renderStandalone(t token, env Environment, allowed AllowedRoots) (any, error) {
	if _, _, err := lookup(env, allowed, t.path); err != nil {
		return nil, err
	}
	val, ok := resolveToken(t, env, allowed)
	if !ok {
		return nil, &aetherrors.ResolverMissingKey{Path: t.path}
	}
	return val, nil
}

// resolveToken looks up a token's path, falling back to its default (if
// any) when missing. The bool return is false only when the key is
// missing and no default was supplied — the caller turns that into a
// ResolverMissingKey.
func resolveToken(t token, env Environment, allowed AllowedRoots) (any, bool) {
	val, ok, err := lookup(env, allowed, t.path)
	if err != nil {
		// Unknown root: treated as missing here. Render and
		// renderStandalone call lookup first and return ErrUnknownRoot
		// before reaching this point, so an unknown root fails even when
		// the token has a default.
		if t.hasDefault {
			return t.def, true
		}
		return nil, false
	}
	if ok {
		return val, true
	}
	if t.hasDefault {
		return t.def, true
	}
	return nil, false
}

// LookupErr exposes the raw lookup error (notably ErrUnknownRoot) for
// callers — the validator's template-scan stage — that must distinguish
// "unknown root" (always fatal) from "missing key" (warning unless
// strict).
func LookupErr(s string, env Environment, allowed AllowedRoots) error {
	toks, err := scan(s)
	if err != nil {
		return err
	}
	for _, t := range toks {
		if _, _, err := lookup(env, allowed, t.path); err != nil {
			return err
		}
	}
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return toDisplayString(x)
	}
}
