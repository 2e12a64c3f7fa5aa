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

import (
	"testing"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

func envOnly(vars map[string]any) Environment {
	return NewEnvironment(map[string]any{"env": vars})
}

func TestRender_StandaloneTokenPreservesType(t *testing.T) {
	env := envOnly(map[string]any{"COUNT": 42})
	allowed := NewAllowedRoots("env")

	got, err := Render("{{env.COUNT}}", env, allowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected typed passthrough 42, got %#v", got)
	}
}

func TestRender_MixedStringCoerces(t *testing.T) {
	env := envOnly(map[string]any{"COUNT": 42})
	allowed := NewAllowedRoots("env")

	got, err := Render("count={{env.COUNT}}", env, allowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "count=42" {
		t.Errorf("expected %q, got %#v", "count=42", got)
	}
}

func TestRender_DefaultSubstitutesWhenMissing(t *testing.T) {
	env := envOnly(map[string]any{})
	allowed := NewAllowedRoots("env")

	got, err := Render("{{env.MISSING:fallback}}", env, allowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected 'fallback', got %#v", got)
	}
}

func TestRender_EmptyStringTreatedAsMissing(t *testing.T) {
	env := envOnly(map[string]any{"X": ""})
	allowed := NewAllowedRoots("env")

	got, err := Render("{{env.X:d}}", env, allowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "d" {
		t.Errorf("expected default 'd' for empty string value, got %#v", got)
	}
}

func TestRender_MissingNoDefaultFails(t *testing.T) {
	env := envOnly(map[string]any{})
	allowed := NewAllowedRoots("env")

	_, err := Render("{{env.NOPE}}", env, allowed)
	if err == nil {
		t.Fatal("expected ResolverMissingKey error")
	}
	var target *aetherrors.ResolverMissingKey
	if !aetherrors.As(err, &target) {
		t.Errorf("expected ResolverMissingKey, got %T: %v", err, err)
	}
}

func TestRender_UnknownRootFails(t *testing.T) {
	env := envOnly(map[string]any{})
	allowed := NewAllowedRoots("env")

	_, err := Render("{{steps.foo.bar}}", env, allowed)
	if err == nil {
		t.Fatal("expected unknown root error")
	}
}

func TestRender_DottedPathTraversal(t *testing.T) {
	env := NewEnvironment(map[string]any{
		"job": map[string]any{
			"outputs": map[string]any{"rows": 7},
		},
	})
	allowed := NewAllowedRoots("job")

	got, err := Render("{{job.outputs.rows}}", env, allowed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("expected 7, got %#v", got)
	}
}

func TestScan_ForbiddenPatterns(t *testing.T) {
	cases := []string{
		"${env.X}",
		"{% if x %}",
		"{# comment #}",
		"{}",
		"{{env.{{nested}}}}",
		"{{unterminated",
	}
	for _, c := range cases {
		t.Run(c, func(t *testing.T) {
			_, err := scan(c)
			if err == nil {
				t.Fatalf("expected forbidden-syntax error for %q", c)
			}
			var target *aetherrors.ResolverSyntaxError
			if !aetherrors.As(err, &target) {
				t.Errorf("expected ResolverSyntaxError, got %T", err)
			}
			if err.Error()[:len(aetherrors.UnsupportedTemplatingMessage)] != aetherrors.UnsupportedTemplatingMessage {
				t.Errorf("error message must start with the fixed unsupported-syntax message, got %q", err.Error())
			}
		})
	}
}

func TestIsStandaloneToken(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"{{env.X}}", true},
		{"  {{env.X}}  ", true},
		{"{{env.X:d}}", true},
		{"prefix{{env.X}}", false},
		{"{{env.X}}{{env.Y}}", false},
		{"no template here", false},
	}
	for _, tt := range tests {
		got, err := IsStandaloneToken(tt.in)
		if err != nil {
			t.Fatalf("IsStandaloneToken(%q) error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("IsStandaloneToken(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeDecodeSpec_BooleanTree(t *testing.T) {
	tree := map[string]any{
		"dsn": true,
		"auth": map[string]any{
			"password": true,
			"username": false,
		},
	}
	targets := NormalizeDecodeSpec("config", tree, nil)

	want := map[string]bool{"dsn": true, "auth.password": true}
	if len(targets) != len(want) {
		t.Fatalf("expected %d targets, got %d: %+v", len(want), len(targets), targets)
	}
	for _, tg := range targets {
		if tg.Section != "config" {
			t.Errorf("expected section 'config', got %q", tg.Section)
		}
		if !want[tg.Path] {
			t.Errorf("unexpected decode target path %q", tg.Path)
		}
	}
}

func TestNormalizeDecodeSpec_ExtraPaths(t *testing.T) {
	targets := NormalizeDecodeSpec("options", nil, []string{"api_key", "nested.token"})
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
}

type stubDecoder struct{ suffix string }

func (s stubDecoder) Decode(v string) (string, error) { return v + s.suffix, nil }

func TestApplyDecode(t *testing.T) {
	rendered := map[string]map[string]any{
		"config": {"dsn": "raw-secret"},
	}
	targets := []DecodeTarget{{Section: "config", Path: "dsn"}}

	warn, err := ApplyDecode(rendered, targets, stubDecoder{suffix: "-decoded"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if warn {
		t.Error("expected no warning when a decoder is configured")
	}
	if rendered["config"]["dsn"] != "raw-secret-decoded" {
		t.Errorf("expected decoded value, got %#v", rendered["config"]["dsn"])
	}
}

func TestApplyDecode_NoDecoderWarnsAndLeavesUnchanged(t *testing.T) {
	rendered := map[string]map[string]any{
		"config": {"dsn": "raw-secret"},
	}
	targets := []DecodeTarget{{Section: "config", Path: "dsn"}}

	warn, err := ApplyDecode(rendered, targets, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !warn {
		t.Error("expected a warning when decode targets exist but no decoder is configured")
	}
	if rendered["config"]["dsn"] != "raw-secret" {
		t.Errorf("expected value unchanged, got %#v", rendered["config"]["dsn"])
	}
}
