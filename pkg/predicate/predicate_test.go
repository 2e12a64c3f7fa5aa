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

package predicate

import "testing"

func TestParse_AllowsRestrictedGrammar(t *testing.T) {
	cases := []string{
		`jobs.extract.outputs.row_count > 0`,
		`jobs.extract.outputs.row_count > 0 && jobs.extract.outputs.ok == true`,
		`!(jobs.extract.outputs.ok == false)`,
		`jobs.a.outputs.x != jobs.b.outputs.y || jobs.a.outputs.z <= 10`,
	}
	for _, c := range cases {
		if _, err := Parse(c); err != nil {
			t.Errorf("Parse(%q) unexpected error: %v", c, err)
		}
	}
}

func TestParse_RejectsDisallowedRoot(t *testing.T) {
	if _, err := Parse(`env.FOO == "bar"`); err == nil {
		t.Fatal("expected error for non-jobs root")
	}
}

func TestParse_RejectsDisallowedConstruct(t *testing.T) {
	cases := []string{
		`jobs.a.outputs.x + 1 > 0`,
		`jobs.a.outputs.x ?? "default"`,
		`len(jobs.a.outputs.x) > 0`,
	}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q) expected error, got none", c)
		}
	}
}

func TestCompileAndEval(t *testing.T) {
	prog, err := Compile(`jobs.extract.outputs.row_count > 0`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	jobs := map[string]any{
		"extract": map[string]any{
			"outputs": map[string]any{"row_count": 5},
		},
	}
	ok, err := prog.Eval(jobs)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}

	jobs["extract"].(map[string]any)["outputs"].(map[string]any)["row_count"] = 0
	ok, err = prog.Eval(jobs)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok {
		t.Fatal("expected false")
	}
}

func TestCompile_EmptyAlwaysTrue(t *testing.T) {
	prog, err := Compile("")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ok, err := prog.Eval(nil)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Fatal("expected empty when to default true")
	}
}
