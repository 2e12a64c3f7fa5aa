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

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Program is a restricted, compiled `when` expression.
type Program struct {
	src string
	vm  *vm.Program
}

// Compile parses, restricts, and compiles a `when` expression. An empty
// expression always evaluates true (no gating).
func Compile(src string) (*Program, error) {
	if src == "" {
		return &Program{src: src}, nil
	}
	if _, err := Parse(src); err != nil {
		return nil, err
	}
	prog, err := expr.Compile(src,
		expr.Env(map[string]any{"jobs": map[string]any{}}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, &aetherrors.SpecError{
			Code:    "when_compile_error",
			Message: fmt.Sprintf("when expression failed to compile: %s", err),
		}
	}
	return &Program{src: src, vm: prog}, nil
}

// Eval evaluates the compiled program against the current jobs-outputs
// map (spec §4.3 "when": "the only allowed root name is jobs"). A job
// whose predicate evaluates false is SKIPPED with reason "condition=false".
func (p *Program) Eval(jobs map[string]any) (bool, error) {
	if p.vm == nil {
		return true, nil
	}
	out, err := expr.Run(p.vm, map[string]any{"jobs": jobs})
	if err != nil {
		return false, &aetherrors.RuntimeError{Message: fmt.Sprintf("when evaluation failed: %s", err)}
	}
	b, ok := out.(bool)
	if !ok {
		return false, &aetherrors.RuntimeError{Message: fmt.Sprintf("when expression must return bool, got %T", out)}
	}
	return b, nil
}

// Source returns the original expression text.
func (p *Program) Source() string { return p.src }
