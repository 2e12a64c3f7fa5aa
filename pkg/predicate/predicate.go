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

// Package predicate implements the restricted `when` expression language
// from spec §4.3: a closed AST subset of boolean ops, comparisons, and
// attribute access rooted at `jobs`. It reuses expr-lang/expr's parser for
// lexing and AST shape (the same library the teacher uses for its own
// workflow `when`/`if` conditions, pkg/workflow/expression) but adds a
// restriction pass the teacher's evaluator does not need, since AetherFlow
// must reject anything outside the documented grammar at validation time
// rather than merely at evaluation time.
package predicate

import (
	"fmt"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// allowedBinaryOps is the closed comparison/boolean-operator set from
// spec §4.3: {Eq, NotEq, Lt, LtE, Gt, GtE} plus And/Or.
var allowedBinaryOps = map[string]bool{
	"==": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"&&": true, "||": true,
}

// Parse parses and restricts a `when` expression to the closed node set
// {BoolOp, And, Or, Not, Compare, Name, Attribute, Constant} with `jobs`
// as the only allowed root identifier (spec §4.3 "when semantics"). It
// returns a restricted tree ready for Eval, or a SpecError describing the
// first disallowed construct.
func Parse(expr string) (*ast.Tree, error) {
	tree, err := parser.Parse(expr)
	if err != nil {
		return nil, &aetherrors.SpecError{
			Code:    "when_syntax_error",
			Message: fmt.Sprintf("when expression does not parse: %s", err),
		}
	}
	if err := restrict(tree.Node); err != nil {
		return nil, err
	}
	return tree, nil
}

func restrict(n ast.Node) error {
	switch node := n.(type) {
	case *ast.NilNode, *ast.BoolNode, *ast.IntegerNode, *ast.FloatNode, *ast.StringNode, *ast.ConstantNode:
		return nil
	case *ast.IdentifierNode:
		if node.Value != "jobs" {
			return disallowed(fmt.Sprintf("identifier %q (only `jobs` is allowed)", node.Value))
		}
		return nil
	case *ast.MemberNode:
		if err := restrict(node.Node); err != nil {
			return err
		}
		return restrict(node.Property)
	case *ast.UnaryNode:
		if node.Operator != "!" {
			return disallowed(fmt.Sprintf("unary operator %q", node.Operator))
		}
		return restrict(node.Node)
	case *ast.BinaryNode:
		if !allowedBinaryOps[node.Operator] {
			return disallowed(fmt.Sprintf("operator %q", node.Operator))
		}
		if err := restrict(node.Left); err != nil {
			return err
		}
		return restrict(node.Right)
	default:
		return disallowed(fmt.Sprintf("expression construct %T", n))
	}
}

func disallowed(what string) error {
	return &aetherrors.SpecError{
		Code:    "when_not_allowed",
		Message: "disallowed in `when` expression: " + what,
	}
}
