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
	"fmt"
	"strconv"
	"strings"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// token is one recognized `{{PATH}}` or `{{PATH:DEFAULT}}` occurrence.
type token struct {
	start, end int // byte offsets into the source string, end exclusive
	path       string
	hasDefault bool
	def        string
}

func isIdentByte(b byte, first bool) bool {
	if b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') {
		return true
	}
	if !first && b >= '0' && b <= '9' {
		return true
	}
	return false
}

// scan walks s once, collecting valid tokens and rejecting every
// forbidden pattern with the fixed error message from spec §4.1:
// `${`, `{%...%}`, `{#...#}`, the empty pair `{}`, any nesting inside
// `{{...}}`, and literal unmatched braces.
func scan(s string) ([]token, error) {
	var toks []token
	i := 0
	n := len(s)

	fail := func(at int) error {
		snippet := s
		if len(snippet) > 24 {
			lo := at - 12
			if lo < 0 {
				lo = 0
			}
			hi := lo + 24
			if hi > n {
				hi = n
			}
			snippet = s[lo:hi]
		}
		return &aetherrors.ResolverSyntaxError{Snippet: snippet}
	}

	for i < n {
		c := s[i]

		if c == '$' && i+1 < n && s[i+1] == '{' {
			return nil, fail(i)
		}

		if c == '{' {
			if i+1 < n && (s[i+1] == '%' || s[i+1] == '#') {
				return nil, fail(i)
			}
			if i+1 < n && s[i+1] == '}' {
				// The empty pair "{}" is a forbidden pattern in its own
				// right (spec §4.1).
				return nil, fail(i)
			}
			if i+1 >= n || s[i+1] != '{' {
				// A lone '{' outside a `{{...}}` pair is a literal brace.
				return nil, fail(i)
			}
			// "{{"
			if i+2 < n && s[i+2] == '{' {
				return nil, fail(i)
			}
			if i+2 <= n && strings.HasPrefix(s[i:], "{{}}") {
				return nil, fail(i)
			}
			close := strings.Index(s[i+2:], "}}")
			if close < 0 {
				return nil, fail(i)
			}
			inner := s[i+2 : i+2+close]
			if strings.Contains(inner, "{{") || strings.Contains(inner, "}}") {
				return nil, fail(i)
			}
			tok, err := parseToken(strings.TrimSpace(inner))
			if err != nil {
				return nil, fail(i)
			}
			tok.start = i
			tok.end = i + 2 + close + 2
			toks = append(toks, tok)
			i = tok.end
			continue
		}

		if c == '}' {
			// Every token consumes its closing "}}", so a '}' reached
			// here is a literal brace outside any pair.
			return nil, fail(i)
		}

		i++
	}

	return toks, nil
}

// parseToken parses the trimmed interior of a `{{...}}` pair into
// PATH or PATH:DEFAULT, where PATH = IDENT ("." IDENT)*.
func parseToken(inner string) (token, error) {
	path := inner
	def := ""
	hasDefault := false

	if idx := strings.IndexByte(inner, ':'); idx >= 0 {
		path = strings.TrimSpace(inner[:idx])
		def = strings.TrimSpace(inner[idx+1:])
		hasDefault = true
	}

	if !validPath(path) {
		return token{}, fmt.Errorf("invalid path %q", path)
	}

	return token{path: path, hasDefault: hasDefault, def: def}, nil
}

func validPath(path string) bool {
	if path == "" {
		return false
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return false
		}
		for i := 0; i < len(seg); i++ {
			if !isIdentByte(seg[i], i == 0) {
				return false
			}
		}
	}
	return true
}

// HasForbiddenSyntax reports whether s contains a forbidden pattern or a
// malformed token, without resolving anything. A string holding only
// valid tokens reports false.
func HasForbiddenSyntax(s string) bool {
	_, err := scan(s)
	return err != nil
}

// IsStandaloneToken reports whether s is exactly one template token
// (only surrounding whitespace tolerated), the rule spec §4.1's decode
// pipeline and the typed-passthrough rule both depend on.
func IsStandaloneToken(s string) (bool, error) {
	toks, err := scan(s)
	if err != nil {
		return false, err
	}
	if len(toks) != 1 {
		return false, nil
	}
	return strings.TrimSpace(s) == s[toks[0].start:toks[0].end], nil
}

// ContainsTemplate reports whether s contains at least one recognized
// token, without validating correctness. Used by callers that only need
// to decide "does this field need resolving at all."
func ContainsTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

func toDisplayString(v any) string {
	switch x := v.(type) {
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
