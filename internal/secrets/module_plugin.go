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

//go:build plugin

package secrets

import (
	"fmt"
	"plugin"
)

// loadFromPath opens a -buildmode=plugin .so at path and adapts its
// exported Decode / optional ExpandEnv symbols to the Module contract.
// The symbol signatures mirror the documented secrets contract exactly;
// a wrong signature is rejected rather than adapted.
func loadFromPath(name, path string) (Module, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("secrets: open module %q at %s: %w", name, path, err)
	}

	decodeSym, err := p.Lookup("Decode")
	if err != nil {
		return nil, fmt.Errorf("secrets: module %q does not export Decode: %w", name, err)
	}
	decode, ok := decodeSym.(func(string) (string, error))
	if !ok {
		return nil, fmt.Errorf("secrets: module %q Decode has signature %T, want func(string) (string, error)", name, decodeSym)
	}

	m := &pluginModule{decode: decode}
	if expandSym, err := p.Lookup("ExpandEnv"); err == nil {
		expand, ok := expandSym.(func(map[string]string) (map[string]string, error))
		if !ok {
			return nil, fmt.Errorf("secrets: module %q ExpandEnv has signature %T, want func(map[string]string) (map[string]string, error)", name, expandSym)
		}
		m.expand = expand
	}
	return m, nil
}

type pluginModule struct {
	decode func(string) (string, error)
	expand func(map[string]string) (map[string]string, error)
}

func (m *pluginModule) Decode(s string) (string, error) {
	return m.decode(s)
}

func (m *pluginModule) ExpandEnv(env map[string]string) (map[string]string, error) {
	if m.expand == nil {
		out := make(map[string]string, len(env))
		for k, v := range env {
			out[k] = v
		}
		return out, nil
	}
	return m.expand(env)
}
