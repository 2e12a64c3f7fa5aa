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

// Package secrets loads the secrets module named by
// AETHERFLOW_SECRETS_MODULE (spec §4.1 "Secrets module contract"): a
// required decode hook plus an optional env-expansion hook. Modules are
// Go packages registered in-process by name; dynamically loaded .so
// modules are supported only under the `plugin` build tag (see
// module_plugin.go and the Open Question resolution in DESIGN.md).
package secrets

import (
	"fmt"
	"sync"

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// Module is the required half of the secrets contract: decode(str)->str.
// A module that also implements resolver.EnvExpander gets its ExpandEnv
// applied to the run snapshot before sealing.
type Module interface {
	resolver.Decoder
}

var registry = struct {
	mu      sync.RWMutex
	modules map[string]Module
}{modules: make(map[string]Module)}

// Register binds a named secrets module. Typically called from a
// module's init or a plugin's initialization function. Re-registering a
// name overwrites the previous module.
func Register(name string, m Module) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.modules[name] = m
}

// Load resolves the configured secrets module. Returns (nil, nil) when
// no module is configured — decode targets are then left unchanged with
// a warning at the call site, per spec §4.1.
func Load(s *settings.Settings) (Module, error) {
	if s == nil || s.SecretsModule == "" {
		return nil, nil
	}

	registry.mu.RLock()
	m, ok := registry.modules[s.SecretsModule]
	registry.mu.RUnlock()
	if ok {
		return m, nil
	}

	if s.SecretsPath != "" {
		return loadFromPath(s.SecretsModule, s.SecretsPath)
	}
	return nil, fmt.Errorf("secrets: no module registered as %q", s.SecretsModule)
}

// Expander returns m's optional ExpandEnv hook, or nil when the module
// does not provide one (or no module is configured).
func Expander(m Module) resolver.EnvExpander {
	if m == nil {
		return nil
	}
	if e, ok := m.(resolver.EnvExpander); ok {
		return e
	}
	return nil
}
