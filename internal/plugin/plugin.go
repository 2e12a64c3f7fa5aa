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

// Package plugin populates the process-wide step and connector
// registries (spec §2 "Plugin loader"). Built-in types always register;
// third-party .so plugins discovered under AETHERFLOW_PLUGIN_PATHS load
// only in builds carrying the `plugin` tag (the same Open Question
// resolution as the secrets module, see DESIGN.md).
package plugin

import (
	"log/slog"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/internal/step"
)

// RegisterFunc is the signature of the Register function every dynamic
// plugin exports: it receives both registries and binds its step types
// and (kind, driver) pairs. The loader asserts the equivalent unnamed
// function type, which is what plugin.Lookup returns for an exported func.
type RegisterFunc func(steps *step.Registry, connectors *connector.Registry)

// Registries is the pair the loader returns: seeded with every built-in,
// extended by whatever plugins registered.
type Registries struct {
	Steps      *step.Registry
	Connectors *connector.Registry
}

// Load builds both registries: built-ins first, then each discovered
// plugin's Register function. With AETHERFLOW_PLUGIN_STRICT a plugin
// that fails to load or exports a wrong-signature Register aborts;
// otherwise it is skipped with a warning.
func Load(s *settings.Settings, logger *slog.Logger) (*Registries, error) {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registries{
		Steps:      step.NewRegistryWithBuiltins(),
		Connectors: connector.NewRegistry(),
	}
	connector.RegisterBuiltins(r.Connectors)

	for _, dir := range s.PluginPaths {
		if err := loadDir(r, dir, s.PluginStrict, logger); err != nil {
			return nil, err
		}
	}
	return r, nil
}
