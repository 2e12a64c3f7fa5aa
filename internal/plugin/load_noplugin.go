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

//go:build !plugin

package plugin

import (
	"fmt"
	"log/slog"
)

// loadDir rejects dynamic plugin paths in builds without the plugin
// tag: strict mode errors, otherwise the path is skipped with a
// warning so flows that merely inherit AETHERFLOW_PLUGIN_PATHS from
// the environment still run with built-ins.
func loadDir(r *Registries, dir string, strict bool, logger *slog.Logger) error {
	if strict {
		return fmt.Errorf("plugin: dynamic loading from %s requires a build with the plugin tag", dir)
	}
	logger.Warn("dynamic plugin loading unavailable in this build, skipping path", slog.String("dir", dir))
	return nil
}
