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

package plugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/step"
)

// loadDir opens every .so under dir and invokes its Register symbol.
func loadDir(r *Registries, dir string, strict bool, logger *slog.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) && !strict {
			logger.Warn("plugin path does not exist, skipping", slog.String("dir", dir))
			return nil
		}
		return fmt.Errorf("plugin: read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".so") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := loadOne(r, path); err != nil {
			if strict {
				return err
			}
			logger.Warn("skipping plugin", slog.String("path", path), slog.String("error", err.Error()))
		}
	}
	return nil
}

func loadOne(r *Registries, path string) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("plugin: open %s: %w", path, err)
	}
	sym, err := p.Lookup("Register")
	if err != nil {
		return fmt.Errorf("plugin: %s does not export Register: %w", path, err)
	}
	// Plugins compiled against this module export the plain function
	// type rather than the named RegisterFunc.
	register, ok := sym.(func(*step.Registry, *connector.Registry))
	if !ok {
		return fmt.Errorf("plugin: %s Register has signature %T, want func(*step.Registry, *connector.Registry)", path, sym)
	}
	register(r.Steps, r.Connectors)
	return nil
}
