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

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/internal/observability"
	"github.com/aetherflow/aetherflow/internal/plugin"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

// app bundles everything the subcommands share: snapshot-derived
// settings, the loaded registries, and the runner.
type app struct {
	snapshot settings.Snapshot
	settings *settings.Settings
	logger   *slog.Logger
	runner   *runner.Runner
	metrics  *observability.Metrics
}

func newApp() (*app, error) {
	snapshot := settings.SnapshotFromEnviron()
	s := settings.FromSnapshot(snapshot)
	if err := s.Validate(snapshot); err != nil {
		return nil, err
	}

	logger := log.New(log.FromSnapshot(snapshot))
	slog.SetDefault(logger)

	registries, err := plugin.Load(s, logger)
	if err != nil {
		return nil, err
	}
	metrics, err := observability.NewMetrics(s.MetricsModule)
	if err != nil {
		return nil, err
	}

	return &app{
		snapshot: snapshot,
		settings: s,
		logger:   logger,
		metrics:  metrics,
		runner: &runner.Runner{
			Snapshot:   snapshot,
			Logger:     logger,
			Steps:      registries.Steps,
			Connectors: registries.Connectors,
			Emitter:    observability.NewEmitter(logger, metrics),
		},
	}, nil
}

// loadManifest reads, validates, and decodes a bundle manifest.
func loadManifest(path string) (*flow.BundleManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}
	report, err := validate.ValidateManifest(raw)
	if err != nil {
		return nil, err
	}
	if !report.OK {
		return nil, &runner.ErrValidationFailed{Report: report}
	}
	return flow.DecodeBundleManifest(raw)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCommand() (*cobra.Command, error) {
	root := &cobra.Command{
		Use:           "aetherflow",
		Short:         "Declarative workflow execution engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(),
		newValidateCommand(),
		newDoctorCommand(),
		newExplainCommand(),
		newBundleCommand(),
	)
	return root, nil
}
