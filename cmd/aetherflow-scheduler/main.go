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

// Command aetherflow-scheduler is the cron supervisor binary (spec §6):
// `aetherflow-scheduler run <scheduler.yaml>` fires flow runs on each
// item's cron schedule until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aetherflow/aetherflow/internal/log"
	"github.com/aetherflow/aetherflow/internal/observability"
	"github.com/aetherflow/aetherflow/internal/plugin"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/internal/scheduler"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/validate"
)

func main() {
	root := &cobra.Command{
		Use:           "aetherflow-scheduler",
		Short:         "Cron supervisor for AetherFlow flows",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSchedulerRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSchedulerRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <scheduler.yaml>",
		Short: "Supervise the scheduled items in the given document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			doc, err := scheduler.DecodeDocument(raw)
			if err != nil {
				return err
			}

			snapshot := settings.SnapshotFromEnviron()
			s := settings.FromSnapshot(snapshot)
			if err := s.Validate(snapshot); err != nil {
				return err
			}
			logger := log.New(log.FromSnapshot(snapshot))
			slog.SetDefault(logger)

			registries, err := plugin.Load(s, logger)
			if err != nil {
				return err
			}
			metrics, err := observability.NewMetrics(s.MetricsModule)
			if err != nil {
				return err
			}
			defer metrics.Shutdown(context.Background())

			r := &runner.Runner{
				Snapshot:   snapshot,
				Logger:     logger,
				Steps:      registries.Steps,
				Connectors: registries.Connectors,
				Emitter:    observability.NewEmitter(logger, metrics),
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sup := &scheduler.Supervisor{
				Items:  doc.Items,
				Logger: logger,
				Run: func(ctx context.Context, item scheduler.ItemSpec) error {
					opts := runner.Options{
						FlowPath:         item.FlowYAML,
						FlowJob:          item.FlowJob,
						AllowStaleBundle: item.AllowStaleBundle,
					}
					if item.BundleManifest != "" {
						m, err := loadManifest(item.BundleManifest)
						if err != nil {
							return err
						}
						opts.Manifest = m
						opts.FlowPath = ""
					}
					res, err := r.Run(ctx, opts)
					if err != nil {
						return err
					}
					if res.Summary != nil && res.Summary.Failed() {
						return fmt.Errorf("run %s finished with failed jobs", res.RunID)
					}
					return nil
				},
			}
			return sup.Start(ctx)
		},
	}
}

// loadManifest mirrors the main CLI's manifest loading: validate first,
// strict-decode second.
func loadManifest(path string) (*flow.BundleManifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
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
