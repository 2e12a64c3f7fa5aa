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
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aetherflow/aetherflow/internal/diagnostics"
	"github.com/aetherflow/aetherflow/internal/runner"
	"github.com/aetherflow/aetherflow/pkg/bundle"
)

func newRunCommand() *cobra.Command {
	var (
		flowYAML       string
		runID          string
		flowJob        string
		bundleManifest string
		allowStale     bool
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a flow",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.metrics.Shutdown(context.Background())

			opts := runner.Options{
				FlowPath:         flowYAML,
				RunID:            runID,
				FlowJob:          flowJob,
				AllowStaleBundle: allowStale,
				DryRun:           dryRun,
			}
			if bundleManifest != "" {
				m, err := loadManifest(bundleManifest)
				if err != nil {
					return err
				}
				opts.Manifest = m
			}
			if flowYAML == "" && bundleManifest == "" {
				return fmt.Errorf("one of --flow-yaml or --bundle-manifest is required")
			}

			res, err := a.runner.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if res.Summary != nil && res.Summary.Failed() {
				return fmt.Errorf("run %s finished with failed jobs", res.RunID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flowYAML, "flow-yaml", "", "path to the flow YAML")
	cmd.Flags().StringVar(&runID, "run-id", "", "pin the run id (resumes a prior run)")
	cmd.Flags().StringVar(&flowJob, "flow-job", "", "run only the named job")
	cmd.Flags().StringVar(&bundleManifest, "bundle-manifest", "", "sync this bundle before the run")
	cmd.Flags().BoolVar(&allowStale, "allow-stale-bundle", false, "tolerate a failed sync when an active bundle exists")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and validate everything without executing steps")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var (
		flowYAML string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a flow and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			insp, err := a.runner.Inspect(flowYAML)
			if err != nil {
				return err
			}
			if asJSON {
				if err := printJSON(cmd.OutOrStdout(), insp.Report); err != nil {
					return err
				}
			} else {
				diagnostics.PrintReport(cmd.OutOrStdout(), flowYAML, insp.Report)
			}
			if !insp.Report.OK {
				return &runner.ErrValidationFailed{Report: insp.Report}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&flowYAML, "flow-yaml", "", "path to the flow YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	cmd.MarkFlagRequired("flow-yaml")
	return cmd
}

func newDoctorCommand() *cobra.Command {
	var (
		flowYAML string
		asJSON   bool
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate a flow and probe its resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			once := func() error {
				report, err := diagnostics.Doctor(cmd.Context(), a.runner, flowYAML)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), report)
				}
				diagnostics.PrintReport(cmd.OutOrStdout(), flowYAML, report.Report)
				for _, p := range report.Probes {
					status := "ok"
					if !p.OK {
						status = "FAILED: " + p.Error
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  probe %s (%s/%s): %s\n", p.Resource, p.Kind, p.Driver, status)
				}
				return nil
			}
			if watch {
				return diagnostics.Watch(cmd.Context(), flowYAML, once)
			}
			return once()
		},
	}
	cmd.Flags().StringVar(&flowYAML, "flow-yaml", "", "path to the flow YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run on flow file changes")
	cmd.MarkFlagRequired("flow-yaml")
	return cmd
}

func newExplainCommand() *cobra.Command {
	var (
		flowYAML string
		asJSON   bool
		watch    bool
	)
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the execution plan a run would follow",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			once := func() error {
				plan, err := diagnostics.Explain(a.runner, flowYAML)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), plan)
				}
				if !plan.Report.OK {
					diagnostics.PrintReport(cmd.OutOrStdout(), flowYAML, plan.Report)
					return nil
				}
				diagnostics.PrintPlan(cmd.OutOrStdout(), plan)
				return nil
			}
			if watch {
				return diagnostics.Watch(cmd.Context(), flowYAML, once)
			}
			return once()
		},
	}
	cmd.Flags().StringVar(&flowYAML, "flow-yaml", "", "path to the flow YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the plan as JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-run on flow file changes")
	cmd.MarkFlagRequired("flow-yaml")
	return cmd
}

func newBundleCommand() *cobra.Command {
	group := &cobra.Command{
		Use:   "bundle",
		Short: "Bundle synchronization commands",
	}
	group.AddCommand(newBundleSyncCommand(), newBundleStatusCommand())
	return group
}

func (a *app) synchronizer() *bundle.Synchronizer {
	workRoot := a.settings.WorkRoot
	if workRoot == "" {
		workRoot = ".aetherflow"
	}
	return &bundle.Synchronizer{
		Settings: a.settings,
		Registry: a.runner.Connectors,
		WorkRoot: workRoot,
		Logger:   a.logger,
	}
}

func newBundleSyncCommand() *cobra.Command {
	var (
		manifestPath   string
		asJSON         bool
		printLocalRoot bool
		allowStale     bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Materialize a bundle into its active directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			m, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			res, err := a.synchronizer().Sync(cmd.Context(), m, a.snapshot, bundle.Options{AllowStale: allowStale})
			if err != nil {
				return err
			}
			switch {
			case asJSON:
				return printJSON(cmd.OutOrStdout(), res)
			case printLocalRoot:
				fmt.Fprintln(cmd.OutOrStdout(), res.LocalRoot)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "bundle %s: fingerprint=%s changed=%t fetched=%d\n",
					m.Bundle.ID, res.Fingerprint, res.Changed, len(res.FetchedFiles))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "bundle-manifest", "", "path to the bundle manifest YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the result as JSON")
	cmd.Flags().BoolVar(&printLocalRoot, "print-local-root", false, "print only the bundle's local root path")
	cmd.Flags().BoolVar(&allowStale, "allow-stale-bundle", false, "tolerate a failed sync when an active bundle exists")
	cmd.MarkFlagRequired("bundle-manifest")
	return cmd
}

func newBundleStatusCommand() *cobra.Command {
	var (
		manifestPath string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Diff the remote bundle against the last synced snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			m, err := loadManifest(manifestPath)
			if err != nil {
				return err
			}
			st, err := a.synchronizer().Status(cmd.Context(), m, a.snapshot)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "bundle %s: in_sync=%t added=%d removed=%d changed=%d\n",
				st.BundleID, st.InSync, len(st.Added), len(st.Removed), len(st.Changed))
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "bundle-manifest", "", "path to the bundle manifest YAML")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the status as JSON")
	cmd.MarkFlagRequired("bundle-manifest")
	return cmd
}
