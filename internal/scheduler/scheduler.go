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

// Package scheduler implements the cron-driven supervisor (spec §4.6).
// Each scheduled item runs in its own goroutine so a failing item never
// stalls its siblings; runs of one item are serial (max_instances=1),
// missed firings during a run coalesce, and firings woken past the
// misfire grace window are dropped.
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// ItemSpec is one scheduled entry (spec §4.6). Exactly one of FlowYAML
// and BundleManifest must be set.
type ItemSpec struct {
	ID                  string `yaml:"id"`
	Cron                string `yaml:"cron"`
	FlowYAML            string `yaml:"flow_yaml,omitempty"`
	BundleManifest      string `yaml:"bundle_manifest,omitempty"`
	FlowJob             string `yaml:"flow_job,omitempty"`
	AllowStaleBundle    bool   `yaml:"allow_stale_bundle,omitempty"`
	MisfireGraceSeconds int    `yaml:"misfire_grace_seconds,omitempty"`
}

// Document is the scheduler YAML: a list of items.
type Document struct {
	Items []ItemSpec `yaml:"items"`
}

// DecodeDocument strictly parses scheduler YAML and validates every
// item: unique ids, parseable cron, exactly one run target.
func DecodeDocument(raw []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &aetherrors.SpecError{Code: "schema_error", Message: err.Error()}
	}

	seen := make(map[string]bool, len(doc.Items))
	for i, item := range doc.Items {
		loc := fmt.Sprintf("items[%d]", i)
		if item.ID == "" {
			return nil, &aetherrors.SpecError{Loc: loc + ".id", Code: "missing_id", Message: "scheduled item needs an id"}
		}
		if seen[item.ID] {
			return nil, &aetherrors.SpecError{Loc: loc + ".id", Code: "duplicate_id", Message: fmt.Sprintf("duplicate scheduled item id %q", item.ID)}
		}
		seen[item.ID] = true
		if _, err := cron.ParseStandard(item.Cron); err != nil {
			return nil, &aetherrors.SpecError{Loc: loc + ".cron", Code: "invalid_cron", Message: err.Error()}
		}
		if (item.FlowYAML == "") == (item.BundleManifest == "") {
			return nil, &aetherrors.SpecError{
				Loc:     loc,
				Code:    "ambiguous_target",
				Message: "exactly one of flow_yaml and bundle_manifest must be set",
			}
		}
	}
	return &doc, nil
}

// RunFunc executes one firing of an item. The supervisor never inspects
// the error beyond logging it; failures isolate to the item.
type RunFunc func(ctx context.Context, item ItemSpec) error

// Supervisor drives every item's cron loop until its context ends.
type Supervisor struct {
	Items  []ItemSpec
	Run    RunFunc
	Logger *slog.Logger

	// now and sleep are stubbed by tests; nil means real time.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Supervisor) clock() func() time.Time {
	if s.now != nil {
		return s.now
	}
	return time.Now
}

func (s *Supervisor) sleeper() func(ctx context.Context, d time.Duration) bool {
	if s.sleep != nil {
		return s.sleep
	}
	return func(ctx context.Context, d time.Duration) bool {
		if d <= 0 {
			return true
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}
}

// Start blocks until ctx is done, supervising one goroutine per item.
func (s *Supervisor) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, item := range s.Items {
		sched, err := cron.ParseStandard(item.Cron)
		if err != nil {
			return &aetherrors.SpecError{Loc: item.ID, Code: "invalid_cron", Message: err.Error()}
		}
		wg.Add(1)
		go func(item ItemSpec, sched cron.Schedule) {
			defer wg.Done()
			s.runItem(ctx, item, sched)
		}(item, sched)
	}
	wg.Wait()
	return nil
}

// runItem is one item's timer loop. Running the firing inline keeps
// max_instances=1 for free: while a run is in flight no timer is armed,
// and any firings that would have happened meanwhile coalesce into the
// next schedule computation.
func (s *Supervisor) runItem(ctx context.Context, item ItemSpec, sched cron.Schedule) {
	now := s.clock()
	sleep := s.sleeper()
	grace := time.Duration(item.MisfireGraceSeconds) * time.Second
	if grace <= 0 {
		grace = time.Minute
	}

	logger := s.logger().With(slog.String("scheduled_item", item.ID))
	for {
		fireAt := sched.Next(now())
		if !sleep(ctx, fireAt.Sub(now())) {
			return
		}
		if late := now().Sub(fireAt); late > grace {
			logger.Warn("dropping misfire", slog.Int64("late_ms", late.Milliseconds()))
			continue
		}

		start := now()
		if err := s.Run(ctx, item); err != nil {
			logger.Error("scheduled run failed", slog.String("error", err.Error()))
		} else {
			logger.Info("scheduled run completed", slog.Int64("duration_ms", now().Sub(start).Milliseconds()))
		}
		if ctx.Err() != nil {
			return
		}
	}
}
