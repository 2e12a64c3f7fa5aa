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

// Package step implements the built-in step engine (spec §4.3 "Step
// execution" step 4, and the step-kind catalog named by the project's
// module expansion): db.extract, db.execute, excel.fill_template,
// external.process, archive.create_zip, archive.extract_zip,
// file_transfer.upload and file_transfer.download. Locking is not a step
// type: the runner applies a step's StepSpec.Lock around its run. Each
// built-in is a Constructor registered by type name in a Registry
// instance (NewRegistryWithBuiltins seeds one), mirroring the teacher's pkg/tools
// provider-registration shape (name -> constructor, looked up at call
// time).
package step

import (
	"context"
	"fmt"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/state"
	"github.com/aetherflow/aetherflow/pkg/runctx"
)

// Status is the outcome of one step invocation (spec §4.3 "a step
// returns either a mapping (treated as SUCCESS) or a StepResult").
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusSkipped Status = "SKIPPED"
	StatusFailed  Status = "FAILED"
)

// Result is the normalized outcome of a step's run() (spec §4.3).
type Result struct {
	Status Status
	Output map[string]any
	Reason string
}

// Context is the per-step runtime context threaded into every built-in
// (spec §4.3 "Build a per-step runtime context"). It carries everything
// a step needs besides its own rendered inputs: the run's sandbox and
// connector manager, and identifying fields steps may echo into their
// output or use to scope idempotency state.
type Context struct {
	context.Context

	RunCtx     *runctx.RunContext
	Connectors *connector.Manager
	Sandbox    *runctx.Sandbox
	State      state.Store

	FlowID string
	RunID  string
	JobID  string
	StepID string
}

// Step is the contract every built-in and plugin-registered step type
// must satisfy (spec §4.3 "Invoke validate() then run()").
type Step interface {
	// Validate checks that rendered inputs carry the keys this step
	// type requires, returning a descriptive error otherwise. It must
	// not perform I/O.
	Validate() error

	// Run performs the step's work and returns its Result.
	Run(ctx *Context) (Result, error)
}

// Constructor builds a Step from a step id and its already-rendered
// inputs mapping (spec §4.3 "Instantiate the step (looked up by type in
// the step registry) with (id, rendered_inputs, ctx, job_id)"; ctx and
// job_id are threaded through Context at Run time rather than
// construction time, since the same Step value is never reused across
// runs).
type Constructor func(id string, inputs map[string]any) (Step, error)

// Registry maps a StepSpec.Type name to its Constructor.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds typeName to ctor. Re-registering the same typeName
// overwrites the previous binding, matching the teacher's provider
// registry semantics (last registration wins, used by plugin loading to
// shadow a built-in with a custom implementation).
func (r *Registry) Register(typeName string, ctor Constructor) {
	r.ctors[typeName] = ctor
}

// Registered reports whether typeName has a bound constructor (used by
// the validator's structural-semantic stage, spec §4.2 stage 2 "step
// type must be registered").
func (r *Registry) Registered(typeName string) bool {
	_, ok := r.ctors[typeName]
	return ok
}

// Types returns the set of registered type names, in the shape the
// validator's Options.RegisteredStepTypes expects.
func (r *Registry) Types() map[string]bool {
	out := make(map[string]bool, len(r.ctors))
	for name := range r.ctors {
		out[name] = true
	}
	return out
}

// New looks up typeName and constructs a Step from id and inputs.
func (r *Registry) New(typeName, id string, inputs map[string]any) (Step, error) {
	ctor, ok := r.ctors[typeName]
	if !ok {
		return nil, fmt.Errorf("step: no constructor registered for type %q", typeName)
	}
	return ctor(id, inputs)
}

// NewRegistryWithBuiltins returns a Registry with every built-in step
// type already registered (the package's analogue of connector.
// RegisterBuiltins).
func NewRegistryWithBuiltins() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}
