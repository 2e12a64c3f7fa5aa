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

// Package connector implements the connector manager (spec §4.5): a
// (kind, driver) constructor registry, cache-policy resolution, and the
// per-kind accessor contract. Kind-specific interfaces live in the
// db/rest/sftp/smb/mail/archive subpackages; this package only knows
// about io.Closer.
package connector

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Constructor builds a live connector instance for one resource. The
// returned value is typically a concrete type satisfying one of the
// db.DB/rest.REST/sftp.FileTransfer/smb.FileTransfer/mail.Mail/
// archive.Archive interfaces, plus io.Closer.
type Constructor func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error)

type registryKey struct {
	kind   string
	driver string
}

// Registry is the global (kind, driver) -> Constructor map (spec §4.5
// "Registry"). Built-in kinds register themselves via RegisterBuiltins;
// plugins register additional pairs through internal/plugin during their
// initialization function.
type Registry struct {
	mu  sync.RWMutex
	ctr map[registryKey]Constructor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctr: make(map[registryKey]Constructor)}
}

// Register binds (kind, driver) to a Constructor. Re-registering the
// same pair overwrites the previous binding, matching the teacher's own
// decorator-style registries that let a later plugin shadow an earlier
// one intentionally.
func (r *Registry) Register(kind, driver string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctr[registryKey{kind, driver}] = ctor
}

// Lookup returns the Constructor bound to (kind, driver).
func (r *Registry) Lookup(kind, driver string) (Constructor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.ctr[registryKey{kind, driver}]
	if !ok {
		return nil, fmt.Errorf("connector: no driver %q registered for kind %q", driver, kind)
	}
	return ctor, nil
}
