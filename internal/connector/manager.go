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

package connector

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// CachePolicy is the resolved cache scope for one Get call (spec §4.5
// "Cache policies").
type CachePolicy string

const (
	CacheRun     CachePolicy = "run"
	CacheProcess CachePolicy = "process"
	CacheNone    CachePolicy = "none"
)

// processCache is shared across every Manager in the process, matching
// spec §3 "the process-wide connector cache is shared across runs (weak
// relation - entries may be closed on process exit)".
var processCache = struct {
	mu    sync.Mutex
	items map[string]io.Closer
}{items: make(map[string]io.Closer)}

// Manager binds a run's materialized resources to live connector
// instances, honoring the declared or overridden cache policy (spec
// §4.5 "Accessor contract").
type Manager struct {
	registry  *Registry
	settings  *settings.Settings
	resources map[string]flow.ResourceSpec

	mu      sync.Mutex
	runItem map[string]io.Closer
}

// NewManager builds a Manager over the run's materialized resources.
func NewManager(reg *Registry, s *settings.Settings, resources map[string]flow.ResourceSpec) *Manager {
	return &Manager{
		registry:  reg,
		settings:  s,
		resources: resources,
		runItem:   make(map[string]io.Closer),
	}
}

// resourceCachePolicy reads the resource's declared cache policy from
// its options, defaulting to the process-wide setting.
func (m *Manager) resourceCachePolicy(res flow.ResourceSpec) CachePolicy {
	if v, ok := res.Options["cache"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return CachePolicy(s)
		}
	}
	if m.settings != nil && m.settings.ConnectorCacheDefault != "" {
		return CachePolicy(m.settings.ConnectorCacheDefault)
	}
	return CacheRun
}

// resolvePolicy applies the precedence chain from spec §4.5:
// per-call override > resource-declared > global default, all degraded
// to none when connector_cache_disabled is set.
func (m *Manager) resolvePolicy(res flow.ResourceSpec, override *CachePolicy) CachePolicy {
	if m.settings != nil && m.settings.ConnectorCacheDisabled {
		return CacheNone
	}
	if override != nil && *override != "" {
		return *override
	}
	return m.resourceCachePolicy(res)
}

// Get returns a live connector for the named resource, asserting its
// declared kind matches. override, if non-nil, takes precedence over
// every other cache-policy source for this one call.
func (m *Manager) Get(ctx context.Context, kind, name string, override *CachePolicy) (io.Closer, error) {
	res, ok := m.resources[name]
	if !ok {
		return nil, fmt.Errorf("connector: unknown resource %q", name)
	}
	if res.Kind != kind {
		return nil, fmt.Errorf("connector: resource %q is kind %q, not %q", name, res.Kind, kind)
	}

	policy := m.resolvePolicy(res, override)
	cacheKey := kind + "/" + res.Driver + "/" + name

	switch policy {
	case CacheRun:
		m.mu.Lock()
		defer m.mu.Unlock()
		if c, ok := m.runItem[cacheKey]; ok {
			return c, nil
		}
		c, err := m.construct(ctx, name, res)
		if err != nil {
			return nil, err
		}
		m.runItem[cacheKey] = c
		return c, nil

	case CacheProcess:
		processCache.mu.Lock()
		defer processCache.mu.Unlock()
		if c, ok := processCache.items[cacheKey]; ok {
			return c, nil
		}
		c, err := m.construct(ctx, name, res)
		if err != nil {
			return nil, err
		}
		processCache.items[cacheKey] = c
		return c, nil

	default: // CacheNone
		return m.construct(ctx, name, res)
	}
}

func (m *Manager) construct(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
	ctor, err := m.registry.Lookup(res.Kind, res.Driver)
	if err != nil {
		return nil, err
	}
	return ctor(ctx, name, res)
}

// CloseAll closes every run-cached connector. Process-cached connectors
// are left open; they outlive the run (spec §4.3 "Connector manager is
// closed in a finally branch to release run-scoped resources").
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for key, c := range m.runItem {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.runItem, key)
	}
	return firstErr
}
