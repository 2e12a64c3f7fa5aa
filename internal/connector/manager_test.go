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
	"io"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

type fakeConn struct {
	closed atomic.Bool
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func fakeSetup(t *testing.T, snap settings.Snapshot, options map[string]any) (*Manager, *atomic.Int32) {
	t.Helper()
	var constructed atomic.Int32
	reg := NewRegistry()
	reg.Register("db", "fake", func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		constructed.Add(1)
		return &fakeConn{}, nil
	})
	resources := map[string]flow.ResourceSpec{
		"main": {Kind: "db", Driver: "fake", Options: options},
	}
	return NewManager(reg, settings.FromSnapshot(snap), resources), &constructed
}

func TestManager_RunCacheIsDefault(t *testing.T) {
	m, constructed := fakeSetup(t, settings.Snapshot{}, nil)

	c1, err := m.Get(context.Background(), "db", "main", nil)
	require.NoError(t, err)
	c2, err := m.Get(context.Background(), "db", "main", nil)
	require.NoError(t, err)
	assert.Same(t, c1, c2)
	assert.Equal(t, int32(1), constructed.Load())

	require.NoError(t, m.CloseAll())
	assert.True(t, c1.(*fakeConn).closed.Load())
}

func TestManager_NoneOverrideBypassesCache(t *testing.T) {
	m, constructed := fakeSetup(t, settings.Snapshot{}, nil)
	none := CacheNone

	c1, err := m.Get(context.Background(), "db", "main", &none)
	require.NoError(t, err)
	c2, err := m.Get(context.Background(), "db", "main", &none)
	require.NoError(t, err)
	assert.NotSame(t, c1, c2)
	assert.Equal(t, int32(2), constructed.Load())
}

func TestManager_CacheDisabledDegradesAllPolicies(t *testing.T) {
	m, constructed := fakeSetup(t,
		settings.Snapshot{"AETHERFLOW_CONNECTOR_CACHE_DISABLED": "true"},
		map[string]any{"cache": "process"})

	_, err := m.Get(context.Background(), "db", "main", nil)
	require.NoError(t, err)
	_, err = m.Get(context.Background(), "db", "main", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), constructed.Load())
}

func TestManager_KindMismatchRejected(t *testing.T) {
	m, _ := fakeSetup(t, settings.Snapshot{}, nil)
	_, err := m.Get(context.Background(), "sftp", "main", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kind")
}

func TestManager_UnknownResource(t *testing.T) {
	m, _ := fakeSetup(t, settings.Snapshot{}, nil)
	_, err := m.Get(context.Background(), "db", "nope", nil)
	require.Error(t, err)
}
