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

package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqliteStore, err := OpenSQLite(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	fileStore, err := OpenFile(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	t.Cleanup(func() { fileStore.Close() })

	return map[string]Store{"sqlite": sqliteStore, "file": fileStore}
}

func TestStore_JobAndStepStatusRoundtrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.JobStatus("extract", "run1")
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.SetJobStatus("extract", "run1", flow.StatusSuccess))
			status, ok, err := store.JobStatus("extract", "run1")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, flow.StatusSuccess, status)

			require.NoError(t, store.SetStepStatus("extract", "run1", "pull", flow.StatusSuccess))
			stepStatus, ok, err := store.StepStatus("extract", "run1", "pull")
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, flow.StatusSuccess, stepStatus)
		})
	}
}

func TestStore_LockMutualExclusion(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.TryAcquireLock("job:extract", "owner-a", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = store.TryAcquireLock("job:extract", "owner-b", time.Minute)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, store.ReleaseLock("job:extract", "owner-a"))

			ok, err = store.TryAcquireLock("job:extract", "owner-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestStore_ExpiredLockIsSwept(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.TryAcquireLock("job:report", "owner-a", -time.Second)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = store.TryAcquireLock("job:report", "owner-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok, "expired lock should have been swept")
		})
	}
}
