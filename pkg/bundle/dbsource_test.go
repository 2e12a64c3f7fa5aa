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

package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/connector/db"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

func seedAssets(t *testing.T, dbPath string, files map[string]string) {
	t.Helper()
	conn, err := db.NewSQL(db.DriverSQLite, "sqlite", dbPath)
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	_, err = conn.Execute(ctx, `CREATE TABLE assets (
		bundle TEXT NOT NULL,
		path TEXT NOT NULL,
		sha256 TEXT,
		data BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		size INTEGER NOT NULL,
		PRIMARY KEY (bundle, path)
	)`, nil)
	require.NoError(t, err)

	for path, content := range files {
		sum := sha256.Sum256([]byte(content))
		_, err = conn.Execute(ctx,
			`INSERT INTO assets (bundle, path, sha256, data, updated_at, size)
			 VALUES (:bundle, :path, :sha256, :data, :updated_at, :size)`,
			map[string]any{
				"bundle":     "prod",
				"path":       path,
				"sha256":     hex.EncodeToString(sum[:]),
				"data":       []byte(content),
				"updated_at": "2025-06-01T00:00:00Z",
				"size":       len(content),
			})
		require.NoError(t, err)
	}
}

func TestSync_DBSource(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "assets.db")
	seedAssets(t, dbPath, map[string]string{
		"flows/demo.yaml": "version: 1\n",
		"profiles.yaml":   "{}\n",
	})

	registry := connector.NewRegistry()
	connector.RegisterBuiltins(registry)

	s := &Synchronizer{
		Settings: settings.FromSnapshot(settings.Snapshot{}),
		Registry: registry,
		WorkRoot: t.TempDir(),
	}
	m := &flow.BundleManifest{
		Version: 1,
		Bundle: flow.BundleDescriptor{
			ID: "prod",
			Source: flow.BundleSource{
				Type:     flow.SourceDB,
				Resource: "assets",
				Bundle:   "prod",
			},
			Layout:      flow.BundleLayout{ProfilesFile: "profiles.yaml"},
			EntryFlow:   "flows/demo.yaml",
			FetchPolicy: flow.FetchPolicyCacheCheck,
		},
		Resources: map[string]flow.ResourceSpec{
			"assets": {
				Kind:   "db",
				Driver: "sqlite",
				Config: map[string]any{"dsn": dbPath},
			},
		},
	}

	res, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	data, err := os.ReadFile(filepath.Join(res.ActiveDir, "flows", "demo.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
	assert.FileExists(t, filepath.Join(res.ActiveDir, "profiles.yaml"))

	// The advertised sha256 is the cache identity: the blob must exist
	// under it.
	sum := sha256.Sum256([]byte("version: 1\n"))
	assert.FileExists(t, filepath.Join(res.CacheDir, hex.EncodeToString(sum[:])))

	res2, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)
	assert.False(t, res2.Changed)
}
