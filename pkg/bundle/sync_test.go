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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/bundle/source"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func filesystemManifest(basePath string) *flow.BundleManifest {
	return &flow.BundleManifest{
		Version: 1,
		Mode:    flow.BundleModeInternalFast,
		Bundle: flow.BundleDescriptor{
			ID: "demo",
			Source: flow.BundleSource{
				Type:     flow.SourceFilesystem,
				BasePath: basePath,
			},
			Layout:      flow.BundleLayout{ProfilesFile: "profiles.yaml"},
			EntryFlow:   "flows/demo.yaml",
			FetchPolicy: flow.FetchPolicyCacheCheck,
		},
	}
}

func newSynchronizer(t *testing.T) *Synchronizer {
	t.Helper()
	return &Synchronizer{
		Settings: settings.FromSnapshot(settings.Snapshot{}),
		Registry: connector.NewRegistry(),
		WorkRoot: t.TempDir(),
	}
}

func TestSync_FilesystemTwice(t *testing.T) {
	remote := t.TempDir()
	writeTree(t, remote, map[string]string{
		"flows/demo.yaml": "version: 1\n",
		"profiles.yaml":   "{}\n",
		"plugins/x.py":    "print('v1')\n",
	})
	s := newSynchronizer(t)
	m := filesystemManifest(remote)

	res, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.FileExists(t, filepath.Join(res.FingerprintsDir, "latest.json"))
	assert.FileExists(t, filepath.Join(res.ActiveDir, "flows", "demo.yaml"))
	assert.FileExists(t, filepath.Join(res.ActiveDir, "profiles.yaml"))
	assert.FileExists(t, filepath.Join(res.ActiveDir, "plugins", "x.py"))

	res2, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)
	assert.False(t, res2.Changed)
	assert.Empty(t, res2.FetchedFiles)
	assert.Equal(t, res.Fingerprint, res2.Fingerprint)

	// Modify one file; make sure the mtime signature moves even on
	// second-resolution filesystems.
	modified := filepath.Join(remote, "plugins", "x.py")
	require.NoError(t, os.WriteFile(modified, []byte("print('v2 longer')\n"), 0o644))
	future := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(modified, future, future))

	res3, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)
	assert.True(t, res3.Changed)
	assert.Equal(t, []string{"plugins/x.py"}, res3.FetchedFiles)
	assert.NotEqual(t, res.Fingerprint, res3.Fingerprint)

	data, err := os.ReadFile(filepath.Join(res3.ActiveDir, "plugins", "x.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('v2 longer')\n", string(data))
}

func TestSync_MissingEntryFlowFails(t *testing.T) {
	remote := t.TempDir()
	writeTree(t, remote, map[string]string{"profiles.yaml": "{}\n"})
	s := newSynchronizer(t)
	m := filesystemManifest(remote)

	_, err := s.Sync(context.Background(), m, nil, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry flow")
	assert.FileExists(t, filepath.Join(s.WorkRoot, "bundles", "demo", "last_error.json"))
}

func TestSync_AllowStaleReturnsPreviousActive(t *testing.T) {
	remote := t.TempDir()
	writeTree(t, remote, map[string]string{
		"flows/demo.yaml": "version: 1\n",
		"profiles.yaml":   "{}\n",
	})
	s := newSynchronizer(t)
	m := filesystemManifest(remote)

	res, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)

	// Break the remote: entry flow gone.
	require.NoError(t, os.Remove(filepath.Join(remote, "flows", "demo.yaml")))

	_, err = s.Sync(context.Background(), m, nil, Options{})
	require.Error(t, err)

	stale, err := s.Sync(context.Background(), m, nil, Options{AllowStale: true})
	require.NoError(t, err)
	assert.True(t, stale.Stale)
	assert.Equal(t, res.Fingerprint, stale.Fingerprint)
}

func TestRecoverPromotion_RollsBackAndSweeps(t *testing.T) {
	work := t.TempDir()
	dirs := DirsFor(work, "demo")
	require.NoError(t, os.MkdirAll(dirs.Active+".old", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dirs.Active+".old", "f"), []byte("x"), 0o644))

	// Killed between active -> active.old and staged -> active: roll back.
	require.NoError(t, recoverPromotion(dirs))
	assert.DirExists(t, dirs.Active)
	assert.NoDirExists(t, dirs.Active+".old")

	// Killed between staged -> active and cleanup: sweep the leftover.
	require.NoError(t, os.MkdirAll(dirs.Active+".old", 0o755))
	require.NoError(t, recoverPromotion(dirs))
	assert.DirExists(t, dirs.Active)
	assert.NoDirExists(t, dirs.Active+".old")
}

func TestStatus_DiffAgainstSnapshot(t *testing.T) {
	remote := t.TempDir()
	writeTree(t, remote, map[string]string{
		"flows/demo.yaml": "version: 1\n",
		"profiles.yaml":   "{}\n",
		"plugins/x.py":    "print('v1')\n",
	})
	s := newSynchronizer(t)
	m := filesystemManifest(remote)

	_, err := s.Sync(context.Background(), m, nil, Options{})
	require.NoError(t, err)

	st, err := s.Status(context.Background(), m, nil)
	require.NoError(t, err)
	assert.True(t, st.InSync)
	assert.Empty(t, st.Added)
	assert.Empty(t, st.Removed)
	assert.Empty(t, st.Changed)

	modified := filepath.Join(remote, "plugins", "x.py")
	require.NoError(t, os.WriteFile(modified, []byte("print('v2 longer')\n"), 0o644))
	future := time.Now().Add(5 * time.Second)
	require.NoError(t, os.Chtimes(modified, future, future))
	writeTree(t, remote, map[string]string{"flows/extra.yaml": "version: 1\n"})
	require.NoError(t, os.Remove(filepath.Join(remote, "profiles.yaml")))

	st, err = s.Status(context.Background(), m, nil)
	require.NoError(t, err)
	assert.False(t, st.InSync)
	assert.Equal(t, []string{"flows/extra.yaml"}, st.Added)
	assert.Equal(t, []string{"profiles.yaml"}, st.Removed)
	assert.Equal(t, []string{"plugins/x.py"}, st.Changed)
}

func TestFingerprint_OrderIndependent(t *testing.T) {
	a := []flow.RemoteFileMeta{
		{RelPath: "a.txt", Size: 3, MtimeMs: 1000},
		{RelPath: "b.txt", SHA256: "deadbeef"},
	}
	b := []flow.RemoteFileMeta{
		{RelPath: "b.txt", SHA256: "deadbeef"},
		{RelPath: "a.txt", Size: 3, MtimeMs: 1000},
	}
	fa, err := flow.ComputeFingerprint(a)
	require.NoError(t, err)
	fb, err := flow.ComputeFingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestJoinSMB_PreservesSharePrefix(t *testing.T) {
	assert.Equal(t, "SHARE:/inbound/sub", source.JoinSMB("SHARE:/inbound", "sub"))
	assert.Equal(t, "SHARE:/inbound/a/b", source.JoinSMB("SHARE:/inbound/", "a", "b"))
	assert.Equal(t, "/plain/dir/x", source.JoinSMB("/plain/dir", "x"))
}
