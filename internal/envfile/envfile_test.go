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

package envfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

func TestLoad_Dotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`
# comment
PLAIN=value
QUOTED="with spaces"
SINGLE='single'
IGNORED LINE
`), 0o644))

	kv, err := Load(flow.EnvFileSpec{Type: flow.EnvFileDotenv, Path: path})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"PLAIN":  "value",
		"QUOTED": "with spaces",
		"SINGLE": "single",
	}, kv)
}

func TestLoad_JSONWithPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"A": "1", "B": 2}`), 0o644))

	kv, err := Load(flow.EnvFileSpec{Type: flow.EnvFileJSON, Path: path, Prefix: "APP_"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"APP_A": "1", "APP_B": "2"}, kv)
}

func TestLoad_Dir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "TOKEN"), []byte("secret\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "HOST"), []byte("db.internal"), 0o644))

	kv, err := Load(flow.EnvFileSpec{Type: flow.EnvFileDir, Path: dir})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"TOKEN": "secret", "HOST": "db.internal"}, kv)
}

func TestLoad_OptionalMissing(t *testing.T) {
	kv, err := Load(flow.EnvFileSpec{Type: flow.EnvFileDotenv, Path: "/nope/.env", Optional: true})
	require.NoError(t, err)
	assert.Empty(t, kv)

	_, err = Load(flow.EnvFileSpec{Type: flow.EnvFileDotenv, Path: "/nope/.env"})
	require.Error(t, err)
}
