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

package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherflow/aetherflow/internal/settings"
)

func TestLoad_NoModuleConfigured(t *testing.T) {
	m, err := Load(settings.FromSnapshot(settings.Snapshot{}))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLoad_Base64Builtin(t *testing.T) {
	m, err := Load(settings.FromSnapshot(settings.Snapshot{
		"AETHERFLOW_SECRETS_MODULE": "base64",
	}))
	require.NoError(t, err)
	require.NotNil(t, m)

	got, err := m.Decode("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = m.Decode("base64:aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = m.Decode("!!!not-base64!!!")
	require.Error(t, err)
}

func TestLoad_UnknownModule(t *testing.T) {
	_, err := Load(settings.FromSnapshot(settings.Snapshot{
		"AETHERFLOW_SECRETS_MODULE": "vault",
	}))
	require.Error(t, err)
}

type expandingModule struct{}

func (expandingModule) Decode(s string) (string, error) { return s, nil }
func (expandingModule) ExpandEnv(env map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(env)+1)
	for k, v := range env {
		out[k] = v
	}
	out["EXPANDED"] = "yes"
	return out, nil
}

func TestExpander_OptionalHook(t *testing.T) {
	assert.Nil(t, Expander(nil))
	assert.Nil(t, Expander(base64Module{}))

	Register("expanding", expandingModule{})
	m, err := Load(settings.FromSnapshot(settings.Snapshot{
		"AETHERFLOW_SECRETS_MODULE": "expanding",
	}))
	require.NoError(t, err)
	e := Expander(m)
	require.NotNil(t, e)

	out, err := e.ExpandEnv(map[string]string{"A": "1"})
	require.NoError(t, err)
	assert.Equal(t, "yes", out["EXPANDED"])
	assert.Equal(t, "1", out["A"])
}
