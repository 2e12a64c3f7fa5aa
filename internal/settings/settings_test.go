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

package settings

import "testing"

func TestFromSnapshot_Defaults(t *testing.T) {
	s := FromSnapshot(Snapshot{})

	if s.LogLevel != "info" {
		t.Errorf("expected default LogLevel 'info', got %q", s.LogLevel)
	}
	if s.LogFormat != "json" {
		t.Errorf("expected default LogFormat 'json', got %q", s.LogFormat)
	}
	if s.ConnectorCacheDefault != CacheRun {
		t.Errorf("expected default cache policy 'run', got %q", s.ConnectorCacheDefault)
	}
	if s.Mode != ModeInternalFast {
		t.Errorf("expected default mode 'internal_fast', got %q", s.Mode)
	}
}

func TestFromSnapshot_PluginPaths(t *testing.T) {
	s := FromSnapshot(Snapshot{
		"AETHERFLOW_PLUGIN_PATHS": "/opt/a.so, /opt/b.so,,/opt/c.so",
	})

	want := []string{"/opt/a.so", "/opt/b.so", "/opt/c.so"}
	if len(s.PluginPaths) != len(want) {
		t.Fatalf("expected %d plugin paths, got %d: %v", len(want), len(s.PluginPaths), s.PluginPaths)
	}
	for i, p := range want {
		if s.PluginPaths[i] != p {
			t.Errorf("plugin path %d = %q, want %q", i, s.PluginPaths[i], p)
		}
	}
}

func TestFromSnapshot_ModeEnterpriseOverridesMode(t *testing.T) {
	s := FromSnapshot(Snapshot{
		"AETHERFLOW_MODE":            "internal_fast",
		"AETHERFLOW_MODE_ENTERPRISE": "true",
	})
	if !s.IsEnterprise() {
		t.Error("expected AETHERFLOW_MODE_ENTERPRISE=true to force enterprise mode")
	}
}

func TestValidate_RejectsUnknownKey(t *testing.T) {
	snap := Snapshot{"AETHERFLOW_BOGUS_KEY": "1"}
	s := FromSnapshot(snap)
	if err := s.Validate(snap); err == nil {
		t.Error("expected Validate to reject an unrecognized AETHERFLOW_* key")
	}
}

func TestValidate_RejectsConflictingProfileSources(t *testing.T) {
	snap := Snapshot{
		"AETHERFLOW_PROFILES_FILE": "/etc/profiles.yaml",
		"AETHERFLOW_PROFILES_JSON": `{"default": {}}`,
	}
	s := FromSnapshot(snap)
	if err := s.Validate(snap); err == nil {
		t.Error("expected Validate to reject both PROFILES_FILE and PROFILES_JSON set")
	}
}

func TestValidate_AcceptsKnownKeys(t *testing.T) {
	snap := Snapshot{
		"AETHERFLOW_LOG_LEVEL":  "debug",
		"AETHERFLOW_LOG_FORMAT": "text",
		"PATH":                  "/usr/bin", // non-AETHERFLOW_ keys are ignored
	}
	s := FromSnapshot(snap)
	if err := s.Validate(snap); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestSnapshotFromEnviron(t *testing.T) {
	snap := SnapshotFromEnviron()
	if snap == nil {
		t.Fatal("expected non-nil snapshot")
	}
}
