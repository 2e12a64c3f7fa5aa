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
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// SnapshotFile is one file entry persisted in a fingerprint snapshot
// (spec §4.4 "fingerprints/" layout). Snapshot files are part of the
// external interface; consumers may diff them across syncs.
type SnapshotFile struct {
	Path    string `json:"path"`
	SHA256  string `json:"sha256,omitempty"`
	Size    int64  `json:"size,omitempty"`
	MtimeMs int64  `json:"mtime,omitempty"`
}

// Snapshot is the persisted per-fingerprint file listing.
type Snapshot struct {
	Version           int            `json:"version"`
	BundleID          string         `json:"bundle_id"`
	Fingerprint       string         `json:"fingerprint"`
	CreatedAt         string         `json:"created_at"`
	Source            SnapshotSource `json:"source"`
	Files             []SnapshotFile `json:"files"`
	StrictFingerprint bool           `json:"strict_fingerprint,omitempty"`
}

// SnapshotSource records where the snapshot's content came from.
type SnapshotSource struct {
	Type     string `json:"type"`
	BasePath string `json:"base_path,omitempty"`
}

// latestPointer is the content of fingerprints/latest.json: the current
// fingerprint and the snapshot file it refers to.
type latestPointer struct {
	Fingerprint  string `json:"fingerprint"`
	SnapshotFile string `json:"snapshot_file"`
}

// signature returns the same identity string flow.RemoteFileMeta would
// produce for this persisted entry (the sha form once a sha is recorded).
func (f SnapshotFile) signature() string {
	return flow.RemoteFileMeta{RelPath: f.Path, SHA256: f.SHA256, Size: f.Size, MtimeMs: f.MtimeMs}.Signature()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// loadLatestSnapshot reads latest.json and the snapshot it points to.
// A missing pointer or snapshot returns (nil, nil): first sync.
func loadLatestSnapshot(fingerprintsDir string) (*Snapshot, error) {
	var ptr latestPointer
	if err := readJSON(filepath.Join(fingerprintsDir, "latest.json"), &ptr); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if ptr.SnapshotFile == "" {
		return nil, nil
	}
	var snap Snapshot
	if err := readJSON(filepath.Join(fingerprintsDir, ptr.SnapshotFile), &snap); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}
