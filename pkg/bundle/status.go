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
	"sort"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// StatusResult is what `bundle status` reports: the current active
// fingerprint, whether the remote differs, and the per-file diff.
type StatusResult struct {
	BundleID          string   `json:"bundle_id"`
	ActiveFingerprint string   `json:"active_fingerprint,omitempty"`
	RemoteFingerprint string   `json:"remote_fingerprint"`
	InSync            bool     `json:"in_sync"`
	Added             []string `json:"added"`
	Removed           []string `json:"removed"`
	Changed           []string `json:"changed"`
}

// Status lists the remote source and diffs it against the last synced
// snapshot without materializing anything.
func (s *Synchronizer) Status(ctx context.Context, m *flow.BundleManifest, env map[string]string) (*StatusResult, error) {
	dirs := DirsFor(s.WorkRoot, m.Bundle.ID)

	src, mgr, err := s.openSource(ctx, m, env)
	if err != nil {
		return nil, err
	}
	if mgr != nil {
		defer mgr.CloseAll()
	}

	files, err := src.ListFiles(ctx, m.Bundle.Source.BasePath)
	if err != nil {
		return nil, err
	}
	remoteFingerprint, err := flow.ComputeFingerprint(files)
	if err != nil {
		return nil, err
	}

	out := &StatusResult{
		BundleID:          m.Bundle.ID,
		RemoteFingerprint: remoteFingerprint,
		Added:             []string{},
		Removed:           []string{},
		Changed:           []string{},
	}

	prev, err := loadLatestSnapshot(dirs.Fingerprints)
	if err != nil {
		return nil, err
	}
	if prev == nil {
		for _, f := range files {
			if !f.IsDir {
				out.Added = append(out.Added, f.RelPath)
			}
		}
		sort.Strings(out.Added)
		return out, nil
	}

	out.ActiveFingerprint = prev.Fingerprint
	out.InSync = prev.Fingerprint == remoteFingerprint

	prevByPath := make(map[string]SnapshotFile, len(prev.Files))
	for _, f := range prev.Files {
		prevByPath[f.Path] = f
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if f.IsDir {
			continue
		}
		seen[f.RelPath] = true
		prevFile, ok := prevByPath[f.RelPath]
		if !ok {
			out.Added = append(out.Added, f.RelPath)
			continue
		}
		changed := prevFile.signature() != f.Signature()
		if f.SHA256 == "" {
			// A listing without a sha compares on (size, mtime_ms) alone.
			changed = prevFile.Size != f.Size || prevFile.MtimeMs != f.MtimeMs
		}
		if changed {
			out.Changed = append(out.Changed, f.RelPath)
		}
	}
	for path := range prevByPath {
		if !seen[path] {
			out.Removed = append(out.Removed, path)
		}
	}

	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	return out, nil
}
