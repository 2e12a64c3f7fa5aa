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

package flow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

func sizeMtimeSignature(size, mtimeMs int64) string {
	return fmt.Sprintf("sz:%d|mt_ms:%d", size, mtimeMs)
}

// fingerprintEntry is the (rel_path, signature) pair hashed by
// ComputeFingerprint (spec §3 "Fingerprint").
type fingerprintEntry struct {
	RelPath   string `json:"rel_path"`
	Signature string `json:"signature"`
}

// ComputeFingerprint returns the SHA-256 hex digest of the JSON array of
// (rel_path, signature) pairs, sorted by rel_path — the bundle
// synchronizer's reproducible content identity (spec §3 "Fingerprint",
// §4.4 "strict-fingerprint hashing").
func ComputeFingerprint(files []RemoteFileMeta) (string, error) {
	entries := make([]fingerprintEntry, 0, len(files))
	for _, f := range files {
		if f.IsDir {
			continue
		}
		entries = append(entries, fingerprintEntry{RelPath: f.RelPath, Signature: f.Signature()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })

	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
