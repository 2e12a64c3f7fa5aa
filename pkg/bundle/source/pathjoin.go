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

package source

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// JoinSFTP composes an SFTP remote path with POSIX semantics.
func JoinSFTP(base string, segs ...string) string {
	return path.Join(append([]string{base}, segs...)...)
}

// JoinSMB composes an SMB remote path. SMB bases carry a `SHARE:/...`
// prefix that naive path primitives would mangle (path.Clean collapses
// the `:` segment boundary), so the share prefix is split off, the
// remainder is joined with `/`, and the prefix is restored (spec §4.4
// "Remote path composition").
func JoinSMB(base string, segs ...string) string {
	share := ""
	rest := base
	if i := strings.Index(base, ":/"); i >= 0 {
		share = base[:i+1]
		rest = base[i+1:]
	}
	parts := []string{strings.Trim(rest, "/")}
	for _, seg := range segs {
		if seg = strings.Trim(seg, "/"); seg != "" {
			parts = append(parts, seg)
		}
	}
	joined := strings.Join(parts, "/")
	joined = strings.TrimPrefix(joined, "/")
	if share != "" {
		return share + "/" + joined
	}
	return "/" + joined
}

// JoinLocal composes a local filesystem path with the host separator.
func JoinLocal(base string, segs ...string) string {
	return filepath.Join(append([]string{base}, segs...)...)
}

// JoinRemote dispatches to the joiner for the given source type.
func JoinRemote(t flow.BundleSourceType, base string, segs ...string) string {
	switch t {
	case flow.SourceSMB:
		return JoinSMB(base, segs...)
	case flow.SourceFilesystem:
		return JoinLocal(base, segs...)
	default:
		return JoinSFTP(base, segs...)
	}
}
