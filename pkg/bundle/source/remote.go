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
	"context"

	"github.com/aetherflow/aetherflow/internal/connector/sftp"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// remoteSource serves both the sftp and smb kinds: they share the
// FileTransfer contract and differ only in path composition (spec §4.4
// "Remote path composition"), which the join function encapsulates.
type remoteSource struct {
	conn sftp.FileTransfer
	kind flow.BundleSourceType
	join func(base string, segs ...string) string
}

// NewSFTP returns a bundle source backed by an sftp connector.
func NewSFTP(conn sftp.FileTransfer) Source {
	return &remoteSource{conn: conn, kind: flow.SourceSFTP, join: JoinSFTP}
}

// NewSMB returns a bundle source backed by an smb connector. Remote
// paths may carry a `SHARE:/...` prefix which the joiner preserves.
func NewSMB(conn sftp.FileTransfer) Source {
	return &remoteSource{conn: conn, kind: flow.SourceSMB, join: JoinSMB}
}

// ListFiles walks the remote tree rooted at basePath depth-first,
// collecting size/mtime from each listing entry (cheap on both
// transports; sha256 is never computed remotely).
func (s *remoteSource) ListFiles(ctx context.Context, basePath string) ([]flow.RemoteFileMeta, error) {
	var out []flow.RemoteFileMeta
	var walk func(dir, relPrefix string) error
	walk = func(dir, relPrefix string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		entries, err := s.conn.List(ctx, dir)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			name := entry.Name
			if name == "" {
				name = entry.RelPath
			}
			rel := name
			if relPrefix != "" {
				rel = relPrefix + "/" + name
			}
			if entry.IsDir {
				if err := walk(s.join(dir, name), rel); err != nil {
					return err
				}
				continue
			}
			full := entry.Path
			if full == "" {
				full = s.join(dir, name)
			}
			out = append(out, flow.RemoteFileMeta{
				RelPath: rel,
				Path:    full,
				Name:    name,
				Size:    entry.Size,
				MtimeMs: entry.MtimeMs,
			})
		}
		return nil
	}
	if err := walk(basePath, ""); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *remoteSource) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	return s.conn.ReadBytes(ctx, key)
}
