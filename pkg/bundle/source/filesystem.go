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
	"io/fs"
	"os"
	"path/filepath"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// filesystemSource walks a local directory tree. Size and mtime are
// populated from the stat; sha256 is left empty (spec §4.4 "no sha") so
// reuse relies on (size, mtime_ms) unless strict_fingerprint hashes it.
type filesystemSource struct{}

// NewFilesystem returns the local-filesystem bundle source.
func NewFilesystem() Source {
	return filesystemSource{}
}

func (filesystemSource) ListFiles(ctx context.Context, basePath string) ([]flow.RemoteFileMeta, error) {
	var out []flow.RemoteFileMeta
	err := filepath.WalkDir(basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(basePath, p)
		if err != nil {
			return err
		}
		out = append(out, flow.RemoteFileMeta{
			RelPath: filepath.ToSlash(rel),
			Path:    p,
			Name:    d.Name(),
			Size:    info.Size(),
			MtimeMs: info.ModTime().UnixMilli(),
		})
		return nil
	})
	if err != nil {
		return nil, &aetherrors.ConnectorError{Kind: "filesystem", Resource: basePath, Op: "list", Cause: err}
	}
	return out, nil
}

func (filesystemSource) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, &aetherrors.ConnectorError{Kind: "filesystem", Resource: key, Op: "read", Cause: err}
	}
	return data, nil
}
