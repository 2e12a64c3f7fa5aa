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
	"fmt"

	"github.com/aetherflow/aetherflow/internal/connector/rest"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// restSource fetches bundle assets over HTTP: GET list_path returns a
// JSON array of file descriptors, GET fetch_path returns raw bytes
// (spec §4.4 "rest" row).
type restSource struct {
	conn        rest.REST
	bundle      string
	listPath    string
	fetchPath   string
	prefixParam string
}

// NewREST returns a bundle source backed by a rest connector and the
// manifest's bundle/list_path/fetch_path/prefix_param settings.
func NewREST(conn rest.REST, src flow.BundleSource) Source {
	s := &restSource{
		conn:        conn,
		bundle:      src.Bundle,
		listPath:    src.ListPath,
		fetchPath:   src.FetchPath,
		prefixParam: src.PrefixParam,
	}
	if s.listPath == "" {
		s.listPath = "/bundles/list"
	}
	if s.fetchPath == "" {
		s.fetchPath = "/bundles/fetch"
	}
	return s
}

// restFileEntry is one element of the list endpoint's JSON response.
type restFileEntry struct {
	Path    string `json:"path"`
	RelPath string `json:"rel_path"`
	Name    string `json:"name"`
	IsDir   bool   `json:"is_dir"`
	Size    int64  `json:"size"`
	MtimeMs int64  `json:"mtime_ms"`
	SHA256  string `json:"sha256"`
}

func (s *restSource) ListFiles(ctx context.Context, basePath string) ([]flow.RemoteFileMeta, error) {
	params := map[string]string{"bundle": s.bundle}
	if s.prefixParam != "" && basePath != "" {
		params[s.prefixParam] = basePath
	}
	resp, err := s.conn.Get(ctx, s.listPath, rest.Request{Params: params})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("bundle: rest source list returned HTTP %d", resp.StatusCode)
	}

	var entries []restFileEntry
	if err := resp.DecodeJSON(&entries); err != nil {
		return nil, fmt.Errorf("bundle: rest source list: %w", err)
	}

	out := make([]flow.RemoteFileMeta, 0, len(entries))
	for _, e := range entries {
		rel := e.RelPath
		if rel == "" {
			rel = e.Path
		}
		if rel == "" || e.IsDir {
			continue
		}
		key := e.Path
		if key == "" {
			key = rel
		}
		out = append(out, flow.RemoteFileMeta{
			RelPath: rel,
			Path:    key,
			Name:    e.Name,
			Size:    e.Size,
			MtimeMs: e.MtimeMs,
			SHA256:  e.SHA256,
		})
	}
	return out, nil
}

func (s *restSource) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.conn.Get(ctx, s.fetchPath, rest.Request{Params: map[string]string{
		"bundle": s.bundle,
		"path":   key,
	}})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("bundle: rest source fetch %s returned HTTP %d", key, resp.StatusCode)
	}
	return resp.Body, nil
}
