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
	"time"

	"github.com/aetherflow/aetherflow/internal/connector/db"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Default statements over the assets(bundle, path, sha256, data,
// updated_at, size) schema from spec §4.4's source table, used when the
// manifest does not override list_sql/fetch_sql.
const (
	defaultListSQL  = "SELECT path, sha256, size, updated_at FROM assets WHERE bundle = :bundle"
	defaultFetchSQL = "SELECT data FROM assets WHERE bundle = :bundle AND path = :path"
)

// dbSource reads bundle assets out of a relational table.
type dbSource struct {
	conn     db.DB
	bundle   string
	listSQL  string
	fetchSQL string
}

// NewDB returns a bundle source backed by a db connector and the
// manifest's bundle/list_sql/fetch_sql settings.
func NewDB(conn db.DB, src flow.BundleSource) Source {
	s := &dbSource{
		conn:     conn,
		bundle:   src.Bundle,
		listSQL:  src.ListSQL,
		fetchSQL: src.FetchSQL,
	}
	if s.listSQL == "" {
		s.listSQL = defaultListSQL
	}
	if s.fetchSQL == "" {
		s.fetchSQL = defaultFetchSQL
	}
	return s
}

func (s *dbSource) ListFiles(ctx context.Context, basePath string) ([]flow.RemoteFileMeta, error) {
	columns, rows, err := s.conn.Read(ctx, s.listSQL, map[string]any{"bundle": s.bundle})
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	pathIdx, ok := idx["path"]
	if !ok {
		return nil, fmt.Errorf("bundle: db source list_sql must select a \"path\" column")
	}

	out := make([]flow.RemoteFileMeta, 0, len(rows))
	for _, row := range rows {
		relPath, _ := row[pathIdx].(string)
		if relPath == "" {
			continue
		}
		meta := flow.RemoteFileMeta{RelPath: relPath, Path: relPath}
		if i, ok := idx["sha256"]; ok {
			if sha, ok := row[i].(string); ok {
				meta.SHA256 = sha
			}
		}
		if i, ok := idx["size"]; ok {
			meta.Size = toInt64(row[i])
		}
		if i, ok := idx["updated_at"]; ok {
			meta.MtimeMs = toMtimeMs(row[i])
		}
		out = append(out, meta)
	}
	return out, nil
}

func (s *dbSource) ReadBytes(ctx context.Context, key string) ([]byte, error) {
	_, rows, err := s.conn.Read(ctx, s.fetchSQL, map[string]any{"bundle": s.bundle, "path": key})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("bundle: db source has no asset (%s, %s)", s.bundle, key)
	}
	switch data := rows[0][0].(type) {
	case []byte:
		return data, nil
	case string:
		return []byte(data), nil
	default:
		return nil, fmt.Errorf("bundle: db source asset (%s, %s) has non-blob data column", s.bundle, key)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toMtimeMs(v any) int64 {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case int64:
		return t
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UnixMilli()
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return ts.UnixMilli()
		}
	}
	return 0
}
