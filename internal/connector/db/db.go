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

// Package db implements the db connector kind contract (spec §4.5): a
// single DB interface duck-typed by every SQL driver (Postgres, MySQL,
// SQLite), regardless of transport.
package db

import "context"

// Row is one returned row, positional by column.
type Row []any

// FetchResult streams rows from a db.FetchMany call. Rows is closed
// when the cursor is exhausted or the context is canceled; a non-nil
// Err is only valid to read after Rows closes.
type FetchResult struct {
	Columns []string
	Rows    <-chan Row
	Err     func() error
}

// DB is the kind contract every db driver (pgx, mysql, sqlite) must
// satisfy (spec §4.5 "db" row).
type DB interface {
	// Execute runs a mutating statement and returns the affected row count.
	Execute(ctx context.Context, sql string, params map[string]any) (affectedRows int64, err error)

	// Read runs a query and buffers every row in memory.
	Read(ctx context.Context, sql string, params map[string]any) (columns []string, rows []Row, err error)

	// FetchMany runs a query and streams rows through a channel, useful
	// for large result sets. fetchSize sizes the read-ahead buffer;
	// sampleSize is part of the contract but the SQL driver ignores it.
	FetchMany(ctx context.Context, sql string, params map[string]any, fetchSize, sampleSize int) (*FetchResult, error)

	// Close releases the underlying connection pool. Idempotent.
	Close() error
}
