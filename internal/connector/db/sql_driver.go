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

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver name constants, matching ResourceSpec.Driver values recognized
// by the registry (builtins.go).
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// sqlDB adapts database/sql to the DB interface for any of the three
// built-in drivers. Named parameters (`:name`) in the flow's sql text
// are rewritten to each driver's native placeholder syntax.
type sqlDB struct {
	db         *sql.DB
	driverName string
}

// NewSQL opens a database/sql pool for one of the built-in SQL drivers.
// dsn is taken from ResourceSpec.Config["dsn"] by the registry wiring in
// builtins.go.
func NewSQL(driverName, sqlDriverName, dsn string) (DB, error) {
	conn, err := sql.Open(sqlDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driverName, err)
	}
	return &sqlDB{db: conn, driverName: driverName}, nil
}

func (d *sqlDB) rewrite(query string, params map[string]any) (string, []any) {
	if len(params) == 0 {
		return query, nil
	}
	var out strings.Builder
	args := make([]any, 0, len(params))
	n := 0
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch != ':' || i+1 >= len(query) || !isNameStart(query[i+1]) {
			out.WriteByte(ch)
			continue
		}
		j := i + 1
		for j < len(query) && isNameByte(query[j]) {
			j++
		}
		name := query[i+1 : j]
		if v, ok := params[name]; ok {
			n++
			args = append(args, v)
			out.WriteString(d.placeholder(n))
			i = j - 1
			continue
		}
		out.WriteByte(ch)
	}
	return out.String(), args
}

func (d *sqlDB) placeholder(n int) string {
	if d.driverName == DriverPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

func isNameStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isNameByte(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9')
}

func (d *sqlDB) Execute(ctx context.Context, query string, params map[string]any) (int64, error) {
	q, args := d.rewrite(query, params)
	res, err := d.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("db: execute: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db: rows affected: %w", err)
	}
	return n, nil
}

func (d *sqlDB) Read(ctx context.Context, query string, params map[string]any) ([]string, []Row, error) {
	q, args := d.rewrite(query, params)
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("db: read: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("db: columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("db: scan: %w", err)
		}
		out = append(out, Row(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("db: iterate: %w", err)
	}
	return cols, out, nil
}

func (d *sqlDB) FetchMany(ctx context.Context, query string, params map[string]any, fetchSize, sampleSize int) (*FetchResult, error) {
	q, args := d.rewrite(query, params)
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db: fetchmany: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("db: columns: %w", err)
	}

	if fetchSize <= 0 {
		fetchSize = 1
	}
	ch := make(chan Row, fetchSize)
	var iterErr error

	go func() {
		defer close(ch)
		defer rows.Close()
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				iterErr = fmt.Errorf("db: scan: %w", err)
				return
			}
			select {
			case ch <- Row(vals):
			case <-ctx.Done():
				iterErr = ctx.Err()
				return
			}
		}
		if err := rows.Err(); err != nil {
			iterErr = fmt.Errorf("db: iterate: %w", err)
		}
	}()

	return &FetchResult{
		Columns: cols,
		Rows:    ch,
		Err:     func() error { return iterErr },
	}, nil
}

func (d *sqlDB) Close() error {
	return d.db.Close()
}
