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

package step

import (
	"fmt"

	"github.com/aetherflow/aetherflow/internal/connector/db"
)

// dbExtractStep implements type "db.extract" (spec §4.5 "db" row
// read/fetchmany operations): runs a query against a named db resource
// and returns its rows, optionally streamed through FetchMany when a
// fetch_size is given.
type dbExtractStep struct {
	id        string
	resource  string
	sql       string
	params    map[string]any
	fetchSize int
}

func newDBExtract(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	query, err := requireString(inputs, "sql")
	if err != nil {
		return nil, err
	}
	return &dbExtractStep{
		id:        id,
		resource:  resource,
		sql:       query,
		params:    optStringMap(inputs, "params"),
		fetchSize: optInt(inputs, "fetch_size", 0),
	}, nil
}

func (s *dbExtractStep) Validate() error {
	if s.resource == "" || s.sql == "" {
		return fmt.Errorf("db.extract: resource and sql are required")
	}
	return nil
}

func (s *dbExtractStep) Run(ctx *Context) (Result, error) {
	conn, err := ctx.Connectors.DB(ctx, s.resource, nil)
	if err != nil {
		return Result{}, err
	}

	if s.fetchSize > 0 {
		fr, err := conn.FetchMany(ctx, s.sql, s.params, s.fetchSize, 0)
		if err != nil {
			return Result{}, err
		}
		var rows []db.Row
		for row := range fr.Rows {
			rows = append(rows, row)
		}
		if fr.Err != nil {
			if err := fr.Err(); err != nil {
				return Result{}, err
			}
		}
		return Result{Status: StatusSuccess, Output: map[string]any{
			"columns":   fr.Columns,
			"rows":      rows,
			"row_count": len(rows),
		}}, nil
	}

	columns, rows, err := conn.Read(ctx, s.sql, s.params)
	if err != nil {
		return Result{}, err
	}
	if len(rows) == 0 {
		return Result{Status: StatusSkipped, Reason: "no_data", Output: map[string]any{
			"columns":   columns,
			"rows":      rows,
			"row_count": 0,
		}}, nil
	}
	return Result{Status: StatusSuccess, Output: map[string]any{
		"columns":   columns,
		"rows":      rows,
		"row_count": len(rows),
	}}, nil
}

// dbExecuteStep implements type "db.execute" (spec §4.5 "db" row execute
// operation): runs a statement against a named db resource and reports
// affected rows.
type dbExecuteStep struct {
	id       string
	resource string
	sql      string
	params   map[string]any
}

func newDBExecute(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	query, err := requireString(inputs, "sql")
	if err != nil {
		return nil, err
	}
	return &dbExecuteStep{
		id:       id,
		resource: resource,
		sql:      query,
		params:   optStringMap(inputs, "params"),
	}, nil
}

func (s *dbExecuteStep) Validate() error {
	if s.resource == "" || s.sql == "" {
		return fmt.Errorf("db.execute: resource and sql are required")
	}
	return nil
}

func (s *dbExecuteStep) Run(ctx *Context) (Result, error) {
	conn, err := ctx.Connectors.DB(ctx, s.resource, nil)
	if err != nil {
		return Result{}, err
	}
	affected, err := conn.Execute(ctx, s.sql, s.params)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Output: map[string]any{
		"affected_rows": affected,
	}}, nil
}
