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

package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// SQLiteStore is the sqlite state-store backend (job_runs/step_runs/locks),
// grounded on the teacher's internal/controller/backend/sqlite.Backend:
// same single-writer pragma set, same migrate-on-open shape.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if absent) the sqlite database at path and
// runs its migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("state: create state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: ping sqlite: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("state: %s: %w", p, err)
		}
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS job_runs (
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS step_runs (
			job_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			step_id TEXT NOT NULL,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (job_id, run_id, step_id)
		)`,
		`CREATE TABLE IF NOT EXISTS locks (
			key TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			expires_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("state: migrate: %w", err)
		}
	}
	return nil
}

// JobStatus implements Store.
func (s *SQLiteStore) JobStatus(jobID, runID string) (flow.RunStatus, bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM job_runs WHERE job_id = ? AND run_id = ?`, jobID, runID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state: job status: %w", err)
	}
	return flow.RunStatus(status), true, nil
}

// SetJobStatus implements Store.
func (s *SQLiteStore) SetJobStatus(jobID, runID string, status flow.RunStatus) error {
	_, err := s.db.Exec(`INSERT INTO job_runs (job_id, run_id, status, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(job_id, run_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		jobID, runID, string(status), nowRFC3339())
	if err != nil {
		return fmt.Errorf("state: set job status: %w", err)
	}
	return nil
}

// StepStatus implements Store.
func (s *SQLiteStore) StepStatus(jobID, runID, stepID string) (flow.RunStatus, bool, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM step_runs WHERE job_id = ? AND run_id = ? AND step_id = ?`,
		jobID, runID, stepID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state: step status: %w", err)
	}
	return flow.RunStatus(status), true, nil
}

// SetStepStatus implements Store.
func (s *SQLiteStore) SetStepStatus(jobID, runID, stepID string, status flow.RunStatus) error {
	_, err := s.db.Exec(`INSERT INTO step_runs (job_id, run_id, step_id, status, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id, run_id, step_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		jobID, runID, stepID, string(status), nowRFC3339())
	if err != nil {
		return fmt.Errorf("state: set step status: %w", err)
	}
	return nil
}

// TryAcquireLock implements Store: atomic insert-if-absent, sweeping
// expired rows first (spec §5 "TTL locks use atomic insert-if-absent
// semantics and a sweep of expired rows on each acquire attempt").
func (s *SQLiteStore) TryAcquireLock(key, owner string, ttl time.Duration) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("state: begin lock tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.Exec(`DELETE FROM locks WHERE expires_at <= ?`, now.Format(time.RFC3339Nano)); err != nil {
		return false, fmt.Errorf("state: sweep locks: %w", err)
	}

	expires := now.Add(ttl).Format(time.RFC3339Nano)
	res, err := tx.Exec(`INSERT OR IGNORE INTO locks (key, owner, expires_at) VALUES (?, ?, ?)`, key, owner, expires)
	if err != nil {
		return false, fmt.Errorf("state: insert lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("state: lock rows affected: %w", err)
	}
	if n == 0 {
		if err := tx.Commit(); err != nil {
			return false, err
		}
		return false, nil
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ReleaseLock implements Store.
func (s *SQLiteStore) ReleaseLock(key, owner string) error {
	_, err := s.db.Exec(`DELETE FROM locks WHERE key = ? AND owner = ?`, key, owner)
	if err != nil {
		return fmt.Errorf("state: release lock: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
