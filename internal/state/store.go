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

// Package state implements the three keyed stores from spec §3 "State
// store": job_runs, step_runs, and locks. Interface segregation follows
// the teacher's internal/controller/backend package (RunStore/RunLister/
// CheckpointStore composed into a full Backend); here the minimal surface
// the run executor needs is a single Store interface, with Open selecting
// the sqlite or file backend per FlowMeta.State.Backend (spec §3).
package state

import (
	"time"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Store is the persistent state contract the run executor resumes
// against (spec §4.3 "Consult state: if prior status is SUCCESS or
// SKIPPED, skip") and the with_lock meta-step acquires TTL locks
// against (spec §9 "with_lock").
type Store interface {
	// JobStatus returns the persisted status for (jobID, runID), or
	// ok=false if no status has been recorded yet.
	JobStatus(jobID, runID string) (status flow.RunStatus, ok bool, err error)

	// SetJobStatus persists the status for (jobID, runID).
	SetJobStatus(jobID, runID string, status flow.RunStatus) error

	// StepStatus returns the persisted status for (jobID, runID, stepID).
	StepStatus(jobID, runID, stepID string) (status flow.RunStatus, ok bool, err error)

	// SetStepStatus persists the status for (jobID, runID, stepID).
	SetStepStatus(jobID, runID, stepID string, status flow.RunStatus) error

	// TryAcquireLock attempts an atomic insert-if-absent of a TTL lock
	// keyed by key, owned by owner, expiring after ttl. Expired rows are
	// swept on every attempt (spec §5 "Shared resources").
	TryAcquireLock(key, owner string, ttl time.Duration) (acquired bool, err error)

	// ReleaseLock releases a lock previously acquired by owner. Releasing
	// a lock not held by owner, or already expired, is a no-op.
	ReleaseLock(key, owner string) error

	// Close releases any underlying resources (file handles, DB
	// connections). Best-effort and idempotent.
	Close() error
}

// Open selects and opens the backend named by cfg, relative to
// workRoot when cfg.Path is not already absolute.
func Open(cfg flow.StateConfig, workRoot string) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "state.db"
	}
	switch cfg.Backend {
	case flow.StateBackendFile, "":
		return OpenFile(resolveStatePath(workRoot, path))
	case flow.StateBackendSQLite:
		return OpenSQLite(resolveStatePath(workRoot, path))
	default:
		return OpenSQLite(resolveStatePath(workRoot, path))
	}
}
