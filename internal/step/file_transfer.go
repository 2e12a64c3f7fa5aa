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
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/connector/sftp"
)

// defaultTransferWorkers bounds the fan-out when a step does not declare
// its own worker count (spec §5 "thread-pool fan-out of uploads/downloads
// with a configurable worker count and fail-fast semantics").
const defaultTransferWorkers = 4

// fileTransfer resolves the named resource to the shared sftp/smb
// FileTransfer contract, whichever kind the resource declares.
func fileTransfer(ctx *Context, name string) (sftp.FileTransfer, error) {
	res, ok := ctx.RunCtx.Resources[name]
	if !ok {
		return nil, fmt.Errorf("file_transfer: unknown resource %q", name)
	}
	switch res.Kind {
	case connector.KindSFTP:
		return ctx.Connectors.SFTP(ctx, name, nil)
	case connector.KindSMB:
		return ctx.Connectors.SMB(ctx, name, nil)
	default:
		return nil, fmt.Errorf("file_transfer: resource %q is kind %q, want sftp or smb", name, res.Kind)
	}
}

// transferJob is one (local, remote) pair dispatched to a worker.
type transferJob struct {
	local  string
	remote string
}

// runTransfers fans jobs out over a bounded worker pool and fails fast:
// the first error cancels the remaining queue (workers drain it without
// doing work) and is returned after all in-flight transfers settle.
func runTransfers(jobs []transferJob, workers int, do func(transferJob) error) ([]string, error) {
	if workers <= 0 {
		workers = defaultTransferWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	var (
		mu       sync.Mutex
		firstErr error
		done     []string
	)
	queue := make(chan transferJob)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				mu.Lock()
				failed := firstErr != nil
				mu.Unlock()
				if failed {
					continue
				}
				err := do(job)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					done = append(done, job.remote)
				}
				mu.Unlock()
			}
		}()
	}
	for _, job := range jobs {
		queue <- job
	}
	close(queue)
	wg.Wait()

	sort.Strings(done)
	return done, firstErr
}

// fileTransferUploadStep implements type "file_transfer.upload": expand
// local glob patterns under the sandbox, then upload each match to
// remote_dir over the named sftp/smb resource.
type fileTransferUploadStep struct {
	id        string
	resource  string
	files     []string
	remoteDir string
	workers   int
	mkdirs    bool
}

func newFileTransferUpload(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	files, err := optStringSlice(inputs, "files")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("file_transfer.upload: inputs.files must be a non-empty list")
	}
	remoteDir, err := requireString(inputs, "remote_dir")
	if err != nil {
		return nil, err
	}
	return &fileTransferUploadStep{
		id:        id,
		resource:  resource,
		files:     files,
		remoteDir: remoteDir,
		workers:   optInt(inputs, "workers", defaultTransferWorkers),
		mkdirs:    optBool(inputs, "mkdirs", true),
	}, nil
}

func (s *fileTransferUploadStep) Validate() error {
	if s.resource == "" || s.remoteDir == "" || len(s.files) == 0 {
		return fmt.Errorf("file_transfer.upload: resource, remote_dir, and files are required")
	}
	return nil
}

// expandLocal resolves each pattern through the sandbox and expands
// doublestar globs against the filesystem. A pattern with no glob
// metacharacters must name an existing file.
func (s *fileTransferUploadStep) expandLocal(ctx *Context) ([]string, error) {
	var out []string
	for _, pattern := range s.files {
		resolved, err := ctx.Sandbox.Resolve(pattern)
		if err != nil {
			return nil, err
		}
		if !hasGlobMeta(pattern) {
			if _, err := os.Stat(resolved); err != nil {
				return nil, fmt.Errorf("file_transfer.upload: %s: %w", pattern, err)
			}
			out = append(out, resolved)
			continue
		}
		matches, err := doublestar.FilepathGlob(resolved)
		if err != nil {
			return nil, fmt.Errorf("file_transfer.upload: glob %s: %w", pattern, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

func hasGlobMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func (s *fileTransferUploadStep) Run(ctx *Context) (Result, error) {
	conn, err := fileTransfer(ctx, s.resource)
	if err != nil {
		return Result{}, err
	}

	locals, err := s.expandLocal(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(locals) == 0 {
		return Result{Status: StatusSkipped, Reason: "no_data", Output: map[string]any{
			"uploaded": []string{}, "count": 0,
		}}, nil
	}

	if s.mkdirs {
		if err := conn.MkdirRecursive(ctx, s.remoteDir); err != nil {
			return Result{}, err
		}
	}

	jobs := make([]transferJob, len(locals))
	for i, local := range locals {
		jobs[i] = transferJob{local: local, remote: path.Join(s.remoteDir, filepath.Base(local))}
	}
	uploaded, err := runTransfers(jobs, s.workers, func(job transferJob) error {
		return conn.Upload(ctx, job.local, job.remote)
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Output: map[string]any{
		"uploaded": uploaded,
		"count":    len(uploaded),
	}}, nil
}

// fileTransferDownloadStep implements type "file_transfer.download":
// list remote_dir on the named sftp/smb resource, filter by pattern,
// and download each match into local_dir under the sandbox.
type fileTransferDownloadStep struct {
	id       string
	resource string
	remoteDir string
	pattern  string
	localDir string
	workers  int
}

func newFileTransferDownload(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	remoteDir, err := requireString(inputs, "remote_dir")
	if err != nil {
		return nil, err
	}
	localDir, err := requireString(inputs, "local_dir")
	if err != nil {
		return nil, err
	}
	return &fileTransferDownloadStep{
		id:        id,
		resource:  resource,
		remoteDir: remoteDir,
		pattern:   optString(inputs, "pattern", "*"),
		localDir:  localDir,
		workers:   optInt(inputs, "workers", defaultTransferWorkers),
	}, nil
}

func (s *fileTransferDownloadStep) Validate() error {
	if s.resource == "" || s.remoteDir == "" || s.localDir == "" {
		return fmt.Errorf("file_transfer.download: resource, remote_dir, and local_dir are required")
	}
	return nil
}

func (s *fileTransferDownloadStep) Run(ctx *Context) (Result, error) {
	conn, err := fileTransfer(ctx, s.resource)
	if err != nil {
		return Result{}, err
	}
	localDir, err := ctx.Sandbox.Resolve(s.localDir)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return Result{}, err
	}

	entries, err := conn.List(ctx, s.remoteDir)
	if err != nil {
		return Result{}, err
	}
	var jobs []transferJob
	for _, entry := range entries {
		if entry.IsDir {
			continue
		}
		name := entry.Name
		if name == "" {
			name = path.Base(entry.RelPath)
		}
		ok, err := doublestar.Match(s.pattern, name)
		if err != nil {
			return Result{}, fmt.Errorf("file_transfer.download: pattern %s: %w", s.pattern, err)
		}
		if !ok {
			continue
		}
		remote := entry.Path
		if remote == "" {
			remote = path.Join(s.remoteDir, name)
		}
		jobs = append(jobs, transferJob{local: filepath.Join(localDir, name), remote: remote})
	}
	if len(jobs) == 0 {
		return Result{Status: StatusSkipped, Reason: "no_data", Output: map[string]any{
			"downloaded": []string{}, "count": 0,
		}}, nil
	}

	var (
		mu    sync.Mutex
		local []string
	)
	_, err = runTransfers(jobs, s.workers, func(job transferJob) error {
		if err := conn.Download(ctx, job.remote, job.local); err != nil {
			return err
		}
		mu.Lock()
		local = append(local, job.local)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	sort.Strings(local)
	return Result{Status: StatusSuccess, Output: map[string]any{
		"downloaded": local,
		"count":      len(local),
	}}, nil
}
