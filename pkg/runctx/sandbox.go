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

package runctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

// Sandbox resolves user-supplied paths against a job's artifacts and
// work roots (spec §4.3 "Sandbox"). A relative path is always anchored
// at the artifacts directory and must stay inside it. An absolute path is accepted only if it
// resolves under a declared allowed root. In enterprise mode the only
// allowed root is the job's artifacts directory.
type Sandbox struct {
	artifactsRoot string
	allowedRoots  []string
}

// NewSandbox builds the Sandbox for one job directory. strictSandbox
// narrows the allowed roots to just the artifacts directory even
// outside enterprise mode (spec §6 AETHERFLOW_STRICT_SANDBOX); enterprise
// always narrows regardless of that flag.
func NewSandbox(dirs JobDirs, workRoot string, strictSandbox, enterprise bool) *Sandbox {
	roots := []string{dirs.Artifacts}
	if !strictSandbox && !enterprise {
		roots = append(roots, workRoot)
	}
	return &Sandbox{artifactsRoot: dirs.Artifacts, allowedRoots: roots}
}

// Resolve returns the absolute, sandbox-checked path for userPath.
// Relative paths are joined under the artifacts root and must not leave
// it. Absolute paths must resolve under one of the allowed roots. Every path segment from
// the chosen root down to the candidate is stat'd (not resolved) to
// reject any symlink in the chain (spec §4.3 "do not resolve, stat each
// segment").
func (s *Sandbox) Resolve(userPath string) (string, error) {
	var candidate string
	if filepath.IsAbs(userPath) {
		candidate = filepath.Clean(userPath)
	} else {
		candidate = filepath.Clean(filepath.Join(s.artifactsRoot, userPath))
	}

	var root string
	if filepath.IsAbs(userPath) {
		root = s.containingRoot(candidate)
	} else if artifacts := filepath.Clean(s.artifactsRoot); candidate == artifacts ||
		strings.HasPrefix(candidate, artifacts+string(filepath.Separator)) {
		root = artifacts
	}
	if root == "" {
		return "", &aetherrors.RuntimeError{
			Message: fmt.Sprintf("sandbox: path %q escapes all allowed roots", userPath),
		}
	}

	if err := checkSymlinkChain(root, candidate); err != nil {
		return "", err
	}

	return candidate, nil
}

func (s *Sandbox) containingRoot(candidate string) string {
	for _, root := range s.allowedRoots {
		root = filepath.Clean(root)
		if candidate == root || strings.HasPrefix(candidate, root+string(filepath.Separator)) {
			return root
		}
	}
	return ""
}

// checkSymlinkChain walks from root to candidate (inclusive) one
// segment at a time, lstat-ing each. Any segment that exists and is a
// symlink causes rejection; this deliberately does not call
// filepath.EvalSymlinks, since that would silently follow the very
// chain the sandbox exists to reject.
func checkSymlinkChain(root, candidate string) error {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return &aetherrors.RuntimeError{Message: fmt.Sprintf("sandbox: cannot relativize %q against %q: %v", candidate, root, err)}
	}
	if rel == "." {
		return lstatNotSymlink(root)
	}
	if strings.HasPrefix(rel, "..") {
		return &aetherrors.RuntimeError{Message: fmt.Sprintf("sandbox: path %q escapes root %q", candidate, root)}
	}

	if err := lstatNotSymlink(root); err != nil {
		return err
	}
	cur := root
	for _, seg := range strings.Split(rel, string(filepath.Separator)) {
		if seg == "" {
			continue
		}
		cur = filepath.Join(cur, seg)
		if err := lstatNotSymlink(cur); err != nil {
			return err
		}
	}
	return nil
}

func lstatNotSymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &aetherrors.RuntimeError{Message: fmt.Sprintf("sandbox: stat %q: %v", path, err)}
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return &aetherrors.RuntimeError{Message: fmt.Sprintf("sandbox: path segment %q is a symlink", path)}
	}
	return nil
}
