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

// Package bundle implements the bundle synchronizer (spec §4.4):
// content-addressed, atomic, incrementally-reusing materialization of a
// remote asset tree into work_root/bundles/<id>/active with a
// reproducible fingerprint.
package bundle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aetherflow/aetherflow/internal/connector"
	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/bundle/source"
	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// Dirs is the on-disk layout the synchronizer exclusively owns under
// work_root/bundles/<id> (spec §4.4 "Directory layout").
type Dirs struct {
	Root         string
	Active       string
	Cache        string
	Fingerprints string
	Staged       string
}

// DirsFor computes the bundle directory layout for one bundle id.
func DirsFor(workRoot, bundleID string) Dirs {
	root := filepath.Join(workRoot, "bundles", bundleID)
	return Dirs{
		Root:         root,
		Active:       filepath.Join(root, "active"),
		Cache:        filepath.Join(root, "cache"),
		Fingerprints: filepath.Join(root, "fingerprints"),
		Staged:       filepath.Join(root, "staged"),
	}
}

// Result is what a sync returns to the runner (spec §4.4 step 9).
type Result struct {
	LocalRoot       string   `json:"local_root"`
	ActiveDir       string   `json:"active_dir"`
	CacheDir        string   `json:"cache_dir"`
	FingerprintsDir string   `json:"fingerprints_dir"`
	Fingerprint     string   `json:"fingerprint"`
	Changed         bool     `json:"changed"`
	FetchedFiles    []string `json:"fetched_files"`
	Stale           bool     `json:"stale,omitempty"`
}

// Options tune one Sync call.
type Options struct {
	// AllowStale returns the previous active snapshot (with a warning)
	// instead of failing when the sync itself fails and an active/
	// directory exists (spec §4.4 step 10).
	AllowStale bool
}

// Synchronizer materializes bundles. One value serves many Sync calls;
// it holds no per-bundle state.
type Synchronizer struct {
	Settings *settings.Settings
	Registry *connector.Registry
	WorkRoot string
	Logger   *slog.Logger
}

func (s *Synchronizer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// openSource binds the manifest's bundle source to a live Source. The
// connector manager here is bootstrap-only: its resources come from the
// manifest's own `resources` section, rendered against the ambient
// snapshot with env as the only root, and profiles are forbidden (spec
// §4.4 step 1).
func (s *Synchronizer) openSource(ctx context.Context, m *flow.BundleManifest, env map[string]string) (source.Source, *connector.Manager, error) {
	src := m.Bundle.Source
	if src.Type == flow.SourceFilesystem {
		return source.NewFilesystem(), nil, nil
	}

	for name, res := range m.Resources {
		if res.Profile != "" {
			return nil, nil, &aetherrors.SpecError{
				Loc:     "resources." + name + ".profile",
				Code:    "bootstrap_profile_forbidden",
				Message: "bundle manifest resources must not reference profiles",
			}
		}
	}
	materialized, err := materializeBootstrap(m.Resources, env)
	if err != nil {
		return nil, nil, err
	}

	mgr := connector.NewManager(s.Registry, s.Settings, materialized)
	switch src.Type {
	case flow.SourceSFTP:
		conn, err := mgr.SFTP(ctx, src.Resource, nil)
		if err != nil {
			return nil, nil, err
		}
		return source.NewSFTP(conn), mgr, nil
	case flow.SourceSMB:
		conn, err := mgr.SMB(ctx, src.Resource, nil)
		if err != nil {
			return nil, nil, err
		}
		return source.NewSMB(conn), mgr, nil
	case flow.SourceDB:
		conn, err := mgr.DB(ctx, src.Resource, nil)
		if err != nil {
			return nil, nil, err
		}
		return source.NewDB(conn, src), mgr, nil
	case flow.SourceREST:
		conn, err := mgr.REST(ctx, src.Resource, nil)
		if err != nil {
			return nil, nil, err
		}
		return source.NewREST(conn, src), mgr, nil
	default:
		return nil, nil, &aetherrors.SpecError{
			Loc:     "bundle.source.type",
			Code:    "unknown_source_type",
			Message: fmt.Sprintf("unknown bundle source type %q", src.Type),
		}
	}
}

// materializeBootstrap renders the manifest's own resources with `env`
// as the only allowed template root, matching the resource-render phase
// of spec §4.1.
func materializeBootstrap(resources map[string]flow.ResourceSpec, env map[string]string) (map[string]flow.ResourceSpec, error) {
	envRoot := make(map[string]any, len(env))
	for k, v := range env {
		envRoot[k] = v
	}
	tmplEnv := resolver.NewEnvironment(map[string]any{"env": envRoot})
	allowed := resolver.NewAllowedRoots("env")

	out := make(map[string]flow.ResourceSpec, len(resources))
	for name, res := range resources {
		cfg, err := resolver.RenderStringMap(res.Config, tmplEnv, allowed)
		if err != nil {
			return nil, fmt.Errorf("bundle: render resource %s config: %w", name, err)
		}
		opts, err := resolver.RenderStringMap(res.Options, tmplEnv, allowed)
		if err != nil {
			return nil, fmt.Errorf("bundle: render resource %s options: %w", name, err)
		}
		res.Config = cfg
		res.Options = opts
		out[name] = res
	}
	return out, nil
}

// Sync materializes the manifest's bundle and returns the active layout
// (spec §4.4 "Algorithm"). env is the ambient snapshot the bootstrap
// resources render against.
func (s *Synchronizer) Sync(ctx context.Context, m *flow.BundleManifest, env map[string]string, opts Options) (*Result, error) {
	dirs := DirsFor(s.WorkRoot, m.Bundle.ID)
	res, err := s.sync(ctx, m, env, dirs)
	if err == nil {
		return res, nil
	}

	s.writePostMortem(dirs, err)

	if opts.AllowStale {
		if stale := s.staleResult(dirs); stale != nil {
			s.logger().Warn("bundle sync failed, returning stale active snapshot",
				slog.String("bundle_id", m.Bundle.ID),
				slog.String("error", err.Error()))
			return stale, nil
		}
	}
	return nil, err
}

func (s *Synchronizer) sync(ctx context.Context, m *flow.BundleManifest, env map[string]string, dirs Dirs) (*Result, error) {
	for _, dir := range []string{dirs.Cache, dirs.Fingerprints, dirs.Staged} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := recoverPromotion(dirs); err != nil {
		return nil, err
	}

	src, mgr, err := s.openSource(ctx, m, env)
	if err != nil {
		return nil, err
	}
	if mgr != nil {
		defer mgr.CloseAll()
	}

	files, err := src.ListFiles(ctx, m.Bundle.Source.BasePath)
	if err != nil {
		return nil, aetherrors.Wrap(err, "bundle: list files")
	}

	var fetched []string

	// Strict fingerprinting: hash every file whose sha is unknown, so
	// the fingerprint never depends on mtime precision (spec §4.4 step 3,
	// §9 "strict_fingerprint is the correct answer wherever precision is
	// insufficient").
	if m.Bundle.Source.StrictFingerprint {
		for i := range files {
			if files[i].SHA256 != "" || files[i].IsDir {
				continue
			}
			data, err := src.ReadBytes(ctx, files[i].Path)
			if err != nil {
				return nil, aetherrors.Wrapf(err, "bundle: strict fingerprint read %s", files[i].RelPath)
			}
			sum := sha256.Sum256(data)
			files[i].SHA256 = hex.EncodeToString(sum[:])
			if err := s.storeBlob(dirs, files[i].SHA256, data); err != nil {
				return nil, err
			}
			fetched = append(fetched, files[i].RelPath)
		}
	}

	fingerprint, err := flow.ComputeFingerprint(files)
	if err != nil {
		return nil, err
	}

	prev, err := loadLatestSnapshot(dirs.Fingerprints)
	if err != nil {
		return nil, err
	}

	activeExists := dirExists(dirs.Active)
	if prev != nil && prev.Fingerprint == fingerprint &&
		m.Bundle.FetchPolicy != flow.FetchPolicyAlways && activeExists {
		return &Result{
			LocalRoot:       dirs.Root,
			ActiveDir:       dirs.Active,
			CacheDir:        dirs.Cache,
			FingerprintsDir: dirs.Fingerprints,
			Fingerprint:     fingerprint,
			Changed:         false,
			FetchedFiles:    []string{},
		}, nil
	}

	prevBySignature := make(map[string]SnapshotFile)
	if prev != nil {
		for _, f := range prev.Files {
			prevBySignature[flow.RemoteFileMeta{Size: f.Size, MtimeMs: f.MtimeMs}.Signature()] = f
		}
	}

	stagedDir := filepath.Join(dirs.Staged, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	if err := os.MkdirAll(stagedDir, 0o755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(stagedDir)

	for i := range files {
		if files[i].IsDir {
			continue
		}
		sha, didFetch, err := s.ensureBlob(ctx, src, dirs, &files[i], prevBySignature)
		if err != nil {
			return nil, err
		}
		if didFetch {
			fetched = append(fetched, files[i].RelPath)
		}
		dest := filepath.Join(stagedDir, filepath.FromSlash(files[i].RelPath))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return nil, err
		}
		if err := copyFile(filepath.Join(dirs.Cache, sha), dest); err != nil {
			return nil, err
		}
	}

	entryFlow := filepath.Join(stagedDir, filepath.FromSlash(m.Bundle.EntryFlow))
	if _, err := os.Stat(entryFlow); err != nil {
		return nil, &aetherrors.SpecError{
			Loc:     "bundle.entry_flow",
			Code:    "entry_flow_missing",
			Message: fmt.Sprintf("entry flow %q not present in synced bundle", m.Bundle.EntryFlow),
		}
	}

	if err := promote(dirs, stagedDir); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:     1,
		BundleID:    m.Bundle.ID,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Source: SnapshotSource{
			Type:     string(m.Bundle.Source.Type),
			BasePath: m.Bundle.Source.BasePath,
		},
		StrictFingerprint: m.Bundle.Source.StrictFingerprint,
	}
	for _, f := range files {
		if f.IsDir {
			continue
		}
		snap.Files = append(snap.Files, SnapshotFile{
			Path: f.RelPath, SHA256: f.SHA256, Size: f.Size, MtimeMs: f.MtimeMs,
		})
	}
	snapName := fingerprint + ".json"
	if err := writeJSON(filepath.Join(dirs.Fingerprints, snapName), snap); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(dirs.Fingerprints, "latest.json"), latestPointer{
		Fingerprint: fingerprint, SnapshotFile: snapName,
	}); err != nil {
		return nil, err
	}

	if fetched == nil {
		fetched = []string{}
	}
	return &Result{
		LocalRoot:       dirs.Root,
		ActiveDir:       dirs.Active,
		CacheDir:        dirs.Cache,
		FingerprintsDir: dirs.Fingerprints,
		Fingerprint:     fingerprint,
		Changed:         true,
		FetchedFiles:    fetched,
	}, nil
}

// ensureBlob guarantees the file's content blob exists in cache and
// returns its sha. The bool reports whether a fetch from the source was
// needed (spec §4.4 step 6).
func (s *Synchronizer) ensureBlob(ctx context.Context, src source.Source, dirs Dirs, meta *flow.RemoteFileMeta, prevBySignature map[string]SnapshotFile) (string, bool, error) {
	if meta.SHA256 != "" {
		if fileExists(filepath.Join(dirs.Cache, meta.SHA256)) {
			return meta.SHA256, false, nil
		}
		data, err := src.ReadBytes(ctx, meta.Path)
		if err != nil {
			return "", false, aetherrors.Wrapf(err, "bundle: fetch %s", meta.RelPath)
		}
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		if got != meta.SHA256 {
			return "", false, &aetherrors.RuntimeError{
				Message: fmt.Sprintf("bundle: %s: content hash %s does not match advertised sha256 %s", meta.RelPath, got, meta.SHA256),
			}
		}
		if err := s.storeBlob(dirs, got, data); err != nil {
			return "", false, err
		}
		return got, true, nil
	}

	// No advertised sha: reuse the previous snapshot's sha when the
	// (size, mtime_ms) signature matches and its blob is still cached.
	if prevFile, ok := prevBySignature[meta.Signature()]; ok && prevFile.SHA256 != "" {
		if fileExists(filepath.Join(dirs.Cache, prevFile.SHA256)) {
			meta.SHA256 = prevFile.SHA256
			return prevFile.SHA256, false, nil
		}
	}

	data, err := src.ReadBytes(ctx, meta.Path)
	if err != nil {
		return "", false, aetherrors.Wrapf(err, "bundle: fetch %s", meta.RelPath)
	}
	sum := sha256.Sum256(data)
	sha := hex.EncodeToString(sum[:])
	if err := s.storeBlob(dirs, sha, data); err != nil {
		return "", false, err
	}
	meta.SHA256 = sha
	return sha, true, nil
}

func (s *Synchronizer) storeBlob(dirs Dirs, sha string, data []byte) error {
	dest := filepath.Join(dirs.Cache, sha)
	if fileExists(dest) {
		return nil
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}

// promote atomically swaps stagedDir into place as active/ (spec §4.4
// step 8): active -> active.old, staged -> active, delete active.old.
func promote(dirs Dirs, stagedDir string) error {
	old := dirs.Active + ".old"
	if dirExists(dirs.Active) {
		if err := os.Rename(dirs.Active, old); err != nil {
			return err
		}
	}
	if err := os.Rename(stagedDir, dirs.Active); err != nil {
		// Roll the old active back so a retry starts clean.
		if dirExists(old) {
			_ = os.Rename(old, dirs.Active)
		}
		return err
	}
	return os.RemoveAll(old)
}

// recoverPromotion repairs the two interruptible windows of promote: a
// leftover active.old either rolls back (no active/ yet) or is swept
// (promotion completed but cleanup was killed). Spec §8 property 7.
func recoverPromotion(dirs Dirs) error {
	old := dirs.Active + ".old"
	if !dirExists(old) {
		return nil
	}
	if !dirExists(dirs.Active) {
		return os.Rename(old, dirs.Active)
	}
	return os.RemoveAll(old)
}

func (s *Synchronizer) writePostMortem(dirs Dirs, syncErr error) {
	_ = os.MkdirAll(dirs.Root, 0o755)
	_ = writeJSON(filepath.Join(dirs.Root, "last_error.json"), map[string]any{
		"error": syncErr.Error(),
		"at":    time.Now().UTC().Format(time.RFC3339),
	})
}

// staleResult rebuilds a Result from the current active snapshot, or
// nil when no usable active directory exists.
func (s *Synchronizer) staleResult(dirs Dirs) *Result {
	if !dirExists(dirs.Active) {
		return nil
	}
	snap, err := loadLatestSnapshot(dirs.Fingerprints)
	if err != nil || snap == nil {
		return nil
	}
	return &Result{
		LocalRoot:       dirs.Root,
		ActiveDir:       dirs.Active,
		CacheDir:        dirs.Cache,
		FingerprintsDir: dirs.Fingerprints,
		Fingerprint:     snap.Fingerprint,
		Changed:         false,
		FetchedFiles:    []string{},
		Stale:           true,
	}
}

// InjectedEnv returns the env keys bundle sync contributes to the run
// snapshot (spec §4.3 "Environment snapshot"). Paths under active/ are
// derived from the manifest layout.
func InjectedEnv(res *Result, m *flow.BundleManifest) map[string]string {
	env := map[string]string{
		"AETHERFLOW_LOCAL_ROOT_DIR": res.LocalRoot,
		"AETHERFLOW_ACTIVE_DIR":     res.ActiveDir,
		"AETHERFLOW_CACHE_DIR":      res.CacheDir,
	}
	if m.Bundle.Layout.ProfilesFile != "" {
		env["AETHERFLOW_PROFILES_FILE"] = filepath.Join(res.ActiveDir, filepath.FromSlash(m.Bundle.Layout.ProfilesFile))
	}
	if m.Bundle.Layout.PluginsDir != "" {
		env["AETHERFLOW_PLUGIN_PATHS"] = filepath.Join(res.ActiveDir, filepath.FromSlash(m.Bundle.Layout.PluginsDir))
	}
	if m.Mode != "" {
		env["AETHERFLOW_MODE"] = string(m.Mode)
		if m.Mode == flow.BundleModeEnterprise {
			env["AETHERFLOW_MODE_ENTERPRISE"] = "true"
		}
	}
	return env
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
