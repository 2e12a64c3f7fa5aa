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

// Package smb implements the smb connector kind contract (spec §4.5)
// over github.com/hirochachacha/go-smb2. Paths are SHARE:/rel/path —
// the leading share name is split off before every go-smb2 call, which
// operates relative to one mounted share.
package smb

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"github.com/aetherflow/aetherflow/internal/connector/sftp"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// FileTransfer is an alias of sftp.FileTransfer: both kinds satisfy the
// identical duck-typed contract from spec §4.5's combined "sftp/smb" row.
type FileTransfer = sftp.FileTransfer

// Config describes one SMB endpoint, sourced from ResourceSpec.Config by
// the registry wiring in internal/connector/builtins.go.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Domain   string
}

// New dials an SMB endpoint and returns a FileTransfer connector. Remote
// paths passed to every method are expected in "SHARE:/rel/path" form;
// splitShare peels the share name off before delegating to the mounted
// filesystem.
func New(cfg Config) (FileTransfer, error) {
	port := cfg.Port
	if port == 0 {
		port = 445
	}
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("smb: dial %s: %w", cfg.Host, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     cfg.User,
			Password: cfg.Password,
			Domain:   cfg.Domain,
		},
	}
	session, err := d.Dial(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb: session setup: %w", err)
	}

	return &smbDriver{conn: conn, session: session}, nil
}

type smbDriver struct {
	conn    net.Conn
	session *smb2.Session
}

func splitShare(p string) (share, rel string, err error) {
	idx := strings.IndexByte(p, ':')
	if idx < 0 {
		return "", "", fmt.Errorf("smb: path %q missing SHARE: prefix", p)
	}
	share = p[:idx]
	rel = strings.TrimPrefix(p[idx+1:], "/")
	return share, rel, nil
}

func (d *smbDriver) mount(share string) (*smb2.Share, error) {
	fs, err := d.session.Mount(share)
	if err != nil {
		return nil, fmt.Errorf("smb: mount %s: %w", share, err)
	}
	return fs, nil
}

func (d *smbDriver) ReadBytes(ctx context.Context, path string) ([]byte, error) {
	share, rel, err := splitShare(path)
	if err != nil {
		return nil, err
	}
	fs, err := d.mount(share)
	if err != nil {
		return nil, err
	}
	defer fs.Umount()

	f, err := fs.Open(rel)
	if err != nil {
		return nil, fmt.Errorf("smb: open %s: %w", path, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (d *smbDriver) WriteBytes(ctx context.Context, path string, data []byte) error {
	share, rel, err := splitShare(path)
	if err != nil {
		return err
	}
	fs, err := d.mount(share)
	if err != nil {
		return err
	}
	defer fs.Umount()

	f, err := fs.Create(rel)
	if err != nil {
		return fmt.Errorf("smb: create %s: %w", path, err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (d *smbDriver) Upload(ctx context.Context, localPath, remotePath string) error {
	data, err := readLocal(localPath)
	if err != nil {
		return err
	}
	return d.WriteBytes(ctx, remotePath, data)
}

func (d *smbDriver) Download(ctx context.Context, remotePath, localPath string) error {
	data, err := d.ReadBytes(ctx, remotePath)
	if err != nil {
		return err
	}
	return writeLocal(localPath, data)
}

func (d *smbDriver) List(ctx context.Context, dir string) ([]flow.RemoteFileMeta, error) {
	share, rel, err := splitShare(dir)
	if err != nil {
		return nil, err
	}
	fs, err := d.mount(share)
	if err != nil {
		return nil, err
	}
	defer fs.Umount()

	if rel == "" {
		rel = "."
	}
	entries, err := fs.ReadDir(rel)
	if err != nil {
		return nil, fmt.Errorf("smb: readdir %s: %w", dir, err)
	}
	out := make([]flow.RemoteFileMeta, 0, len(entries))
	for _, e := range entries {
		out = append(out, flow.RemoteFileMeta{
			RelPath: e.Name(),
			Path:    dir + "/" + e.Name(),
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    e.Size(),
			MtimeMs: e.ModTime().UnixMilli(),
		})
	}
	return out, nil
}

func (d *smbDriver) Delete(ctx context.Context, path string) error {
	share, rel, err := splitShare(path)
	if err != nil {
		return err
	}
	fs, err := d.mount(share)
	if err != nil {
		return err
	}
	defer fs.Umount()
	return fs.Remove(rel)
}

func (d *smbDriver) Mkdir(ctx context.Context, dir string) error {
	share, rel, err := splitShare(dir)
	if err != nil {
		return err
	}
	fs, err := d.mount(share)
	if err != nil {
		return err
	}
	defer fs.Umount()
	return fs.Mkdir(rel, 0o755)
}

func (d *smbDriver) MkdirRecursive(ctx context.Context, dir string) error {
	share, rel, err := splitShare(dir)
	if err != nil {
		return err
	}
	fs, err := d.mount(share)
	if err != nil {
		return err
	}
	defer fs.Umount()
	return fs.MkdirAll(rel, 0o755)
}

func (d *smbDriver) DeleteRecursive(ctx context.Context, path string) error {
	share, rel, err := splitShare(path)
	if err != nil {
		return err
	}
	fs, err := d.mount(share)
	if err != nil {
		return err
	}
	defer fs.Umount()
	return fs.RemoveAll(rel)
}

func (d *smbDriver) Close() error {
	var firstErr error
	if err := d.session.Logoff(); err != nil {
		firstErr = err
	}
	if err := d.conn.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
