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

// Package sftp implements the sftp connector kind contract (spec §4.5)
// over github.com/pkg/sftp and golang.org/x/crypto/ssh.
package sftp

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	pkgsftp "github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// FileTransfer is the kind contract shared by sftp and smb drivers
// (spec §4.5 "sftp/smb" row).
type FileTransfer interface {
	ReadBytes(ctx context.Context, path string) ([]byte, error)
	WriteBytes(ctx context.Context, path string, data []byte) error
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	List(ctx context.Context, dir string) ([]flow.RemoteFileMeta, error)
	Delete(ctx context.Context, path string) error
	Mkdir(ctx context.Context, dir string) error
	MkdirRecursive(ctx context.Context, dir string) error
	DeleteRecursive(ctx context.Context, path string) error
	Close() error
}

// Config describes one SFTP endpoint, sourced from ResourceSpec.Config
// by the registry wiring in internal/connector/builtins.go.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	PrivateKeyPEM  []byte

	// HostKey is the server's public key in authorized_keys format
	// ("ssh-ed25519 AAAA..."), pinned via ssh.FixedHostKey. Required
	// unless HostKeyInsecure is set.
	HostKey        string
	HostKeyInsecure bool
}

type driver struct {
	sshClient *ssh.Client
	client    *pkgsftp.Client
}

// New dials an SFTP endpoint and returns a FileTransfer connector.
func New(cfg Config) (FileTransfer, error) {
	auth := []ssh.AuthMethod{}
	if len(cfg.PrivateKeyPEM) > 0 {
		signer, err := ssh.ParsePrivateKey(cfg.PrivateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("sftp: parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, ssh.Password(cfg.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	switch {
	case cfg.HostKeyInsecure:
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	case cfg.HostKey != "":
		pinned, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cfg.HostKey))
		if err != nil {
			return nil, fmt.Errorf("sftp: parse host_key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pinned)
	default:
		return nil, fmt.Errorf("sftp: config.host_key is required unless insecure_host_key is set")
	}

	port := cfg.Port
	if port == 0 {
		port = 22
	}

	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", cfg.Host, port), &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("sftp: dial %s: %w", cfg.Host, err)
	}

	sftpClient, err := pkgsftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("sftp: new client: %w", err)
	}

	return &driver{sshClient: sshClient, client: sftpClient}, nil
}

func (d *driver) ReadBytes(ctx context.Context, p string) ([]byte, error) {
	f, err := d.client.Open(p)
	if err != nil {
		return nil, fmt.Errorf("sftp: open %s: %w", p, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (d *driver) WriteBytes(ctx context.Context, p string, data []byte) error {
	f, err := d.client.Create(p)
	if err != nil {
		return fmt.Errorf("sftp: create %s: %w", p, err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

func (d *driver) Upload(ctx context.Context, localPath, remotePath string) error {
	local, err := openLocal(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	remote, err := d.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: create %s: %w", remotePath, err)
	}
	defer remote.Close()

	_, err = io.Copy(remote, local)
	return err
}

func (d *driver) Download(ctx context.Context, remotePath, localPath string) error {
	remote, err := d.client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("sftp: open %s: %w", remotePath, err)
	}
	defer remote.Close()

	local, err := createLocal(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	_, err = io.Copy(local, remote)
	return err
}

func (d *driver) List(ctx context.Context, dir string) ([]flow.RemoteFileMeta, error) {
	entries, err := d.client.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sftp: readdir %s: %w", dir, err)
	}
	out := make([]flow.RemoteFileMeta, 0, len(entries))
	for _, e := range entries {
		out = append(out, flow.RemoteFileMeta{
			RelPath: e.Name(),
			Path:    path.Join(dir, e.Name()),
			Name:    e.Name(),
			IsDir:   e.IsDir(),
			Size:    e.Size(),
			MtimeMs: e.ModTime().UnixMilli(),
		})
	}
	return out, nil
}

func (d *driver) Delete(ctx context.Context, p string) error {
	return d.client.Remove(p)
}

func (d *driver) Mkdir(ctx context.Context, dir string) error {
	return d.client.Mkdir(dir)
}

func (d *driver) MkdirRecursive(ctx context.Context, dir string) error {
	return d.client.MkdirAll(dir)
}

func (d *driver) DeleteRecursive(ctx context.Context, p string) error {
	return d.client.RemoveAll(p)
}

func (d *driver) Close() error {
	var firstErr error
	if err := d.client.Close(); err != nil {
		firstErr = err
	}
	if err := d.sshClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
