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

package connector

import (
	"context"
	"fmt"

	"github.com/aetherflow/aetherflow/internal/connector/archive"
	"github.com/aetherflow/aetherflow/internal/connector/db"
	"github.com/aetherflow/aetherflow/internal/connector/mail"
	"github.com/aetherflow/aetherflow/internal/connector/rest"
	"github.com/aetherflow/aetherflow/internal/connector/sftp"
	"github.com/aetherflow/aetherflow/internal/connector/smb"
)

// Kind name constants (spec §4.5 "Built-in kinds").
const (
	KindDB      = "db"
	KindREST    = "rest"
	KindSFTP    = "sftp"
	KindSMB     = "smb"
	KindMail    = "mail"
	KindArchive = "archive"
)

// DB returns the named resource as a db.DB, per spec §4.5's convenience
// accessor contract (".db(name)").
func (m *Manager) DB(ctx context.Context, name string, override *CachePolicy) (db.DB, error) {
	c, err := m.Get(ctx, KindDB, name, override)
	if err != nil {
		return nil, err
	}
	d, ok := c.(db.DB)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement db.DB", name)
	}
	return d, nil
}

// REST returns the named resource as a rest.REST.
func (m *Manager) REST(ctx context.Context, name string, override *CachePolicy) (rest.REST, error) {
	c, err := m.Get(ctx, KindREST, name, override)
	if err != nil {
		return nil, err
	}
	r, ok := c.(rest.REST)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement rest.REST", name)
	}
	return r, nil
}

// SFTP returns the named resource as an sftp.FileTransfer.
func (m *Manager) SFTP(ctx context.Context, name string, override *CachePolicy) (sftp.FileTransfer, error) {
	c, err := m.Get(ctx, KindSFTP, name, override)
	if err != nil {
		return nil, err
	}
	f, ok := c.(sftp.FileTransfer)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement sftp.FileTransfer", name)
	}
	return f, nil
}

// SMB returns the named resource as an smb.FileTransfer.
func (m *Manager) SMB(ctx context.Context, name string, override *CachePolicy) (smb.FileTransfer, error) {
	c, err := m.Get(ctx, KindSMB, name, override)
	if err != nil {
		return nil, err
	}
	f, ok := c.(smb.FileTransfer)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement smb.FileTransfer", name)
	}
	return f, nil
}

// Mail returns the named resource as a mail.Mail.
func (m *Manager) Mail(ctx context.Context, name string, override *CachePolicy) (mail.Mail, error) {
	c, err := m.Get(ctx, KindMail, name, override)
	if err != nil {
		return nil, err
	}
	mm, ok := c.(mail.Mail)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement mail.Mail", name)
	}
	return mm, nil
}

// Archive returns the named resource as an archive.Archive.
func (m *Manager) Archive(ctx context.Context, name string, override *CachePolicy) (archive.Archive, error) {
	c, err := m.Get(ctx, KindArchive, name, override)
	if err != nil {
		return nil, err
	}
	a, ok := c.(archive.Archive)
	if !ok {
		return nil, fmt.Errorf("connector: resource %q does not implement archive.Archive", name)
	}
	return a, nil
}
