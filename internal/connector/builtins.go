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
	"io"
	"time"

	"github.com/aetherflow/aetherflow/internal/connector/archive"
	"github.com/aetherflow/aetherflow/internal/connector/db"
	"github.com/aetherflow/aetherflow/internal/connector/mail"
	"github.com/aetherflow/aetherflow/internal/connector/rest"
	"github.com/aetherflow/aetherflow/internal/connector/sftp"
	"github.com/aetherflow/aetherflow/internal/connector/smb"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// RegisterBuiltins binds the built-in (kind, driver) pairs of the six
// built-in kinds named by spec §4.5 "Registry" to their concrete
// constructors. Third-party
// plugins register additional pairs on the same Registry through
// internal/plugin's Register symbol contract.
func RegisterBuiltins(reg *Registry) {
	reg.Register(KindDB, db.DriverPostgres, newDBConstructor(db.DriverPostgres, "pgx"))
	reg.Register(KindDB, db.DriverMySQL, newDBConstructor(db.DriverMySQL, "mysql"))
	reg.Register(KindDB, db.DriverSQLite, newDBConstructor(db.DriverSQLite, "sqlite"))

	reg.Register(KindREST, "http", func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		cfg := rest.Config{
			BaseURL:     cfgString(res.Config, "base_url", ""),
			Timeout:     cfgSeconds(res.Options, "timeout", 30),
			BaseHeaders: cfgStringMap(res.Config, "headers"),
		}
		if retryOpts, ok := res.Options["retry"].(map[string]any); ok {
			cfg.Retry.MaxAttempts = cfgInt(retryOpts, "max_attempts", 1)
		}
		return rest.New(cfg), nil
	})

	reg.Register(KindSFTP, "ssh", func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		cfg := sftp.Config{
			Host:            cfgString(res.Config, "host", ""),
			Port:            cfgInt(res.Config, "port", 22),
			User:            cfgString(res.Config, "user", ""),
			Password:        cfgString(res.Config, "password", ""),
			HostKey:         cfgString(res.Config, "host_key", ""),
			HostKeyInsecure: cfgBool(res.Config, "insecure_host_key", false),
		}
		if pem := cfgString(res.Config, "private_key", ""); pem != "" {
			cfg.PrivateKeyPEM = []byte(pem)
		}
		d, err := sftp.New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})

	reg.Register(KindSMB, "smb2", func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		cfg := smb.Config{
			Host:     cfgString(res.Config, "host", ""),
			Port:     cfgInt(res.Config, "port", 445),
			User:     cfgString(res.Config, "user", ""),
			Password: cfgString(res.Config, "password", ""),
			Domain:   cfgString(res.Config, "domain", ""),
		}
		d, err := smb.New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})

	reg.Register(KindMail, "smtp", func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		cfg := mail.Config{
			Host:        cfgString(res.Config, "host", ""),
			Port:        cfgInt(res.Config, "port", 587),
			User:        cfgString(res.Config, "user", ""),
			Password:    cfgString(res.Config, "password", ""),
			DefaultFrom: cfgString(res.Config, "from", ""),
			UseTLS:      cfgBool(res.Config, "use_tls", true),
		}
		d, err := mail.New(cfg)
		if err != nil {
			return nil, err
		}
		return d, nil
	})

	reg.Register(KindArchive, archive.DriverStdlib, func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		return archive.New(archive.DriverStdlib), nil
	})
	reg.Register(KindArchive, archive.DriverAlexmullins, func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		return archive.New(archive.DriverAlexmullins), nil
	})
}

func newDBConstructor(driverName, sqlDriverName string) Constructor {
	return func(ctx context.Context, name string, res flow.ResourceSpec) (io.Closer, error) {
		dsn := cfgString(res.Config, "dsn", "")
		if dsn == "" {
			return nil, fmt.Errorf("connector: db resource %q missing config.dsn", name)
		}
		d, err := db.NewSQL(driverName, sqlDriverName, dsn)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

func cfgString(m map[string]any, key, def string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func cfgInt(m map[string]any, key string, def int) int {
	if v, ok := m[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return def
}

func cfgBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func cfgSeconds(m map[string]any, key string, defSeconds int) time.Duration {
	return time.Duration(cfgInt(m, key, defSeconds)) * time.Second
}

func cfgStringMap(m map[string]any, key string) map[string]string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}
