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

// Package source implements the five bundle source kinds (spec §4.4
// "Sources"): filesystem, sftp, smb, db, and rest. Each is polymorphic
// over the {list, fetch} capability pair the synchronizer consumes.
package source

import (
	"context"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Source is the capability pair every bundle source kind implements
// (spec §4.4 "polymorphic over the capability {list, fetch}").
type Source interface {
	// ListFiles enumerates every file under basePath. RelPath is always
	// populated; Path carries the full remote key ReadBytes accepts.
	ListFiles(ctx context.Context, basePath string) ([]flow.RemoteFileMeta, error)

	// ReadBytes fetches one file's content by its full remote key.
	ReadBytes(ctx context.Context, key string) ([]byte, error)
}
