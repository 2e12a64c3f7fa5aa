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

// Package archive implements the archive connector kind contract (spec
// §4.5): zip creation/extraction, with optional password protection via
// github.com/alexmullins/zip when a password is supplied, falling back
// to the standard library archive/zip when it is not (that fork does
// not support compressing to a password-protected archive without also
// giving up the stdlib's newer deflate improvements, so plaintext zips
// prefer stdlib).
package archive

import "context"

// CreateZipResult is returned by CreateZip (spec §4.5 "archive" row).
type CreateZipResult struct {
	Output   string
	Count    int
	Password string
	Driver   string
}

// ExtractZipResult is returned by ExtractZip.
type ExtractZipResult struct {
	DestDir string
	Files   []string
	Driver  string
}

// Archive is the kind contract every archive driver must satisfy (spec
// §4.5 "archive" row).
type Archive interface {
	CreateZip(ctx context.Context, output string, files []string, baseDir, password, compression string, overwrite bool) (*CreateZipResult, error)
	ExtractZip(ctx context.Context, archivePath, destDir, password string, overwrite bool, members []string) (*ExtractZipResult, error)
	Close() error
}
