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

import "fmt"

// archiveCreateZipStep implements type "archive.create_zip" (spec §4.5
// "archive" row create_zip operation).
type archiveCreateZipStep struct {
	id          string
	resource    string
	output      string
	files       []string
	baseDir     string
	password    string
	compression string
	overwrite   bool
}

func newArchiveCreateZip(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	output, err := requireString(inputs, "output")
	if err != nil {
		return nil, err
	}
	files, err := optStringSlice(inputs, "files")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("archive.create_zip: inputs.files must be a non-empty list")
	}
	return &archiveCreateZipStep{
		id:          id,
		resource:    resource,
		output:      output,
		files:       files,
		baseDir:     optString(inputs, "base_dir", ""),
		password:    optString(inputs, "password", ""),
		compression: optString(inputs, "compression", "deflate"),
		overwrite:   optBool(inputs, "overwrite", false),
	}, nil
}

func (s *archiveCreateZipStep) Validate() error {
	if s.resource == "" || s.output == "" || len(s.files) == 0 {
		return fmt.Errorf("archive.create_zip: resource, output, and files are required")
	}
	return nil
}

func (s *archiveCreateZipStep) Run(ctx *Context) (Result, error) {
	conn, err := ctx.Connectors.Archive(ctx, s.resource, nil)
	if err != nil {
		return Result{}, err
	}
	output, err := ctx.Sandbox.Resolve(s.output)
	if err != nil {
		return Result{}, err
	}
	files := make([]string, len(s.files))
	for i, f := range s.files {
		resolved, err := ctx.Sandbox.Resolve(f)
		if err != nil {
			return Result{}, err
		}
		files[i] = resolved
	}
	baseDir := s.baseDir
	if baseDir != "" {
		baseDir, err = ctx.Sandbox.Resolve(baseDir)
		if err != nil {
			return Result{}, err
		}
	}

	res, err := conn.CreateZip(ctx, output, files, baseDir, s.password, s.compression, s.overwrite)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Output: map[string]any{
		"output":   res.Output,
		"count":    res.Count,
		"password": res.Password != "",
		"driver":   res.Driver,
	}}, nil
}

// archiveExtractZipStep implements type "archive.extract_zip" (spec
// §4.5 "archive" row extract_zip operation).
type archiveExtractZipStep struct {
	id        string
	resource  string
	archive   string
	destDir   string
	password  string
	overwrite bool
	members   []string
}

func newArchiveExtractZip(id string, inputs map[string]any) (Step, error) {
	resource, err := requireString(inputs, "resource")
	if err != nil {
		return nil, err
	}
	archivePath, err := requireString(inputs, "archive")
	if err != nil {
		return nil, err
	}
	destDir, err := requireString(inputs, "dest_dir")
	if err != nil {
		return nil, err
	}
	members, err := optStringSlice(inputs, "members")
	if err != nil {
		return nil, err
	}
	return &archiveExtractZipStep{
		id:        id,
		resource:  resource,
		archive:   archivePath,
		destDir:   destDir,
		password:  optString(inputs, "password", ""),
		overwrite: optBool(inputs, "overwrite", false),
		members:   members,
	}, nil
}

func (s *archiveExtractZipStep) Validate() error {
	if s.resource == "" || s.archive == "" || s.destDir == "" {
		return fmt.Errorf("archive.extract_zip: resource, archive, and dest_dir are required")
	}
	return nil
}

func (s *archiveExtractZipStep) Run(ctx *Context) (Result, error) {
	conn, err := ctx.Connectors.Archive(ctx, s.resource, nil)
	if err != nil {
		return Result{}, err
	}
	archivePath, err := ctx.Sandbox.Resolve(s.archive)
	if err != nil {
		return Result{}, err
	}
	destDir, err := ctx.Sandbox.Resolve(s.destDir)
	if err != nil {
		return Result{}, err
	}

	res, err := conn.ExtractZip(ctx, archivePath, destDir, s.password, s.overwrite, s.members)
	if err != nil {
		return Result{}, err
	}
	return Result{Status: StatusSuccess, Output: map[string]any{
		"dest_dir": res.DestDir,
		"files":    res.Files,
		"driver":   res.Driver,
	}}, nil
}
