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

package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	alexzip "github.com/alexmullins/zip"
)

// Driver name constants, matching ResourceSpec.Driver values recognized
// by the registry (builtins.go). stdlib has no password support;
// alexmullins adds legacy ZipCrypto password protection.
const (
	DriverStdlib      = "stdlib"
	DriverAlexmullins = "alexmullins"
)

type zipDriver struct {
	driver string
}

// New returns an Archive connector. CreateZip and ExtractZip pick the
// library per call, whatever driver was configured: a non-empty password
// uses alexmullins (ZipCrypto), no password uses stdlib, and the result's
// Driver names the library that was used. Either library can read
// archives the other one wrote, since both implement the same ZIP format.
func New(driver string) Archive {
	return &zipDriver{driver: driver}
}

func (d *zipDriver) CreateZip(ctx context.Context, output string, files []string, baseDir, password, compression string, overwrite bool) (*CreateZipResult, error) {
	if !overwrite {
		if _, err := os.Stat(output); err == nil {
			return nil, fmt.Errorf("archive: %s already exists and overwrite is false", output)
		}
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir for %s: %w", output, err)
	}

	out, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", output, err)
	}
	defer out.Close()

	method := zip.Deflate
	if strings.EqualFold(compression, "store") {
		method = zip.Store
	}

	count := 0
	driverUsed := d.driver

	if password != "" {
		zw := alexzip.NewWriter(out)
		defer zw.Close()
		for _, f := range files {
			rel, err := filepath.Rel(baseDir, f)
			if err != nil {
				rel = filepath.Base(f)
			}
			w, err := zw.Encrypt(filepath.ToSlash(rel), password, alexzip.StandardEncryption)
			if err != nil {
				return nil, fmt.Errorf("archive: encrypt entry %s: %w", rel, err)
			}
			if err := copyFileInto(w, f); err != nil {
				return nil, err
			}
			count++
		}
		driverUsed = DriverAlexmullins
	} else {
		zw := zip.NewWriter(out)
		defer zw.Close()
		for _, f := range files {
			rel, err := filepath.Rel(baseDir, f)
			if err != nil {
				rel = filepath.Base(f)
			}
			header := &zip.FileHeader{Name: filepath.ToSlash(rel), Method: method}
			w, err := zw.CreateHeader(header)
			if err != nil {
				return nil, fmt.Errorf("archive: create entry %s: %w", rel, err)
			}
			if err := copyFileInto(w, f); err != nil {
				return nil, err
			}
			count++
		}
		driverUsed = DriverStdlib
	}

	return &CreateZipResult{Output: output, Count: count, Password: password, Driver: driverUsed}, nil
}

func copyFileInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", path, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (d *zipDriver) ExtractZip(ctx context.Context, archivePath, destDir, password string, overwrite bool, members []string) (*ExtractZipResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: mkdir %s: %w", destDir, err)
	}

	wanted := map[string]bool{}
	for _, m := range members {
		wanted[m] = true
	}

	var extracted []string
	driverUsed := d.driver

	if password != "" {
		r, err := alexzip.OpenReader(archivePath)
		if err != nil {
			return nil, fmt.Errorf("archive: open %s: %w", archivePath, err)
		}
		defer r.Close()
		for _, f := range r.File {
			if len(wanted) > 0 && !wanted[f.Name] {
				continue
			}
			f.SetPassword(password)
			dest, err := extractEntry(f.Name, f.FileInfo().IsDir(), destDir, overwrite, func() (io.ReadCloser, error) { return f.Open() })
			if err != nil {
				return nil, err
			}
			if dest != "" {
				extracted = append(extracted, dest)
			}
		}
		driverUsed = DriverAlexmullins
	} else {
		r, err := zip.OpenReader(archivePath)
		if err != nil {
			return nil, fmt.Errorf("archive: open %s: %w", archivePath, err)
		}
		defer r.Close()
		for _, f := range r.File {
			if len(wanted) > 0 && !wanted[f.Name] {
				continue
			}
			dest, err := extractEntry(f.Name, f.FileInfo().IsDir(), destDir, overwrite, func() (io.ReadCloser, error) { return f.Open() })
			if err != nil {
				return nil, err
			}
			if dest != "" {
				extracted = append(extracted, dest)
			}
		}
		driverUsed = DriverStdlib
	}

	return &ExtractZipResult{DestDir: destDir, Files: extracted, Driver: driverUsed}, nil
}

func extractEntry(name string, isDir bool, destDir string, overwrite bool, open func() (io.ReadCloser, error)) (string, error) {
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(filepath.Separator)) && dest != filepath.Clean(destDir) {
		return "", fmt.Errorf("archive: entry %q escapes destination directory", name)
	}
	if isDir {
		return "", os.MkdirAll(dest, 0o755)
	}
	if !overwrite {
		if _, err := os.Stat(dest); err == nil {
			return "", fmt.Errorf("archive: %s already exists and overwrite is false", dest)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("archive: mkdir for %s: %w", dest, err)
	}
	rc, err := open()
	if err != nil {
		return "", fmt.Errorf("archive: open entry %s: %w", name, err)
	}
	defer rc.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return "", fmt.Errorf("archive: write %s: %w", dest, err)
	}
	return dest, nil
}

func (d *zipDriver) Close() error {
	return nil
}
