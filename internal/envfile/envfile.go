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

// Package envfile loads the three env-file shapes from spec §6 "Env
// files": dotenv, a flat JSON object, or a directory whose entries are
// key/value pairs. Each loaded key is optionally prefixed before being
// overlaid onto the run's environment snapshot (pkg/runctx).
package envfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// Load reads spec into a flat key/value map, applying spec.Prefix to
// every key. A missing path is an error unless spec.Optional is true, in
// which case an empty map is returned.
func Load(spec flow.EnvFileSpec) (map[string]string, error) {
	var (
		kv  map[string]string
		err error
	)
	switch spec.Type {
	case flow.EnvFileDotenv, "":
		kv, err = loadDotenv(spec.Path)
	case flow.EnvFileJSON:
		kv, err = loadJSON(spec.Path)
	case flow.EnvFileDir:
		kv, err = loadDir(spec.Path)
	default:
		return nil, fmt.Errorf("envfile: unknown env file type %q", spec.Type)
	}
	if err != nil {
		if os.IsNotExist(err) && spec.Optional {
			return map[string]string{}, nil
		}
		return nil, err
	}

	if spec.Prefix == "" {
		return kv, nil
	}
	prefixed := make(map[string]string, len(kv))
	for k, v := range kv {
		prefixed[spec.Prefix+k] = v
	}
	return prefixed, nil
}

func loadDotenv(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := map[string]string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		val = unquote(val)
		out[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("envfile: read %s: %w", path, err)
	}
	return out, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func loadJSON(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("envfile: decode %s: %w", path, err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out, nil
}

func loadDir(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[string]string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("envfile: read %s: %w", e.Name(), err)
		}
		out[e.Name()] = strings.TrimRight(string(data), "\n")
	}
	return out, nil
}
