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

package secrets

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// base64Module is the built-in "base64" secrets module: values are
// standard-encoding base64, optionally carrying a "base64:" prefix.
type base64Module struct{}

func init() {
	Register("base64", base64Module{})
}

func (base64Module) Decode(s string) (string, error) {
	raw := strings.TrimPrefix(s, "base64:")
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: base64 decode: %w", err)
	}
	return string(data), nil
}
