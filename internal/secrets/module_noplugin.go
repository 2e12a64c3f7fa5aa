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

//go:build !plugin

package secrets

import "fmt"

// loadFromPath is unavailable without the `plugin` build tag: default
// builds require the secrets module to be a statically registered Go
// package.
func loadFromPath(name, path string) (Module, error) {
	return nil, fmt.Errorf("secrets: module %q is not registered and dynamic loading from %s requires a build with the plugin tag", name, path)
}
