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

// Command aetherflow is the workflow engine CLI (spec §6 "CLI
// surface"): run, validate, doctor, explain, and the bundle
// subcommands. Exit codes: 0 on success, 2 on validation failure,
// 1 on runtime error.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aetherflow/aetherflow/internal/runner"
)

func main() {
	cmd, err := newRootCommand()
	if err == nil {
		err = cmd.Execute()
	}
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, err)
	var vErr *runner.ErrValidationFailed
	if errors.As(err, &vErr) {
		os.Exit(2)
	}
	os.Exit(1)
}
