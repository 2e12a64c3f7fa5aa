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

package errors_test

import (
	stderrors "errors"
	"testing"
	"time"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
)

func TestSpecError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *aetherrors.SpecError
		wantMsg string
	}{
		{
			name:    "with location",
			err:     &aetherrors.SpecError{Loc: "jobs[0].depends_on", Message: "references unknown job"},
			wantMsg: "jobs[0].depends_on: references unknown job",
		},
		{
			name:    "without location",
			err:     &aetherrors.SpecError{Message: "unknown top-level key"},
			wantMsg: "unknown top-level key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("SpecError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestResolverSyntaxError_FixedMessage(t *testing.T) {
	err := &aetherrors.ResolverSyntaxError{Loc: "resources.db.config.dsn", Snippet: "${env.X}"}
	got := err.Error()
	if got[:len(aetherrors.UnsupportedTemplatingMessage)] != aetherrors.UnsupportedTemplatingMessage {
		t.Errorf("ResolverSyntaxError.Error() = %q, want prefix %q", got, aetherrors.UnsupportedTemplatingMessage)
	}
}

func TestResolverMissingKey_Error(t *testing.T) {
	err := &aetherrors.ResolverMissingKey{Path: "env.MISSING"}
	want := "missing template key: env.MISSING"
	if got := err.Error(); got != want {
		t.Errorf("ResolverMissingKey.Error() = %q, want %q", got, want)
	}
}

func TestConnectorError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := &aetherrors.ConnectorError{Kind: "sftp", Resource: "archive01", Op: "connect", Cause: cause}

	if got, want := err.Error(), "connector sftp/archive01: connect failed: connection refused"; got != want {
		t.Errorf("ConnectorError.Error() = %q, want %q", got, want)
	}

	var target *aetherrors.ConnectorError
	if !stderrors.As(err, &target) {
		t.Error("errors.As should find ConnectorError")
	}
	if stderrors.Unwrap(err) != cause {
		t.Error("ConnectorError.Unwrap() should return the cause")
	}
}

func TestReportTooLargeError(t *testing.T) {
	err := &aetherrors.ReportTooLargeError{Threshold: 1000, Actual: 5000}
	want := "report exceeds rows_threshold: 5000 rows > threshold 1000"
	if got := err.Error(); got != want {
		t.Errorf("ReportTooLargeError.Error() = %q, want %q", got, want)
	}
}

func TestParquetSupportMissingError(t *testing.T) {
	err := &aetherrors.ParquetSupportMissingError{Op: "db.extract"}
	if got := err.Error(); got == "" {
		t.Error("ParquetSupportMissingError.Error() should not be empty")
	}
}

func TestTimeoutError(t *testing.T) {
	err := &aetherrors.TimeoutError{Operation: "external.process", Duration: 30 * time.Second}
	want := "external.process timed out after 30s"
	if got := err.Error(); got != want {
		t.Errorf("TimeoutError.Error() = %q, want %q", got, want)
	}
}

func TestRuntimeError_Wrapping(t *testing.T) {
	cause := stderrors.New("exit status 1")
	err := &aetherrors.RuntimeError{Message: "step failed", Cause: cause}

	if got, want := err.Error(), "step failed: exit status 1"; got != want {
		t.Errorf("RuntimeError.Error() = %q, want %q", got, want)
	}

	var target *aetherrors.RuntimeError
	if !stderrors.As(err, &target) {
		t.Error("errors.As should find RuntimeError in wrapped error")
	}
}
