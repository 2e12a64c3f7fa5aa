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

package flow

import (
	"bytes"
	"fmt"

	aetherrors "github.com/aetherflow/aetherflow/pkg/errors"
	"gopkg.in/yaml.v3"
)

// decodeStrict decodes data into out with extra-forbid semantics
// (yaml.Decoder.KnownFields(true)), the Go equivalent of the reference
// implementation's Pydantic extra-forbid config (spec §4.2 stage 1).
// Any key in the strict regions not matching a struct field fails with
// a SpecError carrying the unknown-field message.
func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return &aetherrors.SpecError{
			Code:    "schema_error",
			Message: fmt.Sprintf("schema decode failed: %s", err),
		}
	}
	return nil
}

// DecodeFlowSpec parses flow YAML into a FlowSpec with strict-extra
// semantics on every subtree (spec §3 "FlowSpec", §4.2 stage 1).
func DecodeFlowSpec(data []byte) (*FlowSpec, error) {
	var fs FlowSpec
	if err := decodeStrict(data, &fs); err != nil {
		return nil, err
	}
	return &fs, nil
}

// DecodeBundleManifest parses bundle manifest YAML into a
// BundleManifest with strict-extra semantics (spec §3 "BundleManifest":
// "Strict extra-forbidden on every subtree").
func DecodeBundleManifest(data []byte) (*BundleManifest, error) {
	var bm BundleManifest
	if err := decodeStrict(data, &bm); err != nil {
		return nil, err
	}
	return &bm, nil
}

// DecodeProfilesDocument parses a `name -> ProfileSpec` mapping (spec
// §4.6 "Profiles YAML"). Profiles are not strict-extra; unexpected
// fields here are tolerated the way the reference implementation
// tolerates forward-compatible profile additions.
func DecodeProfilesDocument(data []byte) (ProfilesDocument, error) {
	var doc ProfilesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &aetherrors.SpecError{
			Code:    "schema_error",
			Message: fmt.Sprintf("profiles document decode failed: %s", err),
		}
	}
	return doc, nil
}
