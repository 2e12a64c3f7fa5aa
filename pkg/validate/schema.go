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

package validate

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"

	"github.com/aetherflow/aetherflow/pkg/flow"
)

// flowSchemaDoc is the enum/value-level companion to FlowSpec's strict
// struct decode (spec §4.2 stage 1). Struct decode with KnownFields(true)
// already rejects unknown keys; this schema catches the value-domain
// violations a plain Go struct tag cannot (e.g. "cleanup_policy must be
// one of on_success/always/never").
const flowSchemaDoc = `{
  "$id": "aetherflow://flow.schema.json",
  "type": "object",
  "required": ["version", "flow", "jobs"],
  "properties": {
    "version": {"type": "integer"},
    "flow": {
      "type": "object",
      "required": ["id", "workspace", "state", "locks"],
      "properties": {
        "workspace": {
          "type": "object",
          "properties": {
            "cleanup_policy": {"enum": ["on_success", "always", "never"]}
          }
        },
        "state": {
          "type": "object",
          "properties": {
            "backend": {"enum": ["sqlite", "file"]}
          }
        },
        "locks": {
          "type": "object",
          "properties": {
            "scope": {"enum": ["job", "flow", "none"]}
          }
        }
      }
    },
    "resources": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["kind", "driver"],
        "properties": {
          "kind": {"enum": ["db", "rest", "sftp", "smb", "mail", "archive"]}
        }
      }
    },
    "jobs": {"type": "array"}
  }
}`

// manifestSchemaDoc is the companion schema for BundleManifest.
const manifestSchemaDoc = `{
  "$id": "aetherflow://manifest.schema.json",
  "type": "object",
  "required": ["version", "bundle"],
  "properties": {
    "version": {"type": "integer"},
    "mode": {"enum": ["internal_fast", "enterprise", ""]},
    "bundle": {
      "type": "object",
      "required": ["id", "source", "layout", "entry_flow"],
      "properties": {
        "source": {
          "type": "object",
          "required": ["type"],
          "properties": {
            "type": {"enum": ["filesystem", "sftp", "smb", "db", "rest"]}
          }
        },
        "fetch_policy": {"enum": ["cache_check", "always", ""]}
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	flowSchema     *jsonschema.Schema
	manifestSchema *jsonschema.Schema
	compileErr     error
)

func compileSchemas() error {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()

		var flowDoc any
		if err := unmarshalJSONLike(flowSchemaDoc, &flowDoc); err != nil {
			compileErr = err
			return
		}
		if err := c.AddResource("aetherflow://flow.schema.json", flowDoc); err != nil {
			compileErr = err
			return
		}
		var manifestDoc any
		if err := unmarshalJSONLike(manifestSchemaDoc, &manifestDoc); err != nil {
			compileErr = err
			return
		}
		if err := c.AddResource("aetherflow://manifest.schema.json", manifestDoc); err != nil {
			compileErr = err
			return
		}

		flowSchema, compileErr = c.Compile("aetherflow://flow.schema.json")
		if compileErr != nil {
			return
		}
		manifestSchema, compileErr = c.Compile("aetherflow://manifest.schema.json")
	})
	return compileErr
}

// unmarshalJSONLike decodes a JSON literal via yaml.v3 (a superset of
// JSON), which conveniently yields map[string]any with string keys — the
// same shape jsonschema/v6 expects, without requiring a second import of
// encoding/json just for schema bootstrapping.
func unmarshalJSONLike(doc string, out any) error {
	return yaml.NewDecoder(bytes.NewReader([]byte(doc))).Decode(out)
}

// schemaStage runs stage 1 (spec §4.2): it checks the enum/value-domain
// constraints the struct decode cannot express. The strict struct decode
// of stage 1 runs right after it, in decodeFlowStage.
func schemaStage(raw []byte, r *Report) {
	if err := compileSchemas(); err != nil {
		r.addError("schema_compile_error", "", fmt.Sprintf("internal schema setup failed: %s", err))
		return
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		r.addError("schema_error", "", fmt.Sprintf("could not parse YAML: %s", err))
		return
	}

	if err := flowSchema.Validate(doc); err != nil {
		r.addError("schema_error", "", fmt.Sprintf("schema validation failed: %s", err))
	}
}

// manifestSchemaStage is the BundleManifest analogue of schemaStage, used
// by ValidateManifest.
func manifestSchemaStage(raw []byte, r *Report) {
	if err := compileSchemas(); err != nil {
		r.addError("schema_compile_error", "", fmt.Sprintf("internal schema setup failed: %s", err))
		return
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		r.addError("schema_error", "", fmt.Sprintf("could not parse YAML: %s", err))
		return
	}

	if err := manifestSchema.Validate(doc); err != nil {
		r.addError("schema_error", "", fmt.Sprintf("schema validation failed: %s", err))
	}
}

// decodeFlowStage wraps flow.DecodeFlowSpec, turning its strict-decode
// error (unknown keys in strict regions, spec §4.2 stage 1) into a report
// Issue rather than aborting.
func decodeFlowStage(raw []byte, r *Report) *flow.FlowSpec {
	fs, err := flow.DecodeFlowSpec(raw)
	if err != nil {
		r.addError("schema_error", "", err.Error())
		return nil
	}
	return fs
}
