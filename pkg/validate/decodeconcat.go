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
	"fmt"

	"github.com/aetherflow/aetherflow/pkg/flow"
	"github.com/aetherflow/aetherflow/pkg/resolver"
)

// decodeConcatStage runs stage 4 (spec §4.2): for each resource's decode
// targets, the raw pre-render value must be either untemplated or a
// standalone token. A value like "Bearer {{env.T}}" concatenates secret
// material with literal text before the decoder ever sees it, which the
// spec forbids outright (§4.1 "Decode standalone rule").
func decodeConcatStage(fs *flow.FlowSpec, r *Report) {
	for name, res := range fs.Resources {
		loc := fmt.Sprintf("resources.%s", name)
		targets := resolver.NormalizeDecodeSpec("config", res.Decode.Config, res.Decode.ConfigPaths)
		targets = append(targets, resolver.NormalizeDecodeSpec("options", res.Decode.Options, res.Decode.OptionsPaths)...)
		for _, t := range targets {
			var root map[string]any
			switch t.Section {
			case "config":
				root = res.Config
			case "options":
				root = res.Options
			default:
				continue
			}

			raw, ok := resolver.GetPath(root, t.Path)
			if !ok {
				r.addError("decode_target_missing", fmt.Sprintf("%s.decode.%s.%s", loc, t.Section, t.Path),
					"decode target does not resolve to a value")
				continue
			}
			s, isStr := raw.(string)
			if !isStr {
				continue
			}

			if !resolver.ContainsTemplate(s) {
				continue
			}
			standalone, err := resolver.IsStandaloneToken(s)
			if err != nil {
				r.addError("resolver_syntax_error", fmt.Sprintf("%s.%s.%s", loc, t.Section, t.Path), err.Error())
				continue
			}
			if !standalone {
				r.addError("decode_concat_not_allowed", fmt.Sprintf("%s.%s.%s", loc, t.Section, t.Path),
					"Unsupported templating syntax. Use `{{VAR}}` or `{{VAR:DEFAULT}}`")
			}
		}
	}
}
