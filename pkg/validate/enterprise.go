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

	"github.com/aetherflow/aetherflow/internal/settings"
	"github.com/aetherflow/aetherflow/pkg/flow"
)

// enterpriseStage runs stage 5 (spec §4.2): when AETHERFLOW_MODE=enterprise,
// any resource of kind=archive must declare a driver present in the
// manifest's zip_drivers allowlist.
func enterpriseStage(fs *flow.FlowSpec, opts Options, r *Report) {
	if opts.Settings == nil || opts.Settings.Mode != settings.ModeEnterprise {
		return
	}

	allowed := make(map[string]bool, len(opts.ZipDrivers))
	for _, d := range opts.ZipDrivers {
		allowed[d] = true
	}

	for name, res := range fs.Resources {
		if res.Kind != "archive" {
			continue
		}
		if !allowed[res.Driver] {
			r.addError("archive_driver_not_allowed",
				fmt.Sprintf("resources.%s.driver", name),
				fmt.Sprintf("archive driver %q is not in the enterprise zip_drivers allowlist", res.Driver))
		}
	}
}
