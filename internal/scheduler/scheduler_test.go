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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDocument_Valid(t *testing.T) {
	doc, err := DecodeDocument([]byte(`
items:
  - id: nightly
    cron: "0 2 * * *"
    flow_yaml: flows/nightly.yaml
  - id: bundled
    cron: "*/5 * * * *"
    bundle_manifest: manifest.yaml
    allow_stale_bundle: true
    misfire_grace_seconds: 30
`))
	require.NoError(t, err)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "nightly", doc.Items[0].ID)
	assert.True(t, doc.Items[1].AllowStaleBundle)
}

func TestDecodeDocument_Rejections(t *testing.T) {
	cases := map[string]string{
		"duplicate id": `
items:
  - {id: a, cron: "* * * * *", flow_yaml: f.yaml}
  - {id: a, cron: "* * * * *", flow_yaml: g.yaml}
`,
		"bad cron": `
items:
  - {id: a, cron: "not cron", flow_yaml: f.yaml}
`,
		"both targets": `
items:
  - {id: a, cron: "* * * * *", flow_yaml: f.yaml, bundle_manifest: m.yaml}
`,
		"neither target": `
items:
  - {id: a, cron: "* * * * *"}
`,
		"unknown field": `
items:
  - {id: a, cron: "* * * * *", flow_yaml: f.yaml, surprise: true}
`,
	}
	for name, raw := range cases {
		_, err := DecodeDocument([]byte(raw))
		assert.Error(t, err, name)
	}
}

// fakeClock drives the supervisor loop deterministically: every sleep
// advances time to the requested instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSupervisor_FiresAndCoalesces(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 30, 0, time.UTC)}
	var fired atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		Items: []ItemSpec{{ID: "a", Cron: "* * * * *", FlowYAML: "f.yaml", MisfireGraceSeconds: 120}},
		Run: func(ctx context.Context, item ItemSpec) error {
			if fired.Add(1) >= 3 {
				cancel()
			}
			// Simulate a slow run spanning two further fire times; they
			// must coalesce into a single next firing.
			clock.advance(2 * time.Minute)
			return nil
		},
		now: clock.Now,
		sleep: func(ctx context.Context, d time.Duration) bool {
			if ctx.Err() != nil {
				return false
			}
			clock.advance(d)
			return true
		},
	}

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, int32(3), fired.Load())
}

func TestSupervisor_DropsMisfiresPastGrace(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	var fired atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	firstSleep := true
	s := &Supervisor{
		Items: []ItemSpec{{ID: "a", Cron: "* * * * *", FlowYAML: "f.yaml", MisfireGraceSeconds: 10}},
		Run: func(ctx context.Context, item ItemSpec) error {
			fired.Add(1)
			cancel()
			return nil
		},
		now: clock.Now,
		sleep: func(ctx context.Context, d time.Duration) bool {
			if ctx.Err() != nil {
				return false
			}
			if firstSleep {
				// Oversleep the first firing far past the grace window.
				firstSleep = false
				clock.advance(d + 5*time.Minute)
				return true
			}
			clock.advance(d)
			return true
		},
	}

	require.NoError(t, s.Start(ctx))
	// The overslept firing was dropped; only the clean one ran.
	assert.Equal(t, int32(1), fired.Load())
}
