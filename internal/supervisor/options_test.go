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

package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFlags(t *testing.T) {
	tests := []struct {
		name string
		mode PermissionMode
		args []string
		want []string
	}{
		{
			name: "default no extra flags",
			mode: ModeDefault,
			want: nil,
		},
		{
			name: "read-only forces sandbox",
			mode: ModeReadOnly,
			want: []string{"--sandbox", "read-only"},
		},
		{
			name: "safe-yolo enables full auto",
			mode: ModeSafeYOLO,
			want: []string{"--full-auto"},
		},
		{
			name: "yolo bypasses approvals and sandbox",
			mode: ModeYOLO,
			want: []string{"--dangerously-bypass-approvals-and-sandbox"},
		},
		{
			name: "read-only with passthrough appended last",
			mode: ModeReadOnly,
			args: []string{"--foo"},
			want: []string{"--sandbox", "read-only", "--foo"},
		},
		{
			name: "passthrough order preserved",
			mode: ModeDefault,
			args: []string{"resume", "--model", "o3", "--foo"},
			want: []string{"resume", "--model", "o3", "--foo"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := LaunchOptions{Binary: "codex", Mode: tt.mode, ExtraArgs: tt.args}
			assert.Equal(t, tt.want, opts.Args())
		})
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"default", "read-only", "safe-yolo", "yolo"} {
		mode, err := ParseMode(valid)
		require.NoError(t, err)
		assert.Equal(t, PermissionMode(valid), mode)
	}

	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeDefault, mode)

	_, err = ParseMode("rampage")
	assert.Error(t, err)
}

func TestLaunchOptionsValidate(t *testing.T) {
	assert.Error(t, LaunchOptions{}.Validate())
	assert.Error(t, LaunchOptions{Binary: "codex", Mode: "rampage"}.Validate())
	assert.NoError(t, LaunchOptions{Binary: "codex"}.Validate())
	assert.NoError(t, LaunchOptions{Binary: "codex", Mode: ModeYOLO}.Validate())
}
