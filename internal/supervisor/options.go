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
	"fmt"
)

// PermissionMode controls how much autonomy and sandboxing the launched
// tool is granted.
type PermissionMode string

const (
	// ModeDefault applies no extra flags; the tool's own approval gating applies.
	ModeDefault PermissionMode = "default"

	// ModeReadOnly forces a read-only execution sandbox.
	ModeReadOnly PermissionMode = "read-only"

	// ModeSafeYOLO enables auto-execution within a write-capable sandbox,
	// with approval only on failure.
	ModeSafeYOLO PermissionMode = "safe-yolo"

	// ModeYOLO disables all approval and sandboxing. Dangerous.
	ModeYOLO PermissionMode = "yolo"
)

// ParseMode validates a permission mode string.
func ParseMode(s string) (PermissionMode, error) {
	switch PermissionMode(s) {
	case ModeDefault, ModeReadOnly, ModeSafeYOLO, ModeYOLO:
		return PermissionMode(s), nil
	case "":
		return ModeDefault, nil
	default:
		return "", fmt.Errorf("unknown permission mode %q (valid: default, read-only, safe-yolo, yolo)", s)
	}
}

// Flags returns the command-line flags the mode maps to.
func (m PermissionMode) Flags() []string {
	switch m {
	case ModeReadOnly:
		return []string{"--sandbox", "read-only"}
	case ModeSafeYOLO:
		return []string{"--full-auto"}
	case ModeYOLO:
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	default:
		return nil
	}
}

// LaunchOptions is the validated configuration the launcher turns into a
// spawned child process. It is constructed explicitly by the caller; the
// launcher reads no process-global state beyond the fallback environment.
type LaunchOptions struct {
	// Binary is the tool executable to launch.
	Binary string

	// Mode is the permission mode; its flags come first on the argv.
	Mode PermissionMode

	// ExtraArgs are passthrough arguments appended verbatim after the
	// mode flags, preserving caller order.
	ExtraArgs []string

	// WorkDir is the child's working directory. Defaults to the
	// supervisor's current working directory when empty.
	WorkDir string

	// Env is the base environment. Defaults to the supervisor's
	// environment when nil.
	Env []string

	// ToolHome overrides the tool's home/config directory. When empty
	// and the environment does not already set it, the launcher defaults
	// it to ~/.codex.
	ToolHome string
}

// Validate checks the options for launch.
func (o LaunchOptions) Validate() error {
	if o.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	if _, err := ParseMode(string(o.Mode)); err != nil {
		return err
	}
	return nil
}

// Args builds the full argument list: mode flags first, then passthrough
// arguments in caller order.
func (o LaunchOptions) Args() []string {
	flags := o.Mode.Flags()
	args := make([]string, 0, len(flags)+len(o.ExtraArgs))
	args = append(args, flags...)
	args = append(args, o.ExtraArgs...)
	return args
}
