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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/leashd/leash/internal/log"
)

// ToolHomeEnv is the environment variable controlling the launched
// tool's home/config directory.
const ToolHomeEnv = "CODEX_HOME"

// SpawnError means the tool binary could not be found or spawned. It is
// the only failure surfaced to the user with remediation text; cleanup
// still runs afterwards, with no live process to terminate.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Remediation returns user-facing guidance for the spawn failure.
func (e *SpawnError) Remediation() string {
	if errors.Is(e.Err, exec.ErrNotFound) || os.IsNotExist(e.Err) {
		return fmt.Sprintf(`The %q binary was not found on PATH.

Install the Codex CLI, or point leash at it explicitly:
  leash run --bin /path/to/codex
  # or set tool.binary in ~/.config/leash/config.yaml`, e.Binary)
	}
	return fmt.Sprintf("Could not start %q: %v", e.Binary, e.Err)
}

// Launcher spawns exactly one child process from validated options, with
// the supervisor's standard streams passed through verbatim.
type Launcher struct {
	opts   LaunchOptions
	logger *slog.Logger
}

// NewLauncher creates a launcher for the given options.
func NewLauncher(opts LaunchOptions, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{opts: opts, logger: logger}
}

// Launch spawns the child process and returns its handle. A reaper
// goroutine collects the exit status; observe it via Process.Done.
func (l *Launcher) Launch() (*Process, error) {
	if err := l.opts.Validate(); err != nil {
		return nil, err
	}

	args := l.opts.Args()
	cmd := exec.Command(l.opts.Binary, args...)

	// Full interactivity passthrough: the child owns the terminal.
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	cmd.Dir = l.opts.WorkDir
	env, err := l.buildEnv()
	if err != nil {
		return nil, err
	}
	cmd.Env = env

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{Binary: l.opts.Binary, Err: err}
	}

	p := newProcess(cmd)
	go p.reap()

	l.logger.Info("child process started",
		"binary", l.opts.Binary,
		"mode", string(l.opts.Mode),
		"args", args,
		log.PIDKey, p.PID())

	return p, nil
}

// buildEnv returns the child environment with the tool home variable
// defaulted when the caller's environment does not already set it.
func (l *Launcher) buildEnv() ([]string, error) {
	env := l.opts.Env
	if env == nil {
		env = os.Environ()
	}

	for _, kv := range env {
		if strings.HasPrefix(kv, ToolHomeEnv+"=") {
			return env, nil
		}
	}

	home := l.opts.ToolHome
	if home == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		home = filepath.Join(userHome, ".codex")
	}

	return append(env, ToolHomeEnv+"="+home), nil
}
