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
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// ProcState is the lifecycle state of a spawned child process.
type ProcState string

const (
	// StateSpawned means the child is running and has not been signaled.
	StateSpawned ProcState = "spawned"

	// StateSignaledTerm means a graceful termination signal was sent.
	StateSignaledTerm ProcState = "signaled-term"

	// StateSignaledKill means a forceful termination signal was sent.
	StateSignaledKill ProcState = "signaled-kill"

	// StateReaped means the child has been waited on; no live OS resource remains.
	StateReaped ProcState = "reaped"
)

// ExitResult describes how a reaped child terminated.
type ExitResult struct {
	// Exited is true when the process ran to termination (including being
	// killed by a signal); false means Wait failed for another reason.
	Exited bool

	// Code is the exit code, or -1 when killed by a signal.
	Code int

	// Signal is the name of the terminating signal, if any.
	Signal string

	// Err is the raw error from Wait, when non-nil.
	Err error
}

// Process is the handle to exactly one spawned child process. Ownership
// passes from the launcher to the cleanup coordinator for termination.
type Process struct {
	cmd *exec.Cmd

	mu    sync.Mutex
	state ProcState

	done   chan struct{}
	result ExitResult
}

func newProcess(cmd *exec.Cmd) *Process {
	return &Process{
		cmd:   cmd,
		state: StateSpawned,
		done:  make(chan struct{}),
	}
}

// PID returns the child's process ID.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// State returns the current handle state.
func (p *Process) State() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Alive reports whether the child has not yet been reaped.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// SignalTerm sends a graceful termination signal.
func (p *Process) SignalTerm() error {
	return p.signal(syscall.SIGTERM, StateSignaledTerm)
}

// SignalKill sends a forceful, uncatchable termination signal.
func (p *Process) SignalKill() error {
	return p.signal(syscall.SIGKILL, StateSignaledKill)
}

func (p *Process) signal(sig syscall.Signal, next ProcState) error {
	p.mu.Lock()
	if p.state == StateReaped {
		p.mu.Unlock()
		return nil
	}
	p.state = next
	p.mu.Unlock()

	if err := p.cmd.Process.Signal(sig); err != nil {
		return fmt.Errorf("failed to send %v to pid %d: %w", sig, p.cmd.Process.Pid, err)
	}
	return nil
}

// Done returns a channel closed exactly once when the child is reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// WaitExit blocks until the child is reaped or the timeout elapses.
// It reports whether the child exited within the window.
func (p *Process) WaitExit(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// ExitResult returns how the child terminated. Valid only after Done is closed.
func (p *Process) ExitResult() ExitResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

// reap waits for the child and records the outcome. Runs once, on the
// launcher's reaper goroutine.
func (p *Process) reap() {
	err := p.cmd.Wait()

	result := ExitResult{Exited: true, Code: 0, Err: err}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.Code = exitErr.ExitCode()
			if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
				result.Signal = ws.Signal().String()
			}
		} else {
			// Wait itself failed: not a normal process termination.
			result.Exited = false
			result.Code = -1
		}
	}

	p.mu.Lock()
	p.result = result
	p.state = StateReaped
	p.mu.Unlock()

	close(p.done)
}
