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
	"log/slog"

	"github.com/leashd/leash/internal/log"
)

// TriggerReason identifies what initiated the cleanup sequence.
type TriggerReason string

const (
	// ReasonRemoteKill is a remote actor requesting termination of this session.
	ReasonRemoteKill TriggerReason = "remote-kill-request"

	// ReasonProcessExited is the child process terminating on its own.
	ReasonProcessExited TriggerReason = "process-exited"

	// ReasonProcessError is a spawn or runtime failure of the child process.
	ReasonProcessError TriggerReason = "process-error"

	// ReasonLocalError is a supervisor-side failure unrelated to the child.
	ReasonLocalError TriggerReason = "local-error"

	// ReasonHostSignal is a termination signal delivered to the supervisor itself.
	ReasonHostSignal TriggerReason = "host-signal"
)

// Trigger carries the reason cleanup started plus enough context to log.
// The cleanup sequence itself is identical regardless of the trigger.
type Trigger struct {
	Reason   TriggerReason
	ExitCode int
	Signal   string
	Err      error
}

// LogAttrs returns structured attributes describing the trigger.
func (t Trigger) LogAttrs() []slog.Attr {
	attrs := []slog.Attr{slog.String(log.TriggerKey, string(t.Reason))}
	switch t.Reason {
	case ReasonProcessExited:
		attrs = append(attrs, slog.Int("exit_code", t.ExitCode))
		if t.Signal != "" {
			attrs = append(attrs, slog.String("signal", t.Signal))
		}
	case ReasonHostSignal:
		attrs = append(attrs, slog.String("signal", t.Signal))
	case ReasonProcessError, ReasonLocalError:
		if t.Err != nil {
			attrs = append(attrs, slog.Any("error", t.Err))
		}
	}
	return attrs
}

// triggerFromExit converts a reaped process outcome into a trigger.
func triggerFromExit(r ExitResult) Trigger {
	if r.Err != nil && !r.Exited {
		return Trigger{Reason: ReasonProcessError, Err: r.Err}
	}
	return Trigger{Reason: ReasonProcessExited, ExitCode: r.Code, Signal: r.Signal}
}
