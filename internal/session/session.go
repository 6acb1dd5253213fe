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

package session

import (
	"context"
	"errors"
	"time"

	"github.com/leashd/leash/internal/rpc"
)

var (
	// ErrNotFound is returned when a requested session does not exist.
	ErrNotFound = errors.New("session: not found")

	// ErrClosed is returned when operations are attempted on a closed handle.
	ErrClosed = errors.New("session: handle closed")
)

// State is the lifecycle state of a session. The transition is monotonic:
// once archived, a session never returns to running.
type State string

const (
	// StateRunning marks a session with a live supervised process.
	StateRunning State = "running"

	// StateArchived marks a session whose run has terminated.
	StateArchived State = "archived"
)

// Metadata is the mutable metadata document attached to a session record.
type Metadata struct {
	Host      string    `json:"host,omitempty"`
	User      string    `json:"user,omitempty"`
	WorkDir   string    `json:"work_dir,omitempty"`
	Binary    string    `json:"binary,omitempty"`
	Mode      string    `json:"mode,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`

	State         State      `json:"state,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	ArchivedBy    string     `json:"archived_by,omitempty"`
	ArchiveReason string     `json:"archive_reason,omitempty"`
}

// Handle is a live reference to a session record. The supervisor holds it
// for the duration of a run and releases it with Close.
type Handle interface {
	// ID returns the session identifier.
	ID() string

	// RegisterHandler registers an RPC handler on the session's control surface.
	RegisterHandler(method string, handler rpc.Handler) error

	// UpdateMetadata applies a mutation to the session metadata and persists it.
	// The running -> archived transition is monotonic; a mutation that tries to
	// revert an archived session is persisted as archived.
	UpdateMetadata(ctx context.Context, mutate func(*Metadata)) error

	// SendDeathNotice records a session-death notification so observers learn
	// of termination promptly rather than timing out.
	SendDeathNotice(ctx context.Context) error

	// Flush flushes any buffered session state.
	Flush(ctx context.Context) error

	// Close releases the handle and tears down the control surface.
	// Safe to call more than once.
	Close(ctx context.Context) error
}

// Registrar creates or looks up machine and session records and returns a
// live session handle.
type Registrar interface {
	CreateOrGetSession(ctx context.Context, machineID, sessionID string, meta Metadata) (Handle, error)
}
