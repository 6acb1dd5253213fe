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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestSession(t *testing.T, store *Store, id string) Handle {
	t.Helper()

	h, err := store.CreateOrGetSession(context.Background(), "machine-1", id, Metadata{
		Host:  "devbox",
		Mode:  "default",
		State: StateRunning,
	})
	require.NoError(t, err)
	t.Cleanup(func() { h.Close(context.Background()) })
	return h
}

func TestCreateOrGetSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	h := createTestSession(t, store, "sess-1")
	assert.Equal(t, "sess-1", h.ID())

	rec, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, rec.State)
	assert.Equal(t, "devbox", rec.Meta.Host)
	assert.NotEmpty(t, rec.SocketPath)
}

func TestGetNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateMetadataPersists(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	h := createTestSession(t, store, "sess-1")

	require.NoError(t, h.UpdateMetadata(ctx, func(m *Metadata) {
		m.PID = 1234
	}))

	rec, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1234, rec.Meta.PID)
	assert.Equal(t, StateRunning, rec.State)
}

func TestArchivedIsTerminal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	h := createTestSession(t, store, "sess-1")

	now := time.Now().UTC()
	require.NoError(t, h.UpdateMetadata(ctx, func(m *Metadata) {
		m.State = StateArchived
		m.ArchivedAt = &now
		m.ArchivedBy = "cli"
		m.ArchiveReason = "User terminated"
	}))

	// A later mutation cannot resurrect the session.
	require.NoError(t, h.UpdateMetadata(ctx, func(m *Metadata) {
		m.State = StateRunning
	}))

	rec, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateArchived, rec.State)
	assert.Equal(t, StateArchived, rec.Meta.State)
	assert.Equal(t, "cli", rec.Meta.ArchivedBy)
	assert.Equal(t, "User terminated", rec.Meta.ArchiveReason)
}

func TestArchivedSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := Open(dir, nil)
	require.NoError(t, err)

	h, err := store.CreateOrGetSession(ctx, "machine-1", "sess-1", Metadata{State: StateRunning})
	require.NoError(t, err)
	require.NoError(t, h.UpdateMetadata(ctx, func(m *Metadata) {
		m.State = StateArchived
	}))
	require.NoError(t, h.Close(ctx))
	require.NoError(t, store.Close())

	reopened, err := Open(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, StateArchived, rec.State)
}

func TestDeathNoticeRecorded(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	h := createTestSession(t, store, "sess-1")

	require.NoError(t, h.SendDeathNotice(ctx))

	events, err := store.Events(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"session-death"}, events)
}

func TestList(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	h1 := createTestSession(t, store, "sess-1")
	createTestSession(t, store, "sess-2")

	require.NoError(t, h1.UpdateMetadata(ctx, func(m *Metadata) {
		m.State = StateArchived
	}))

	running, err := store.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "sess-2", running[0].ID)

	all, err := store.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHandleCloseIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	h := createTestSession(t, store, "sess-1")

	require.NoError(t, h.Close(ctx))
	require.NoError(t, h.Close(ctx))

	assert.ErrorIs(t, h.UpdateMetadata(ctx, func(m *Metadata) {}), ErrClosed)
	assert.ErrorIs(t, h.SendDeathNotice(ctx), ErrClosed)
	assert.ErrorIs(t, h.Flush(ctx), ErrClosed)
}

func TestCreateOrGetSessionReattaches(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	h := createTestSession(t, store, "sess-1")
	require.NoError(t, h.UpdateMetadata(ctx, func(m *Metadata) { m.PID = 99 }))
	require.NoError(t, h.Close(ctx))

	again, err := store.CreateOrGetSession(ctx, "machine-1", "sess-1", Metadata{})
	require.NoError(t, err)
	defer again.Close(ctx)

	// Metadata from the existing row is carried over, not replaced.
	require.NoError(t, again.UpdateMetadata(ctx, func(m *Metadata) {}))
	rec, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 99, rec.Meta.PID)
}

func TestMachineID(t *testing.T) {
	dir := t.TempDir()

	id1, err := MachineID(dir)
	require.NoError(t, err)
	assert.NotEmpty(t, id1)

	id2, err := MachineID(dir)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}
