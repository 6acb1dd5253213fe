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
	"context"
	"errors"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leashd/leash/internal/rpc"
	"github.com/leashd/leash/internal/session"
)

// fakeHandle is an in-memory session.Handle that records calls.
type fakeHandle struct {
	mu       sync.Mutex
	handlers map[string]rpc.Handler
	meta     session.Metadata
	updates  int
	deaths   int
	flushes  int
	closes   int
	fail     bool
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		handlers: make(map[string]rpc.Handler),
		meta:     session.Metadata{State: session.StateRunning},
	}
}

func (f *fakeHandle) ID() string { return "fake-session" }

func (f *fakeHandle) RegisterHandler(method string, handler rpc.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("registrar unreachable")
	}
	f.handlers[method] = handler
	return nil
}

func (f *fakeHandle) UpdateMetadata(ctx context.Context, mutate func(*session.Metadata)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("registrar unreachable")
	}
	f.updates++
	updated := f.meta
	mutate(&updated)
	if f.meta.State == session.StateArchived {
		updated.State = session.StateArchived
	}
	f.meta = updated
	return nil
}

func (f *fakeHandle) SendDeathNotice(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("registrar unreachable")
	}
	f.deaths++
	return nil
}

func (f *fakeHandle) Flush(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("registrar unreachable")
	}
	f.flushes++
	return nil
}

func (f *fakeHandle) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("registrar unreachable")
	}
	f.closes++
	return nil
}

// exitRecorder captures coordinator exit calls instead of exiting.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) calls() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

func startStubborn(t *testing.T) *Process {
	t.Helper()

	// Ignores SIGTERM; only SIGKILL takes it down.
	cmd := exec.Command("sh", "-c", `trap '' TERM; sleep 60`)
	require.NoError(t, cmd.Start())

	p := newProcess(cmd)
	go p.reap()
	t.Cleanup(func() {
		p.SignalKill()
		p.WaitExit(5 * time.Second)
	})
	return p
}

func TestCleanupExactlyOnce(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle,
		WithExitFunc(rec.exit),
		WithGraceWindows(200*time.Millisecond, 100*time.Millisecond))

	p := startSleeper(t)
	c.SetProcess(p)
	WatchExit(p, c)

	// Both trigger sources fire in the same tick.
	var wg sync.WaitGroup
	for _, trigger := range []Trigger{
		{Reason: ReasonRemoteKill},
		{Reason: ReasonProcessExited},
	} {
		wg.Add(1)
		go func(tr Trigger) {
			defer wg.Done()
			c.Fire(tr)
		}(trigger)
	}
	wg.Wait()

	c.Run()

	assert.Equal(t, []int{0}, rec.calls())
	assert.Equal(t, 1, handle.updates)
	assert.Equal(t, 1, handle.deaths)
	assert.Equal(t, 1, handle.flushes)
	assert.Equal(t, 1, handle.closes)
	assert.False(t, p.Alive())
}

func TestGracefulChildNotForceKilled(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle,
		WithExitFunc(rec.exit),
		WithGraceWindows(5*time.Second, 5*time.Second))

	p := startSleeper(t) // sleep exits promptly on SIGTERM
	c.SetProcess(p)

	c.Fire(Trigger{Reason: ReasonRemoteKill})
	c.Run()

	// Child left within the grace window, so no forceful signal was sent.
	assert.Equal(t, "terminated", p.ExitResult().Signal)
	assert.Equal(t, []int{0}, rec.calls())
}

func TestStubbornChildForceKilled(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle,
		WithExitFunc(rec.exit),
		WithGraceWindows(300*time.Millisecond, 100*time.Millisecond))

	p := startStubborn(t)
	c.SetProcess(p)

	start := time.Now()
	c.Fire(Trigger{Reason: ReasonRemoteKill})
	c.Run()
	elapsed := time.Since(start)

	// Forceful signal only after the (remote) grace window elapsed.
	assert.GreaterOrEqual(t, elapsed, 250*time.Millisecond)
	assert.Equal(t, "killed", p.ExitResult().Signal)
	assert.False(t, p.Alive())
	assert.Equal(t, []int{0}, rec.calls())
}

func TestCleanupArchivesSession(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle, WithExitFunc(rec.exit))

	c.Fire(Trigger{Reason: ReasonProcessExited, ExitCode: 0})
	c.Run()

	handle.mu.Lock()
	defer handle.mu.Unlock()
	assert.Equal(t, session.StateArchived, handle.meta.State)
	assert.Equal(t, "cli", handle.meta.ArchivedBy)
	assert.Equal(t, "User terminated", handle.meta.ArchiveReason)
	require.NotNil(t, handle.meta.ArchivedAt)
	assert.WithinDuration(t, time.Now(), *handle.meta.ArchivedAt, time.Minute)
}

func TestCleanupWithRegistrarUnreachable(t *testing.T) {
	handle := newFakeHandle()
	handle.fail = true
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle, WithExitFunc(rec.exit))

	c.Fire(Trigger{Reason: ReasonProcessError, Err: errors.New("spawn failed")})

	done := make(chan struct{})
	go func() {
		c.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("cleanup hung with unreachable registrar")
	}

	// The host process still exits even though every remote step failed.
	assert.Equal(t, []int{0}, rec.calls())
}

func TestCleanupWithoutProcess(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle, WithExitFunc(rec.exit))

	// Spawn failed: no process was ever handed over.
	c.Fire(Trigger{Reason: ReasonProcessError, Err: errors.New("binary not found")})
	c.Run()

	assert.Equal(t, []int{0}, rec.calls())
	assert.Equal(t, 1, handle.closes)
}

func TestKillHandlerAcknowledgesAndFires(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}
	c := NewCoordinator(nil, handle, WithExitFunc(rec.exit))

	require.NoError(t, c.BindKillHandler())

	handler, ok := handle.handlers[KillMethod]
	require.True(t, ok, "kill handler not registered")

	req, err := rpc.NewRequest(KillMethod, nil)
	require.NoError(t, err)

	resp, err := handler(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"terminating"}`, string(resp.Result))

	// The handler enqueued the trigger; Run completes without further input.
	c.Run()
	assert.Equal(t, []int{0}, rec.calls())
}

func TestEndNotifierRunsOnce(t *testing.T) {
	handle := newFakeHandle()
	rec := &exitRecorder{}

	var (
		mu    sync.Mutex
		calls int
	)
	c := NewCoordinator(nil, handle,
		WithExitFunc(rec.exit),
		WithEndNotifier(func(ctx context.Context) {
			mu.Lock()
			defer mu.Unlock()
			calls++

			// Runs after archival, before the handle is closed.
			handle.mu.Lock()
			defer handle.mu.Unlock()
			assert.Equal(t, session.StateArchived, handle.meta.State)
			assert.Equal(t, 0, handle.closes)
		}))

	c.Fire(Trigger{Reason: ReasonProcessExited})
	c.Fire(Trigger{Reason: ReasonRemoteKill})
	c.Run()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.Equal(t, []int{0}, rec.calls())
}

func TestFireNeverBlocks(t *testing.T) {
	c := NewCoordinator(nil, newFakeHandle(), WithExitFunc(func(int) {}))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Fire(Trigger{Reason: ReasonProcessExited})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Fire blocked")
	}
}
