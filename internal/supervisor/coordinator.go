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
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/leashd/leash/internal/log"
	"github.com/leashd/leash/internal/rpc"
	"github.com/leashd/leash/internal/session"
)

// KillMethod is the RPC method a remote actor invokes to terminate the session.
const KillMethod = "session.kill"

const (
	// defaultRemoteKillGrace is the grace window when a remote kill
	// request triggered cleanup.
	defaultRemoteKillGrace = 2 * time.Second

	// defaultLocalGrace is the grace window for every other trigger.
	defaultLocalGrace = time.Second

	// remoteStepTimeout bounds each backend-facing cleanup step so an
	// unreachable registrar can never prevent process exit.
	remoteStepTimeout = 5 * time.Second
)

// Coordinator owns the one-shot cleanup sequence: escalate process
// termination, archive the session, announce its death, flush and close
// the handle, then exit the host process. Any trigger source starts the
// sequence; later triggers are no-ops against the one-shot guard.
type Coordinator struct {
	logger *slog.Logger
	sess   session.Handle

	mu   sync.Mutex
	proc *Process

	triggers chan Trigger
	once     sync.Once

	remoteGrace time.Duration
	localGrace  time.Duration
	endNotify   func(context.Context)
	exit        func(int)
	now         func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithExitFunc overrides the process-exit function. Used by tests.
func WithExitFunc(exit func(int)) CoordinatorOption {
	return func(c *Coordinator) { c.exit = exit }
}

// WithGraceWindows overrides the termination grace windows.
func WithGraceWindows(remote, local time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.remoteGrace = remote
		c.localGrace = local
	}
}

// WithEndNotifier registers a callback invoked once after the session is
// archived, before the handle is closed. The callback owns its own error
// handling; cleanup proceeds regardless.
func WithEndNotifier(notify func(context.Context)) CoordinatorOption {
	return func(c *Coordinator) { c.endNotify = notify }
}

// NewCoordinator creates a coordinator bound to the given session handle.
func NewCoordinator(logger *slog.Logger, sess session.Handle, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		logger:      logger,
		sess:        sess,
		triggers:    make(chan Trigger, 4),
		remoteGrace: defaultRemoteKillGrace,
		localGrace:  defaultLocalGrace,
		exit:        os.Exit,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetProcess hands the spawned process to the coordinator for
// termination. Call before Run; may be skipped when the spawn failed.
func (c *Coordinator) SetProcess(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.proc = p
}

// Fire enqueues a termination trigger. Never blocks: trigger sources
// race freely and only the first delivery matters.
func (c *Coordinator) Fire(t Trigger) {
	select {
	case c.triggers <- t:
	default:
	}
}

// BindKillHandler registers the remote kill handler on the session's RPC
// surface. The handler only enqueues a trigger and acknowledges the
// caller immediately; termination is the coordinator's job.
func (c *Coordinator) BindKillHandler() error {
	return c.sess.RegisterHandler(KillMethod, func(ctx context.Context, req *rpc.Message) (*rpc.Message, error) {
		c.logger.Info("remote kill requested", slog.String(log.SessionIDKey, c.sess.ID()))
		c.Fire(Trigger{Reason: ReasonRemoteKill})
		return rpc.NewResponse(req, map[string]string{"status": "terminating"})
	})
}

// Run blocks until a termination trigger fires, then executes the
// cleanup sequence and exits the host process. With the default exit
// function it never returns.
func (c *Coordinator) Run() {
	t := <-c.triggers
	c.cleanup(t)
}

// cleanup executes the teardown sequence exactly once. Every
// backend-facing step degrades to log-and-continue on failure; the host
// process always exits.
func (c *Coordinator) cleanup(t Trigger) {
	c.once.Do(func() {
		c.logger.LogAttrs(context.Background(), slog.LevelInfo, "termination triggered", t.LogAttrs()...)
		triggersTotal.WithLabelValues(string(t.Reason)).Inc()

		grace := c.localGrace
		if t.Reason == ReasonRemoteKill {
			grace = c.remoteGrace
		}

		c.terminateProcess(grace)
		c.archiveSession()
		c.notifyEnded()
		c.announceDeath()
		c.flushAndClose()

		c.exit(0)
	})
}

// terminateProcess escalates: graceful signal, bounded grace wait,
// forceful signal. No escalation beyond the forceful kill.
func (c *Coordinator) terminateProcess(grace time.Duration) {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()

	if proc == nil || !proc.Alive() {
		return
	}

	if err := proc.SignalTerm(); err != nil {
		c.stepFailed("signal-term", err)
	}

	if proc.WaitExit(grace) {
		c.logger.Debug("child exited within grace window", log.PIDKey, proc.PID())
		return
	}

	c.logger.Warn("child ignored graceful signal, killing", log.PIDKey, proc.PID(), "grace", grace)
	forcefulKillsTotal.Inc()
	if err := proc.SignalKill(); err != nil {
		c.stepFailed("signal-kill", err)
	}

	if !proc.WaitExit(remoteStepTimeout) {
		c.logger.Error("child did not die after forceful kill", log.PIDKey, proc.PID())
	}
}

// archiveSession transitions the session record to archived. Best-effort.
func (c *Coordinator) archiveSession() {
	ctx, cancel := context.WithTimeout(context.Background(), remoteStepTimeout)
	defer cancel()

	archivedAt := c.now().UTC()
	err := c.sess.UpdateMetadata(ctx, func(m *session.Metadata) {
		m.State = session.StateArchived
		m.ArchivedAt = &archivedAt
		m.ArchivedBy = "cli"
		m.ArchiveReason = "User terminated"
	})
	if err != nil {
		c.stepFailed("archive", err)
	}
}

// notifyEnded runs the registered end-of-session callback, bounded like
// every other backend-facing step.
func (c *Coordinator) notifyEnded() {
	if c.endNotify == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), remoteStepTimeout)
	defer cancel()

	c.endNotify(ctx)
}

// announceDeath emits the session-death notification before close, so
// remote observers learn of termination promptly. Best-effort.
func (c *Coordinator) announceDeath() {
	ctx, cancel := context.WithTimeout(context.Background(), remoteStepTimeout)
	defer cancel()

	if err := c.sess.SendDeathNotice(ctx); err != nil {
		c.stepFailed("death-notice", err)
	}
}

// flushAndClose flushes buffered session state and releases the handle.
// Both steps are best-effort.
func (c *Coordinator) flushAndClose() {
	ctx, cancel := context.WithTimeout(context.Background(), remoteStepTimeout)
	defer cancel()

	if err := c.sess.Flush(ctx); err != nil {
		c.stepFailed("flush", err)
	}
	if err := c.sess.Close(ctx); err != nil {
		c.stepFailed("close", err)
	}
}

func (c *Coordinator) stepFailed(step string, err error) {
	cleanupFailuresTotal.WithLabelValues(step).Inc()
	c.logger.Warn("cleanup step failed", "step", step, "error", err)
}
