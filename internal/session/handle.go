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
	"sync"

	"github.com/leashd/leash/internal/rpc"
)

// localSession is the Handle implementation backed by Store. It owns the
// session's control socket server for the duration of the run.
type localSession struct {
	id    string
	store *Store
	srv   *rpc.Server

	mu     sync.Mutex
	meta   Metadata
	closed bool
}

// newHandle starts the session's control socket server and returns the handle.
func (s *Store) newHandle(ctx context.Context, sessionID, socketPath string, meta Metadata) (Handle, error) {
	srv := rpc.NewServer(rpc.ServerConfig{
		SocketPath: socketPath,
		Logger:     s.logger,
	})
	if err := srv.Start(ctx); err != nil {
		return nil, err
	}

	return &localSession{
		id:    sessionID,
		store: s,
		srv:   srv,
		meta:  meta,
	}, nil
}

func (h *localSession) ID() string {
	return h.id
}

func (h *localSession) RegisterHandler(method string, handler rpc.Handler) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	h.srv.Registry().Register(method, handler)
	return nil
}

func (h *localSession) UpdateMetadata(ctx context.Context, mutate func(*Metadata)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	updated := h.meta
	mutate(&updated)

	// Archived is terminal: a mutation cannot resurrect the session.
	if h.meta.State == StateArchived && updated.State != StateArchived {
		updated.State = StateArchived
	}

	if err := h.store.updateSession(ctx, h.id, updated); err != nil {
		return err
	}

	h.meta = updated
	return nil
}

func (h *localSession) SendDeathNotice(ctx context.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return h.store.recordEvent(ctx, h.id, "session-death")
}

func (h *localSession) Flush(ctx context.Context) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return ErrClosed
	}

	return h.store.checkpoint(ctx)
}

func (h *localSession) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	return h.srv.Shutdown(ctx)
}
