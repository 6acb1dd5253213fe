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

// Package kill implements `leash kill`: request termination of a running
// session through its control socket.
package kill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leashd/leash/internal/commands/shared"
	"github.com/leashd/leash/internal/log"
	"github.com/leashd/leash/internal/rpc"
	"github.com/leashd/leash/internal/session"
	"github.com/leashd/leash/internal/supervisor"
)

// NewKillCommand creates the kill command.
func NewKillCommand() *cobra.Command {
	var dataDirFlag string

	cmd := &cobra.Command{
		Use:   "kill <session-id>",
		Short: "Request termination of a running session",
		Long: `Send a kill request to a running session's control socket. The
supervisor terminates the tool gracefully, escalating to a forceful
kill if it does not exit in time, and archives the session.

The session ID may be abbreviated to any unique prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKill(cmd, args[0], dataDirFlag)
		},
	}

	cmd.Flags().StringVar(&dataDirFlag, "data-dir", "", "Session data directory (overrides config)")

	return cmd
}

func runKill(cmd *cobra.Command, sessionID, dataDirFlag string) error {
	cfg, err := shared.LoadConfig()
	if err != nil {
		return err
	}
	if dataDirFlag != "" {
		cfg.DataDir = dataDirFlag
	}

	dataDir, err := cfg.ResolveDataDir()
	if err != nil {
		return err
	}

	logger := log.New(&log.Config{Level: cfg.Log.Level, Format: log.Format(cfg.Log.Format)})
	store, err := session.Open(dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := resolveSession(ctx, store, sessionID)
	if err != nil {
		return err
	}

	if rec.State == session.StateArchived {
		return fmt.Errorf("session %s is already archived", rec.ID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := rpc.Dial(dialCtx, rec.SocketPath)
	if err != nil {
		return fmt.Errorf("session %s is not reachable (supervisor gone?): %w", rec.ID, err)
	}
	defer client.Close()

	resp, err := client.Call(dialCtx, supervisor.KillMethod, nil)
	if err != nil {
		return fmt.Errorf("kill request failed: %w", err)
	}

	if shared.GetJSON() {
		cmd.Println(string(resp.Result))
		return nil
	}

	cmd.Printf("Session %s is terminating\n", rec.ID)
	return nil
}

// resolveSession finds a session by exact ID or unique prefix.
func resolveSession(ctx context.Context, store *session.Store, id string) (*session.Record, error) {
	rec, err := store.Get(ctx, id)
	if err == nil {
		return rec, nil
	}

	records, err := store.List(ctx, true)
	if err != nil {
		return nil, err
	}

	var matches []*session.Record
	for _, r := range records {
		if strings.HasPrefix(r.ID, id) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no session matches %q", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous (%d matches)", id, len(matches))
	}
}

