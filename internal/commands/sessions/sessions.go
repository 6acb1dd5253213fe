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

// Package sessions implements `leash sessions`: list recorded sessions.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leashd/leash/internal/commands/shared"
	"github.com/leashd/leash/internal/log"
	"github.com/leashd/leash/internal/session"
)

// NewSessionsCommand creates the sessions command.
func NewSessionsCommand() *cobra.Command {
	var (
		allFlag     bool
		dataDirFlag string
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Long:  `List sessions recorded on this machine. By default only running sessions are shown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessions(cmd, allFlag, dataDirFlag)
		},
	}

	cmd.Flags().BoolVarP(&allFlag, "all", "a", false, "Include archived sessions")
	cmd.Flags().StringVar(&dataDirFlag, "data-dir", "", "Session data directory (overrides config)")

	return cmd
}

// sessionRow is the JSON shape for one listed session.
type sessionRow struct {
	ID            string     `json:"id"`
	State         string     `json:"state"`
	Binary        string     `json:"binary,omitempty"`
	Mode          string     `json:"mode,omitempty"`
	PID           int        `json:"pid,omitempty"`
	WorkDir       string     `json:"work_dir,omitempty"`
	StartedAt     time.Time  `json:"started_at,omitempty"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty"`
	ArchiveReason string     `json:"archive_reason,omitempty"`
}

func runSessions(cmd *cobra.Command, includeArchived bool, dataDirFlag string) error {
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

	records, err := store.List(ctx, includeArchived)
	if err != nil {
		return err
	}

	if shared.GetJSON() {
		rows := make([]sessionRow, 0, len(records))
		for _, rec := range records {
			rows = append(rows, sessionRow{
				ID:            rec.ID,
				State:         string(rec.State),
				Binary:        rec.Meta.Binary,
				Mode:          rec.Meta.Mode,
				PID:           rec.Meta.PID,
				WorkDir:       rec.Meta.WorkDir,
				StartedAt:     rec.Meta.StartedAt,
				ArchivedAt:    rec.Meta.ArchivedAt,
				ArchiveReason: rec.Meta.ArchiveReason,
			})
		}
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal sessions: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if len(records) == 0 {
		if includeArchived {
			cmd.Println("No sessions recorded")
		} else {
			cmd.Println("No running sessions (use --all to include archived)")
		}
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tMODE\tPID\tSTARTED\tWORKDIR")
	for _, rec := range records {
		started := ""
		if !rec.Meta.StartedAt.IsZero() {
			started = rec.Meta.StartedAt.Local().Format("2006-01-02 15:04")
		}
		pid := ""
		if rec.Meta.PID != 0 {
			pid = fmt.Sprintf("%d", rec.Meta.PID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(rec.ID), rec.State, rec.Meta.Mode, pid, started, rec.Meta.WorkDir)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

