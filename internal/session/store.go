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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed session registrar for local CLI usage.
//
// Database location: <dataDir>/leash.db. WAL mode is enabled so the
// supervisor and `leash kill` / `leash sessions` invocations can read
// and write concurrently. Each session created through the store owns a
// control socket under <dataDir>/run/.
type Store struct {
	db      *sql.DB
	dataDir string
	logger  *slog.Logger
}

// Record is a session row as read back from the store.
type Record struct {
	ID         string
	State      State
	SocketPath string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Meta       Metadata
}

// Open opens (creating if needed) the session database under dataDir.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "leash.db")
	connStr := dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &Store{db: db, dataDir: dataDir, logger: logger}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS machines (
			id TEXT PRIMARY KEY,
			hostname TEXT,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			machine_id TEXT NOT NULL REFERENCES machines(id),
			state TEXT NOT NULL,
			socket_path TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			event_type TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
	}

	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateOrGetSession implements Registrar. An existing session row is
// reattached to; otherwise a new row is inserted with the given metadata.
// The returned handle owns the session's control socket server.
func (s *Store) CreateOrGetSession(ctx context.Context, machineID, sessionID string, meta Metadata) (Handle, error) {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO machines (id, hostname) VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		machineID, meta.Host,
	); err != nil {
		return nil, fmt.Errorf("failed to upsert machine: %w", err)
	}

	existing, err := s.Get(ctx, sessionID)
	switch {
	case err == nil:
		return s.newHandle(ctx, existing.ID, existing.SocketPath, existing.Meta)
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	if meta.State == "" {
		meta.State = StateRunning
	}

	socketPath := s.socketPathFor(sessionID)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, machine_id, state, socket_path, metadata) VALUES (?, ?, ?, ?, ?)`,
		sessionID, machineID, string(meta.State), socketPath, string(metaJSON),
	); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	return s.newHandle(ctx, sessionID, socketPath, meta)
}

// socketPathFor returns the control socket path for a session. Only the
// first segment of the ID is used to keep the path under the Unix socket
// path length limit.
func (s *Store) socketPathFor(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return filepath.Join(s.dataDir, "run", short+".sock")
}

// Get returns a single session record.
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, socket_path, metadata, created_at, updated_at FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanRecord(row)
}

// List returns session records, newest first. Archived sessions are
// included only when includeArchived is set.
func (s *Store) List(ctx context.Context, includeArchived bool) ([]*Record, error) {
	query := `SELECT id, state, socket_path, metadata, created_at, updated_at FROM sessions`
	if !includeArchived {
		query += ` WHERE state = 'running'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows for scanRecord.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var state, metaJSON, createdAt, updatedAt string

	err := row.Scan(&rec.ID, &state, &rec.SocketPath, &metaJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	rec.State = State(state)
	if err := json.Unmarshal([]byte(metaJSON), &rec.Meta); err != nil {
		return nil, fmt.Errorf("failed to decode session metadata: %w", err)
	}

	rec.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", createdAt)
	rec.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAt)
	return &rec, nil
}

// updateSession persists metadata and the mirrored state column.
func (s *Store) updateSession(ctx context.Context, sessionID string, meta Metadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = ?, metadata = ?, updated_at = datetime('now') WHERE id = ?`,
		string(meta.State), string(metaJSON), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// recordEvent appends a session event row.
func (s *Store) recordEvent(ctx context.Context, sessionID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event_type) VALUES (?, ?)`,
		sessionID, eventType,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// Events returns the event types recorded for a session, oldest first.
func (s *Store) Events(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type FROM session_events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// checkpoint flushes the WAL to the main database file.
func (s *Store) checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
