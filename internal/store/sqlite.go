// File: internal/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/eventlog"
)

const sqliteSchema = `
    CREATE TABLE IF NOT EXISTS guidance_events (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        seq INTEGER NOT NULL,
        actor TEXT NOT NULL,
        operation TEXT NOT NULL,
        subject_id TEXT NOT NULL,
        metrics TEXT NOT NULL,
        recorded_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_guidance_events_session ON guidance_events (session_id, seq);
`

// SQLiteStore is the workstation event log sink.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens or creates the database file and its tables.
func OpenSQLite(dataSourceName string, logger *zap.Logger) (*SQLiteStore, error) {
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && !strings.HasPrefix(dbPath, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return &SQLiteStore{db: db, log: logger.Named("sqlite")}, nil
}

// Write implements eventlog.Sink.
func (s *SQLiteStore) Write(ctx context.Context, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO guidance_events (id, session_id, seq, actor, operation, subject_id, metrics, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		metrics, err := e.MetricsJSON()
		if err != nil {
			return fmt.Errorf("failed to encode metrics of entry %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID.String(), e.Session.String(), e.Seq,
			e.Actor, e.Operation, e.SubjectID,
			string(metrics), e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
		); err != nil {
			return fmt.Errorf("failed to insert entry %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Stored event log entries", zap.Int("entries", len(entries)))
	return nil
}

// Count returns the number of stored entries of a session.
func (s *SQLiteStore) Count(ctx context.Context, session string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM guidance_events WHERE session_id = ?`, session).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decodeMetrics(raw []byte, e *eventlog.Entry) error {
	if len(raw) == 0 {
		return nil
	}
	if err := jsoniter.Unmarshal(raw, &e.Metrics); err != nil {
		return fmt.Errorf("failed to decode metrics of entry %d: %w", e.Seq, err)
	}
	return nil
}
