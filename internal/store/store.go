// File: internal/store/store.go
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/eventlog"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// SessionRecord summarizes a finished guidance session.
type SessionRecord struct {
	ID                uuid.UUID
	Scenario          string
	Selected          []string
	Prescribed        []string
	JointQuality      float64
	PrescribedQuality float64
	FinishedAt        time.Time
}

var eventColumns = []string{"id", "session_id", "seq", "actor", "operation", "subject_id", "metrics", "recorded_at"}

const schemaSQL = `
    CREATE TABLE IF NOT EXISTS guidance_events (
        id UUID PRIMARY KEY,
        session_id UUID NOT NULL,
        seq INTEGER NOT NULL,
        actor TEXT NOT NULL,
        operation TEXT NOT NULL,
        subject_id TEXT NOT NULL,
        metrics JSONB NOT NULL,
        recorded_at TIMESTAMPTZ NOT NULL
    );
    CREATE TABLE IF NOT EXISTS guidance_sessions (
        id UUID PRIMARY KEY,
        scenario TEXT NOT NULL,
        joint_quality DOUBLE PRECISION NOT NULL,
        prescribed_quality DOUBLE PRECISION NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL
    );
    CREATE TABLE IF NOT EXISTS guidance_picks (
        session_id UUID NOT NULL,
        image_id TEXT NOT NULL,
        origin TEXT NOT NULL,
        PRIMARY KEY (session_id, image_id, origin)
    );
`

const sqlUpsertSession = `
    INSERT INTO guidance_sessions (id, scenario, joint_quality, prescribed_quality, finished_at)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (id) DO UPDATE SET
        scenario = EXCLUDED.scenario,
        joint_quality = EXCLUDED.joint_quality,
        prescribed_quality = EXCLUDED.prescribed_quality,
        finished_at = EXCLUDED.finished_at;
`

const sqlInsertPick = `
    INSERT INTO guidance_picks (session_id, image_id, origin)
    VALUES ($1, $2, $3)
    ON CONFLICT DO NOTHING;
`

// Store persists event logs and session summaries in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Write implements eventlog.Sink with a single COPY inside a transaction.
func (s *Store) Write(ctx context.Context, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	rows := make([][]interface{}, len(entries))
	for i, e := range entries {
		metrics, err := e.MetricsJSON()
		if err != nil {
			return fmt.Errorf("failed to encode metrics of entry %d: %w", e.Seq, err)
		}
		rows[i] = []interface{}{
			e.ID, e.Session, e.Seq,
			e.Actor, e.Operation, e.SubjectID,
			metrics,
			e.Timestamp.UTC(),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"guidance_events"}, eventColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy events: %w", err)
	}
	if int(copyCount) != len(entries) {
		return fmt.Errorf("mismatch in copied events count: expected %d, got %d", len(entries), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// PersistSession stores the session summary and its picks in one batch.
func (s *Store) PersistSession(ctx context.Context, rec SessionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	batch := &pgx.Batch{}
	batch.Queue(sqlUpsertSession, rec.ID, rec.Scenario, rec.JointQuality, rec.PrescribedQuality, rec.FinishedAt.UTC())
	for _, id := range rec.Selected {
		batch.Queue(sqlInsertPick, rec.ID, id, "user")
	}
	for _, id := range rec.Prescribed {
		batch.Queue(sqlInsertPick, rec.ID, id, "guide")
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	expected := 1 + len(rec.Selected) + len(rec.Prescribed)
	for i := 0; i < expected; i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if i == 0 {
				return fmt.Errorf("failed to upsert session %s: %w", rec.ID, err)
			}
			return fmt.Errorf("failed to insert pick %d of session %s: %w", i-1, rec.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// EntriesBySession loads a session's event log in recording order.
func (s *Store) EntriesBySession(ctx context.Context, session uuid.UUID) ([]eventlog.Entry, error) {
	query := `
        SELECT id, seq, actor, operation, subject_id, metrics, recorded_at
        FROM guidance_events
        WHERE session_id = $1
        ORDER BY seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, session)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var entries []eventlog.Entry
	for rows.Next() {
		var e eventlog.Entry
		var metrics []byte
		if err := rows.Scan(&e.ID, &e.Seq, &e.Actor, &e.Operation, &e.SubjectID, &metrics, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		if err := decodeMetrics(metrics, &e); err != nil {
			return nil, err
		}
		e.Session = session
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	// Rollback after Commit reports ErrTxClosed, which is expected.
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
}
