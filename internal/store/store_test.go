// File: internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/aerialguide/internal/eventlog"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleEntries() []eventlog.Entry {
	session := uuid.New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	return []eventlog.Entry{
		{ID: uuid.New(), Session: session, Seq: 0, Actor: "user", Operation: "select", SubjectID: "img-1", Metrics: []float64{0.5, 1}, Timestamp: ts},
		{ID: uuid.New(), Session: session, Seq: 1, Actor: "guide", Operation: "prescribe", SubjectID: "img-2", Timestamp: ts.Add(time.Second)},
	}
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec(flexibleSQLMatcher(schemaSQL)).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("should copy all entries without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))
		entries := sampleEntries()

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"guidance_events"}, eventColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.Write(ctx, entries))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should skip empty batches", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		require.NoError(t, s.Write(ctx, nil))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"guidance_events"}, eventColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.Write(ctx, sampleEntries())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied events count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copy fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		copyErr := errors.New("copy from failed")

		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"guidance_events"}, eventColumns).WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err := s.Write(ctx, sampleEntries())
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.Write(ctx, sampleEntries())
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPersistSession(t *testing.T) {
	ctx := context.Background()
	rec := SessionRecord{
		ID:                uuid.New(),
		Scenario:          "vienna-south",
		Selected:          []string{"S1/4001"},
		Prescribed:        []string{"S1/4002", "S2/3001"},
		JointQuality:      1.25,
		PrescribedQuality: 0.75,
		FinishedAt:        time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("should upsert the session and its picks", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertSession)).
			WithArgs(rec.ID, rec.Scenario, rec.JointQuality, rec.PrescribedQuality, rec.FinishedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		batchExp.ExpectExec(flexibleSQLMatcher(sqlInsertPick)).
			WithArgs(rec.ID, "S1/4001", "user").
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		for _, id := range rec.Prescribed {
			batchExp.ExpectExec(flexibleSQLMatcher(sqlInsertPick)).
				WithArgs(rec.ID, id, "guide").
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.PersistSession(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if the session upsert fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		batchErr := errors.New("batch execution failed")
		bare := rec
		bare.Selected, bare.Prescribed = nil, nil

		mockPool.ExpectBegin()
		batchExp := mockPool.ExpectBatch()
		batchExp.ExpectExec(flexibleSQLMatcher(sqlUpsertSession)).
			WithArgs(bare.ID, bare.Scenario, bare.JointQuality, bare.PrescribedQuality, bare.FinishedAt).
			WillReturnError(batchErr)
		mockPool.ExpectRollback()

		err := s.PersistSession(ctx, bare)
		require.Error(t, err)
		assert.ErrorIs(t, err, batchErr)
		assert.Contains(t, err.Error(), "failed to upsert session")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestEntriesBySession(t *testing.T) {
	ctx := context.Background()
	query := `
        SELECT id, seq, actor, operation, subject_id, metrics, recorded_at
        FROM guidance_events
        WHERE session_id = $1
        ORDER BY seq ASC;
    `

	t.Run("should decode rows in order", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		session := uuid.New()
		id0, id1 := uuid.New(), uuid.New()
		ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		rows := pgxmock.NewRows([]string{"id", "seq", "actor", "operation", "subject_id", "metrics", "recorded_at"}).
			AddRow(id0, 0, "user", "select", "img-1", []byte(`[0.5,1]`), ts).
			AddRow(id1, 1, "guide", "prescribe", "img-2", []byte(`[]`), ts.Add(time.Second))
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).WithArgs(session).WillReturnRows(rows)

		entries, err := s.EntriesBySession(ctx, session)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, id0, entries[0].ID)
		assert.Equal(t, []float64{0.5, 1}, entries[0].Metrics)
		assert.Equal(t, session, entries[1].Session)
		assert.Equal(t, "prescribe", entries[1].Operation)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap query errors", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		session := uuid.New()
		queryErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).WithArgs(session).WillReturnError(queryErr)

		_, err := s.EntriesBySession(ctx, session)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
