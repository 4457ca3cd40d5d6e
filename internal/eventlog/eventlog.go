// File: internal/eventlog/eventlog.go
// Package eventlog keeps the append-only record of every user and guidance
// action of a session. The record exists for evaluation and replay; nothing
// in the guidance logic reads it back.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one logged action.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Session   uuid.UUID `json:"session"`
	Seq       int       `json:"seq"`
	Actor     string    `json:"actor"`
	Operation string    `json:"operation"`
	SubjectID string    `json:"subject_id"`
	Metrics   []float64 `json:"metrics"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricsJSON encodes the metrics snapshot.
func (e Entry) MetricsJSON() ([]byte, error) {
	if e.Metrics == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e.Metrics)
}

// Sink persists flushed entries.
type Sink interface {
	Write(ctx context.Context, entries []Entry) error
}

// Log is an append-only, ordered event log. Entries are buffered until Flush
// hands them to the sinks.
type Log struct {
	mu      sync.Mutex
	session uuid.UUID
	now     func() time.Time
	logger  *zap.Logger
	sinks   []Sink

	entries []Entry
	// flushed[i] is how many entries sinks[i] has accepted.
	flushed []int
}

// New creates a log for a fresh session.
func New(logger *zap.Logger, sinks ...Sink) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		session: uuid.New(),
		now:     time.Now,
		logger:  logger.Named("eventlog"),
		sinks:   sinks,
		flushed: make([]int, len(sinks)),
	}
}

// WithClock replaces the time source. Intended for tests.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

// Session identifies the log.
func (l *Log) Session() uuid.UUID { return l.session }

// Record appends an entry.
func (l *Log) Record(actor, operation, subject string, metrics ...float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		ID:        uuid.New(),
		Session:   l.session,
		Seq:       len(l.entries),
		Actor:     actor,
		Operation: operation,
		SubjectID: subject,
		Metrics:   slices.Clone(metrics),
		Timestamp: l.now().UTC(),
	})
}

// Entries returns a copy of all entries in order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Flush hands every sink the entries it has not accepted yet. A failing sink
// keeps its backlog for the next flush; the others advance independently.
func (l *Log) Flush(ctx context.Context) error {
	var errs []error
	written := 0
	for i, sink := range l.sinks {
		l.mu.Lock()
		from := l.flushed[i]
		pending := slices.Clone(l.entries[from:])
		l.mu.Unlock()
		if len(pending) == 0 {
			continue
		}
		if err := sink.Write(ctx, pending); err != nil {
			errs = append(errs, fmt.Errorf("failed to flush %d event log entries to sink %d: %w", len(pending), i, err))
			continue
		}
		l.mu.Lock()
		l.flushed[i] = from + len(pending)
		l.mu.Unlock()
		written += len(pending)
	}
	if written > 0 {
		l.logger.Debug("Flushed event log", zap.Int("entries", written), zap.Int("sinks", len(l.sinks)))
	}
	return errors.Join(errs...)
}

// MarshalJSON encodes the whole log as an ordered array.
func (l *Log) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Entries())
}
