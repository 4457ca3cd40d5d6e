// File: cmd/sinks.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/aerialguide/internal/config"
	"github.com/xkilldash9x/aerialguide/internal/eventlog"
	"github.com/xkilldash9x/aerialguide/internal/runner"
	"github.com/xkilldash9x/aerialguide/internal/store"
)

// persistence bundles the event log sinks of the configured store and, for
// Postgres, the session summary table.
type persistence struct {
	sinks    []eventlog.Sink
	sessions *store.Store
	closers  []func()
	logger   *zap.Logger
}

func openPersistence(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*persistence, error) {
	p := &persistence{logger: logger}
	switch strings.ToLower(cfg.Driver) {
	case "", config.StoreNone:
		return p, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		p.closers = append(p.closers, pool.Close)
		st, err := store.New(ctx, pool, logger)
		if err != nil {
			p.Close()
			return nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
		p.sinks = append(p.sinks, st)
		p.sessions = st

	case config.StoreSQLite:
		st, err := store.OpenSQLite(cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, func() { _ = st.Close() })
		p.sinks = append(p.sinks, st)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	logger.Info("Event log persistence enabled", zap.String("driver", cfg.Driver))
	return p, nil
}

// persist records the summary of a finished session where supported.
func (p *persistence) persist(ctx context.Context, out runner.Outcome) error {
	if p.sessions == nil {
		return nil
	}
	id, err := uuid.Parse(out.Summary.Session)
	if err != nil {
		return fmt.Errorf("invalid session id %q: %w", out.Summary.Session, err)
	}
	return p.sessions.PersistSession(ctx, store.SessionRecord{
		ID:                id,
		Scenario:          out.Scenario,
		Selected:          out.Summary.Selected,
		Prescribed:        out.Summary.Prescribed,
		JointQuality:      out.Summary.Stats.JointQuality,
		PrescribedQuality: out.Summary.Stats.PrescribedQuality,
		FinishedAt:        time.Now().UTC(),
	})
}

func (p *persistence) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
}

func writeJSON(w io.Writer, v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutcome(w io.Writer, out runner.Outcome) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	s := out.Summary.Stats
	fmt.Fprintf(tw, "scenario\t%s\n", out.Scenario)
	fmt.Fprintf(tw, "session\t%s\n", out.Summary.Session)
	fmt.Fprintf(tw, "ticks\t%d (completed: %t)\n", out.Result.Ticks, out.Result.Completed)
	fmt.Fprintf(tw, "prescribed\t%s\n", strings.Join(out.Summary.Prescribed, ", "))
	fmt.Fprintf(tw, "selected\t%s\n", strings.Join(out.Summary.Selected, ", "))
	fmt.Fprintf(tw, "joint quality\t%.4f\n", s.JointQuality)
	fmt.Fprintf(tw, "prescribed quality\t%.4f\n", s.PrescribedQuality)
	fmt.Fprintf(tw, "attacks covered\t%d/%d (prescribed %d)\n", s.AttacksCovered, s.Attacks, s.AttacksPrescribed)
	return tw.Flush()
}
