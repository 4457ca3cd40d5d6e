// File: internal/runner/runner.go
// Package runner drives controllers headlessly: it paces the tick loop the
// host would otherwise drive and replays scenarios, one at a time or many in
// parallel.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/aerialguide/internal/eventlog"
	"github.com/xkilldash9x/aerialguide/internal/guidance"
	"github.com/xkilldash9x/aerialguide/internal/host"
	"github.com/xkilldash9x/aerialguide/internal/scenario"
)

// Config controls pacing and parallelism.
type Config struct {
	// TicksPerSecond paces the loop like a display refresh. Zero or less runs
	// unpaced.
	TicksPerSecond float64 `mapstructure:"ticks_per_second" yaml:"ticks_per_second"`
	// MaxTicks bounds a single replay.
	MaxTicks int `mapstructure:"max_ticks" yaml:"max_ticks"`
	// Concurrency bounds Evaluate.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// Result describes how a tick loop ended.
type Result struct {
	Ticks     int           `json:"ticks"`
	Completed bool          `json:"completed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Outcome is the result of replaying one scenario.
type Outcome struct {
	Scenario string       `json:"scenario"`
	Source   string       `json:"source,omitempty"`
	Summary  host.Summary `json:"summary"`
	Result   Result       `json:"result"`
}

// Runner replays scenarios with fixed settings. Sinks are shared by every
// replay and must be safe for concurrent use.
type Runner struct {
	cfg      Config
	settings host.Settings
	sinks    []eventlog.Sink
	logger   *zap.Logger
}

// New creates a runner.
func New(cfg Config, settings host.Settings, logger *zap.Logger, sinks ...eventlog.Sink) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{cfg: cfg, settings: settings, sinks: sinks, logger: logger.Named("runner")}
}

// Loop ticks c until guidance is idle, the tick budget is spent or ctx ends.
func (r *Runner) Loop(ctx context.Context, c *host.Controller) (Result, error) {
	if c.Guide() == nil {
		return Result{}, host.ErrNoImages
	}
	limit := rate.Inf
	if r.cfg.TicksPerSecond > 0 {
		limit = rate.Limit(r.cfg.TicksPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	start := time.Now()
	var res Result
	for res.Ticks < r.cfg.MaxTicks {
		if err := limiter.Wait(ctx); err != nil {
			res.Elapsed = time.Since(start)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, fmt.Errorf("tick pacing failed: %w", err)
		}
		if err := c.Tick(); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
		res.Ticks++
		if c.Guide().Phase() == guidance.Idle {
			res.Completed = true
			break
		}
	}
	res.Elapsed = time.Since(start)
	if !res.Completed {
		r.logger.Warn("Tick budget spent before guidance settled",
			zap.Int("ticks", res.Ticks), zap.Stringer("phase", c.Guide().Phase()))
	}
	return res, nil
}

// Replay loads sc into a fresh controller, runs the tick loop and finishes
// the session. The event log is flushed even when the loop fails.
func (r *Runner) Replay(ctx context.Context, sc *scenario.Scenario) (Outcome, error) {
	return r.replay(ctx, sc, r.settings)
}

func (r *Runner) replay(ctx context.Context, sc *scenario.Scenario, settings host.Settings) (out Outcome, err error) {
	logger := r.logger.With(zap.String("scenario", sc.Name))
	settings.World = sc.Params(settings.World)
	journal := eventlog.New(logger, r.sinks...)
	c := host.NewController(settings, sc.Engine(), nil, journal, logger)
	out = Outcome{Scenario: sc.Name, Source: sc.Source}

	defer func() {
		if ferr := journal.Flush(context.WithoutCancel(ctx)); ferr != nil {
			err = errors.Join(err, ferr)
		}
	}()

	if err = c.LoadImages(sc.Images); err != nil {
		return out, fmt.Errorf("failed to load images of %q: %w", sc.Name, err)
	}
	if err = c.LoadAreaOfInterest(sc.AreaOfInterest); err != nil {
		return out, fmt.Errorf("failed to load area of interest of %q: %w", sc.Name, err)
	}
	out.Result, err = r.Loop(ctx, c)
	out.Summary = c.Finish()
	if err != nil {
		return out, err
	}
	logger.Info("Scenario replayed",
		zap.Int("ticks", out.Result.Ticks),
		zap.Bool("completed", out.Result.Completed),
		zap.Int("prescribed", len(out.Summary.Prescribed)))
	return out, nil
}

// Evaluate replays every scenario with its own controller, at most
// Concurrency at a time. Outcomes keep the order of scenarios. Each replay
// gets its own random source derived from the configured seed.
func (r *Runner) Evaluate(ctx context.Context, scenarios []*scenario.Scenario) ([]Outcome, error) {
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	outcomes := make([]Outcome, len(scenarios))
	for i, sc := range scenarios {
		settings := r.settings
		settings.Guidance.Rng = nil
		if settings.Guidance.Seed != 0 {
			settings.Guidance.Seed += int64(i)
		}
		g.Go(func() error {
			out, err := r.replay(groupCtx, sc, settings)
			outcomes[i] = out
			if err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	r.logger.Info("Evaluation finished", zap.Int("scenarios", len(scenarios)), zap.Error(err))
	return outcomes, err
}
