// Package analyze replays games through a chess engine, flags moves
// that lost significant evaluation, and packages them into drills.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/daonin/chessdrill/internal/drill"
	"github.com/daonin/chessdrill/internal/engine"
	"github.com/daonin/chessdrill/internal/replay"
)

// EvalSession is the slice of the engine session the analyzer needs.
// Tests substitute a scripted fake.
type EvalSession interface {
	Evaluate(ctx context.Context, fen string, limit engine.Limit) (engine.Verdict, error)
	Close() error
}

// SessionFactory opens a fresh engine session. Each in-flight game gets
// its own session; none is held across runs.
type SessionFactory func() (EvalSession, error)

// Recorder receives analysis output. The SQLite store implements it.
type Recorder interface {
	RecordGame(ctx context.Context, meta replay.GameMeta) error
	RecordMove(ctx context.Context, runID int64, gameID string, me MoveEval) error
	RecordDrill(ctx context.Context, d drill.Drill) error
}

// MoveEval is a replayed move with its evaluations attached.
type MoveEval struct {
	replay.MoveRecord
	BeforeCP  int // mover's perspective
	AfterCP   int // opponent's perspective
	LossCP    int
	Evaluated bool
}

// RunnerConfig configures a batch analysis run.
type RunnerConfig struct {
	Engine       engine.Config
	Limit        engine.Limit // default: depth 10
	Thresholds   Thresholds
	TimeControls []string // games with other time controls are skipped; default 5+0
	MaxEvals     int      // engine evaluation budget per run, default 2500
	Concurrency  int      // parallel games, one session each; default 1
	Logger       zerolog.Logger
}

// Summary is the per-run outcome reported instead of per-game errors.
type Summary struct {
	GamesAnalyzed int64
	GamesSkipped  int64
	GamesFailed   int64
	Drills        int64
	Evals         int64
}

// Runner drives the walker -> engine -> classifier -> builder chain
// over a batch of games.
type Runner struct {
	cfg RunnerConfig
	rec Recorder
	log zerolog.Logger

	// Sessions is replaceable in tests; defaults to opening real
	// engine processes from cfg.Engine.
	Sessions SessionFactory

	evals int64
}

// NewRunner validates configuration and returns a runner. Threshold
// faults fail here, before any engine process is spawned.
func NewRunner(cfg RunnerConfig, rec Recorder) (*Runner, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("thresholds: %w", err)
	}
	if cfg.Limit.Depth == 0 && cfg.Limit.MoveTime == 0 {
		cfg.Limit.Depth = 10
	}
	if len(cfg.TimeControls) == 0 {
		cfg.TimeControls = []string{"300", "300+0"}
	}
	if cfg.MaxEvals == 0 {
		cfg.MaxEvals = 2500
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	r := &Runner{
		cfg: cfg,
		rec: rec,
		log: cfg.Logger,
	}
	r.Sessions = func() (EvalSession, error) {
		return engine.Open(cfg.Engine)
	}
	return r, nil
}

// errBudget aborts a game's walk when the evaluation budget runs out.
var errBudget = errors.New("evaluation budget exhausted")

// Run analyzes a batch of games. Transient per-game faults (timeouts,
// corrupt movetext) skip the game and continue; engine.ErrUnavailable
// aborts the whole run.
func (r *Runner) Run(ctx context.Context, runID int64, games []replay.Game) (Summary, error) {
	var sum Summary
	atomic.StoreInt64(&r.evals, 0)

	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(r.cfg.Concurrency)

	for _, g := range games {
		if !g.Meta.IsTimeControl(r.cfg.TimeControls) {
			atomic.AddInt64(&sum.GamesSkipped, 1)
			continue
		}
		g := g
		grp.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			sess, err := r.Sessions()
			if err != nil {
				if errors.Is(err, engine.ErrUnavailable) {
					// No point analyzing further games without an engine.
					return err
				}
				atomic.AddInt64(&sum.GamesFailed, 1)
				r.log.Warn().Err(err).Str("game", g.Meta.ID).Msg("open session failed")
				return nil
			}
			defer sess.Close()

			drills, err := r.analyzeGame(ctx, sess, runID, g)
			atomic.AddInt64(&sum.Drills, drills)
			switch {
			case err == nil || errors.Is(err, errBudget):
				atomic.AddInt64(&sum.GamesAnalyzed, 1)
			case errors.Is(err, replay.ErrIllegalMove),
				errors.Is(err, engine.ErrTimeout),
				errors.Is(err, engine.ErrProtocol):
				// Transient: the game is skipped, the batch continues.
				atomic.AddInt64(&sum.GamesFailed, 1)
				r.log.Warn().Err(err).Str("game", g.Meta.ID).Msg("game analysis failed")
			default:
				return err
			}
			return nil
		})
	}

	err := grp.Wait()
	sum.Evals = atomic.LoadInt64(&r.evals)
	return sum, err
}

// analyzeGame walks one game, evaluating each position once: the
// verdict for the position after move k is reused as the before-verdict
// of move k+1 (it is already from that mover's perspective).
func (r *Runner) analyzeGame(ctx context.Context, sess EvalSession, runID int64, g replay.Game) (int64, error) {
	if err := r.rec.RecordGame(ctx, g.Meta); err != nil {
		return 0, fmt.Errorf("record game %s: %w", g.Meta.ID, err)
	}

	var drills int64
	var carried engine.Verdict
	haveCarried := false

	walker := replay.NewWalker(g)
	err := walker.Walk(func(rec replay.MoveRecord) error {
		// Cancellation is checked between moves, before each evaluate.
		if err := ctx.Err(); err != nil {
			return err
		}

		before := carried
		if !haveCarried {
			v, err := r.evaluate(ctx, sess, rec.FENBefore)
			if err != nil {
				return err
			}
			before = v
		}
		after, err := r.evaluate(ctx, sess, rec.FENAfter)
		if err != nil {
			return err
		}
		carried, haveCarried = after, true

		me := MoveEval{
			MoveRecord: rec,
			BeforeCP:   before.ScoreCP,
			AfterCP:    after.ScoreCP,
			LossCP:     Loss(before.ScoreCP, after.ScoreCP),
			Evaluated:  true,
		}
		if err := r.rec.RecordMove(ctx, runID, g.Meta.ID, me); err != nil {
			return fmt.Errorf("record move: %w", err)
		}

		sev, ok := r.cfg.Thresholds.Classify(me.LossCP, rec.TimeSpent, rec.TimeKnown, me.BeforeCP)
		if !ok {
			return nil
		}
		d := BuildDrill(runID, g.Meta.ID, rec, before.BestMove, me.BeforeCP, me.AfterCP, me.LossCP, sev)
		if err := r.rec.RecordDrill(ctx, d); err != nil {
			return fmt.Errorf("record drill: %w", err)
		}
		drills++
		r.log.Debug().
			Str("game", g.Meta.ID).
			Int("ply", rec.Ply).
			Int("loss_cp", me.LossCP).
			Int("severity", int(sev)).
			Msg("drill flagged")
		return nil
	})
	return drills, err
}

func (r *Runner) evaluate(ctx context.Context, sess EvalSession, fen string) (engine.Verdict, error) {
	if atomic.AddInt64(&r.evals, 1) > int64(r.cfg.MaxEvals) {
		atomic.AddInt64(&r.evals, -1)
		return engine.Verdict{}, errBudget
	}
	return sess.Evaluate(ctx, fen, r.cfg.Limit)
}
