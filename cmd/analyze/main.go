// Command analyze fetches a player's recent chess.com games, replays
// them through Stockfish, and writes flagged blunders to the drill
// database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/engine"
	"github.com/daonin/chessdrill/internal/gamesource"
	"github.com/daonin/chessdrill/internal/logx"
	"github.com/daonin/chessdrill/internal/store"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		user   = flag.String("user", "", "chess.com username (required)")
		months = flag.Int("months", 2, "monthly archives to fetch, newest first")

		dbPath   = flag.String("db", "./drills.db", "SQLite database path")
		cacheDir = flag.String("cache-dir", "./data/archives", "PGN archive cache directory (empty = disabled)")

		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		depth         = flag.Int("depth", 12, "evaluation depth per position")
		moveTime      = flag.Duration("movetime", 0, "per-position search time (overrides depth when set)")
		concurrency   = flag.Int("concurrency", 2, "games analyzed in parallel, one engine each")
		maxEvals      = flag.Int("max-evals", 2500, "engine evaluation budget for this run")

		timeControl = flag.String("time-control", "300,300+0", "comma-separated time controls to analyze")
		blunderCP   = flag.Int("blunder-cp", 150, "minimum centipawn loss to flag")
		severeCP    = flag.Int("severe-cp", 300, "centipawn loss for severity 3")
		longThink   = flag.Duration("long-think", 20*time.Second, "think time that bumps severity")
		blowoutCP   = flag.Int("blowout-cp", 0, "skip positions already past this |eval| (0 = disabled)")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logx.NewLogger(*logLevel)

	if *user == "" {
		logger.Fatal().Msg("-user is required")
	}

	thresholds := analyze.DefaultThresholds()
	thresholds.BlunderCP = *blunderCP
	thresholds.SevereCP = *severeCP
	thresholds.LongThink = *longThink
	thresholds.BlowoutCP = *blowoutCP
	if err := thresholds.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("bad thresholds")
	}

	st, err := store.Open(*dbPath, logger.With().Str("component", "store").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := gamesource.New(gamesource.Config{
		CacheDir: *cacheDir,
		Logger:   logger.With().Str("component", "gamesource").Logger(),
	})
	games, err := src.RecentGames(ctx, *user, *months)
	if err != nil {
		logger.Fatal().Err(err).Msg("fetch games")
	}
	if len(games) == 0 {
		logger.Info().Str("user", *user).Msg("no games found")
		return
	}

	limit := engine.Limit{Depth: *depth}
	if *moveTime > 0 {
		limit = engine.Limit{MoveTime: *moveTime}
	}

	runner, err := analyze.NewRunner(analyze.RunnerConfig{
		Engine: engine.Config{
			Path:   *stockfishPath,
			Logger: logger.With().Str("component", "engine").Logger(),
		},
		Limit:        limit,
		Thresholds:   thresholds,
		TimeControls: splitList(*timeControl),
		MaxEvals:     *maxEvals,
		Concurrency:  *concurrency,
		Logger:       logger.With().Str("component", "analyze").Logger(),
	}, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure runner")
	}

	params := fmt.Sprintf("user=%s months=%d depth=%d movetime=%s tc=%s",
		*user, *months, *depth, *moveTime, *timeControl)
	runID, err := st.BeginRun(ctx, params)
	if err != nil {
		logger.Fatal().Err(err).Msg("begin run")
	}
	logger.Info().Int64("run", runID).Int("games", len(games)).Msg("analysis started")

	sum, err := runner.Run(ctx, runID, games)
	if ferr := st.FinishRun(context.Background(), runID, sum); ferr != nil {
		logger.Error().Err(ferr).Msg("finish run")
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("analysis aborted")
	}

	logger.Info().
		Int64("run", runID).
		Int64("analyzed", sum.GamesAnalyzed).
		Int64("skipped", sum.GamesSkipped).
		Int64("failed", sum.GamesFailed).
		Int64("drills", sum.Drills).
		Int64("evals", sum.Evals).
		Msg("analysis complete")

	if ms, err := st.MoveStats(context.Background(), runID, thresholds); err == nil && ms.Moves > 0 {
		logger.Info().
			Int("moves", ms.Moves).
			Int("timed", ms.TimedMoves).
			Float64("avg_time_sec", ms.AvgTimeSec).
			Int("long_thinks", ms.LongThinks).
			Int("fast_moves", ms.FastMoves).
			Int("blunders", ms.Blunders).
			Msg("move stats")
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
