// Command drilld serves training positions from the drill database and
// grades submitted answers with Stockfish.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daonin/chessdrill/internal/analyze"
	"github.com/daonin/chessdrill/internal/drillapi"
	"github.com/daonin/chessdrill/internal/engine"
	"github.com/daonin/chessdrill/internal/logx"
	"github.com/daonin/chessdrill/internal/store"
)

func main() {
	defaultStockfish := "stockfish"
	if envPath := os.Getenv("STOCKFISH_PATH"); envPath != "" {
		defaultStockfish = envPath
	}

	var (
		addr   = flag.String("addr", ":8017", "listen address")
		dbPath = flag.String("db", "./drills.db", "SQLite database path")

		stockfishPath = flag.String("stockfish", defaultStockfish, "path to Stockfish executable")
		depth         = flag.Int("depth", 12, "evaluation depth for answer checking")
		acceptableCP  = flag.Int("acceptable-cp", 50, "centipawn tolerance for acceptable answers")

		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	logger := logx.NewLogger(*logLevel)

	thresholds := analyze.DefaultThresholds()
	thresholds.AcceptableCP = *acceptableCP
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

	srv := &http.Server{
		Addr: *addr,
		Handler: drillapi.NewRouter(logger, st, drillapi.Config{
			Engine: engine.Config{
				Path:   *stockfishPath,
				Logger: logger.With().Str("component", "engine").Logger(),
			},
			Limit:      engine.Limit{Depth: *depth},
			Thresholds: thresholds,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("drill api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("drill api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
}
