package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jazzify/rhythmcore/internal/audio"
	"github.com/jazzify/rhythmcore/internal/config"
	"github.com/jazzify/rhythmcore/internal/database"
	"github.com/jazzify/rhythmcore/internal/handler/health"
	"github.com/jazzify/rhythmcore/internal/leaderboard"
	"github.com/jazzify/rhythmcore/internal/migrations"
	"github.com/jazzify/rhythmcore/internal/server"
	"github.com/jazzify/rhythmcore/internal/session"
	"github.com/jazzify/rhythmcore/internal/stage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- libSQL ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to database", "path", cfg.DBPath)

	stages := stage.NewStore(db)
	if cfg.SeedStages {
		if _, err := stage.Seed(ctx, stages, logger); err != nil {
			return fmt.Errorf("seeding stages: %w", err)
		}
	}

	// --- Redis ---
	rdb, err := leaderboard.Connect(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	checks := map[string]health.Checker{"libsql": health.CheckerFunc(stages.Ping)}
	board := leaderboard.New(rdb)
	if rdb != nil {
		defer rdb.Close()
		checks["redis"] = board
		logger.Info("leaderboard enabled")
	} else {
		logger.Info("leaderboard disabled, REDIS_URL is empty")
	}

	// --- Audio ---
	opts := session.Options{Windows: cfg.Windows()}
	if cfg.AudioEnabled {
		dev, err := audio.Open()
		switch {
		case errors.Is(err, audio.ErrUnavailable):
			logger.Warn("audio device unavailable, sessions use the software clock", "error", err)
		case err != nil:
			return fmt.Errorf("opening audio device: %w", err)
		default:
			opts.Output = dev
			logger.Info("audio device opened", "sample_rate", audio.SampleRate)
		}
	}

	sessions := session.NewRegistry(stages, stages, board, session.NewBroker(), opts, logger)

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Stages:         stages,
		Sessions:       sessions,
		Leaderboard:    board,
		Health:         health.NewHandler(logger, checks).Routes(),
		AdminTokenHash: cfg.AdminTokenHash,
		CORSOrigins:    cfg.CORSOrigins,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Ending the sessions first closes their event streams.
		return errors.Join(
			sessions.Shutdown(shutdownCtx),
			srv.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}
