// Command rhythmctl runs the rhythm engine from a terminal: simulated plays,
// stage management, live MIDI sessions and SMF export.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jazzify/rhythmcore/internal/database"
	"github.com/jazzify/rhythmcore/internal/migrations"
	"github.com/jazzify/rhythmcore/internal/stage"
)

var (
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "rhythmctl",
	Short:         "Drive the rhythm engine from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "stage database (libSQL path or URL); empty uses the built-in catalogue")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "WARN", "log level: DEBUG, INFO, WARN or ERROR")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore opens and migrates the database named by --db. Callers close db.
func openStore(ctx context.Context, logger *slog.Logger) (*stage.Store, *sql.DB, error) {
	if dbPath == "" {
		return nil, nil, fmt.Errorf("--db is required")
	}
	db, err := database.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Run(ctx, db, logger); err != nil {
		db.Close()
		return nil, nil, err
	}
	return stage.NewStore(db), db, nil
}

// loadStage reads a stage from --db, or from the catalogue when no database
// is given.
func loadStage(ctx context.Context, id string, logger *slog.Logger) (stage.Stage, error) {
	if dbPath == "" {
		for _, st := range stage.Catalogue() {
			if st.ID == id {
				return st, nil
			}
		}
		return stage.Stage{}, fmt.Errorf("stage %q: %w", id, stage.ErrNotFound)
	}
	store, db, err := openStore(ctx, logger)
	if err != nil {
		return stage.Stage{}, err
	}
	defer db.Close()
	st, err := store.Get(ctx, id)
	if err != nil {
		return stage.Stage{}, fmt.Errorf("stage %q: %w", id, err)
	}
	return st, nil
}
