// Command orphan-sweep force-ends sessions still marked live whose record has
// not been touched recently. The server runs the same sweep on a leader
// schedule; this is the manual escape hatch for operations.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Hassanturkie1994-hash/roast-live-app-fauwkm-ymbhwd-sub010/internal/postgres"
)

func main() {
	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
		maxAge      = flag.Duration("max-age", 5*time.Minute, "Age after which a live session counts as orphaned")
		dryRun      = flag.Bool("dry-run", false, "List orphans without ending them")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	repo := postgres.NewSessionRepo(pool)
	stale, err := repo.ListStaleLive(ctx, *maxAge)
	if err != nil {
		log.Fatalf("Failed to list stale sessions: %v", err)
	}

	if len(stale) == 0 {
		slog.Info("No orphaned sessions found", "max_age", maxAge.String())
		return
	}

	ended := 0
	for _, id := range stale {
		if *dryRun {
			slog.Info("Would end orphaned session", "session_id", id.String())
			continue
		}
		if err := repo.MarkEnded(ctx, id, time.Now().UTC()); err != nil {
			slog.Error("Failed to end session", "session_id", id.String(), "error", err)
			continue
		}
		slog.Info("Ended orphaned session", "session_id", id.String())
		ended++
	}

	slog.Info("Sweep complete", "found", len(stale), "ended", ended, "dry_run", *dryRun)
}
