// Command civdef-sync runs one batch sync of every pending marker against
// the moderation gateway and prints the summary. It refuses to run while
// the server holds the database; use POST /api/sync there instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/logging"
	"github.com/mr1hm/go-civdef-map/internal/moderation"
	"github.com/mr1hm/go-civdef-map/internal/repository"
	"github.com/mr1hm/go-civdef-map/internal/store"
	"github.com/mr1hm/go-civdef-map/internal/syncer"
)

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

func main() {
	dryRun := flag.Bool("dry-run", false, "list pending markers without moderating them")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	markers := store.NewMarkerStore(db, nil)
	if _, err := markers.Load(ctx); err != nil {
		logging.Fatalf("Failed to load markers: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *dryRun {
		pending := markers.Pending()
		slog.Info("pending markers", "count", len(pending))
		if err := enc.Encode(pending); err != nil {
			logging.Fatalf("Failed to write output: %v", err)
		}
		return
	}

	lease, err := repository.HoldLease(ctx, db, repository.WriterLease, cfg.DB.LeaseTTL)
	if errors.Is(err, repository.ErrLeaseHeld) {
		logging.Fatalf("Server is running against %s, trigger POST /api/sync instead: %v", cfg.DB.Path, err)
	}
	if err != nil {
		logging.Fatalf("Failed to lock database: %v", err)
	}
	defer lease.Release()

	// Reload under the lease so the batch starts from the last committed state.
	if _, err := markers.Load(ctx); err != nil {
		logging.Fatalf("Failed to load markers: %v", err)
	}

	gateway := moderation.New(genai.NewClient(cfg.AI), cfg.AI.ModerationTimeout)
	coord := syncer.NewCoordinator(markers, gateway, alwaysOnline{}, nil, false)

	var ids []string
	if flag.NArg() > 0 {
		ids = flag.Args()
	}
	sum, err := coord.Sync(ctx, ids)
	if err != nil {
		logging.Fatalf("Sync failed: %v", err)
	}
	if err := enc.Encode(sum); err != nil {
		logging.Fatalf("Failed to write output: %v", err)
	}
}
