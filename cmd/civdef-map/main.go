package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-civdef-map/internal/api"
	"github.com/mr1hm/go-civdef-map/internal/board"
	"github.com/mr1hm/go-civdef-map/internal/config"
	"github.com/mr1hm/go-civdef-map/internal/connectivity"
	"github.com/mr1hm/go-civdef-map/internal/describe"
	"github.com/mr1hm/go-civdef-map/internal/events"
	"github.com/mr1hm/go-civdef-map/internal/genai"
	"github.com/mr1hm/go-civdef-map/internal/intel"
	"github.com/mr1hm/go-civdef-map/internal/logging"
	"github.com/mr1hm/go-civdef-map/internal/metrics"
	"github.com/mr1hm/go-civdef-map/internal/moderation"
	"github.com/mr1hm/go-civdef-map/internal/repository"
	"github.com/mr1hm/go-civdef-map/internal/store"
	"github.com/mr1hm/go-civdef-map/internal/syncer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	if dir := filepath.Dir(cfg.DB.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logging.Fatalf("Failed to create data directory: %v", err)
		}
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Single writer per database: civdef-sync refuses to run while this is held.
	lease, err := repository.HoldLease(ctx, db, repository.WriterLease, cfg.DB.LeaseTTL)
	if err != nil {
		logging.Fatalf("Database is in use by another process: %v", err)
	}
	defer lease.Release()

	bus := events.NewBus()

	// A read failure leaves the store empty but usable.
	markers := store.NewMarkerStore(db, bus)
	if _, err := markers.Load(ctx); err != nil {
		slog.Error("marker store unavailable, starting empty", "error", err)
	}
	contacts := store.NewContactStore(db, bus)
	if _, err := contacts.Load(ctx); err != nil {
		slog.Error("contact store unavailable, starting empty", "error", err)
	}
	inventory := store.NewInventoryStore(db, bus)
	if _, err := inventory.Load(ctx); err != nil {
		slog.Error("inventory unavailable, starting empty", "error", err)
	}

	client := genai.NewClient(cfg.AI)
	gateway := moderation.New(client, cfg.AI.ModerationTimeout)

	monitor := connectivity.NewMonitor(cfg.Connectivity, bus, cfg.Connectivity.CheckAddr == "")
	coord := syncer.NewCoordinator(markers, gateway, monitor, bus, cfg.Sync.Auto)

	mgr := intel.NewManager(cfg.Intel, cfg.Worker, intel.NewGenerator(client), monitor, bus)
	mgr.Start(ctx, bus)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		coord.Run(ctx, bus)
	}()
	go func() {
		defer wg.Done()
		monitor.Watch(ctx)
	}()
	if monitor.Online() {
		go monitor.Probe(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", api.AdminKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(metrics.Middleware())
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(api.Deps{
		Markers:      markers,
		Contacts:     contacts,
		Inventory:    inventory,
		Coordinator:  coord,
		Connectivity: monitor,
		Intel:        mgr,
		Board:        board.New(gateway, bus),
		Describer:    describe.New(client, cfg.AI.ModerationTimeout),
		Bus:          bus,
		ShareBaseURL: cfg.Server.ShareBaseURL,
		AdminKey:     cfg.Security.AdminKey,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	wg.Wait()
	bus.Close() // ends open event streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
