/**
 * SIRIM Capture Worker - Main Entry Point
 *
 * Turns photographed SIRIM compliance labels into validated records and
 * keeps them in sync with a shared remote store.
 *
 * Architecture:
 * - Tesseract recognition + spatial field extraction + rule validation
 * - Pebble local record store (authoritative, works offline)
 * - PostgreSQL remote store with recency-wins reconciliation
 * - Asynq periodic/on-demand sync with exponential backoff
 * - Gin HTTP API for captures, records, export and sync triggers
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adverant/nexus/sirim-worker/internal/api"
	"github.com/adverant/nexus/sirim-worker/internal/clients"
	"github.com/adverant/nexus/sirim-worker/internal/config"
	"github.com/adverant/nexus/sirim-worker/internal/logging"
	"github.com/adverant/nexus/sirim-worker/internal/metrics"
	"github.com/adverant/nexus/sirim-worker/internal/processor"
	"github.com/adverant/nexus/sirim-worker/internal/processor/tesseract"
	"github.com/adverant/nexus/sirim-worker/internal/queue"
	"github.com/adverant/nexus/sirim-worker/internal/storage"
	"github.com/adverant/nexus/sirim-worker/internal/syncer"
	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := logging.NewLogger("Main")

	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		logger.Warn(".env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}
	logging.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	exportLoc, err := time.LoadLocation(cfg.ExportTimezone)
	if err != nil {
		logger.Fatal("Invalid export timezone", "timezone", cfg.ExportTimezone, "error", err)
	}

	logger.Info("SIRIM capture worker starting...",
		"http_addr", cfg.HTTPAddr,
		"local_store", cfg.LocalStoreDir,
		"sync_enabled", cfg.SyncEnabled(),
		"image_store", cfg.ImageStore)

	reg := metrics.NewRegistry()

	// Local store
	store, err := storage.NewPebbleStore(cfg.LocalStoreDir)
	if err != nil {
		logger.Fatal("Failed to open local store", "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Error closing local store", "error", err)
		}
	}()

	// Remote store (optional)
	var (
		remote *storage.PostgresRemote
		probe  *syncer.PingProbe
	)
	if cfg.SyncEnabled() {
		remote, err = storage.NewPostgresRemote(cfg.RemoteDatabaseURL)
		if err != nil {
			logger.Fatal("Failed to initialize remote store", "error", err)
		}
		defer remote.Close()

		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := remote.EnsureSchema(schemaCtx); err != nil {
			// Offline at startup is fine; the schema is retried on next start
			logger.Warn("Remote schema not ensured", "error", err)
		}
		cancel()
		probe = syncer.NewPingProbe(remote, cfg.ProbeTimeout)
	}

	images, closeImages := buildImageStore(cfg, logger)
	defer closeImages()

	coordCfg := &syncer.CoordinatorConfig{
		Store:   store,
		Metrics: reg,
	}
	if remote != nil {
		coordCfg.Remote = remote
		coordCfg.Probe = probe
	}
	if images != nil {
		coordCfg.Images = images
	}
	coord, err := syncer.NewCoordinator(coordCfg)
	if err != nil {
		logger.Fatal("Failed to initialize sync coordinator", "error", err)
	}

	// Capture pipeline
	proc, err := processor.NewLabelProcessor(&processor.ProcessorConfig{
		Recognizer: tesseract.NewEngine(&tesseract.Config{Languages: cfg.TesseractLanguages}),
		Metrics:    reg,
	})
	if err != nil {
		logger.Fatal("Failed to initialize label processor", "error", err)
	}
	frames := processor.NewFrameProcessor(proc)
	defer frames.Close()

	// Sync scheduling
	var scheduler *queue.Scheduler
	if cfg.SyncEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", "error", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		scheduler, err = queue.NewScheduler(&queue.SchedulerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.SyncQueue,
			OwnerID:     cfg.SyncOwnerID,
			Interval:    cfg.SyncInterval,
			BaseBackoff: cfg.SyncBaseBackoff,
			MaxBackoff:  cfg.SyncMaxBackoff,
			MaxRetry:    cfg.SyncMaxRetry,
			LockTTL:     cfg.SyncLockTTL,
			Cycler:      coord,
			Locker:      redislock.New(rdb),
			Events:      rdb,
		})
		if err != nil {
			logger.Fatal("Failed to initialize sync scheduler", "error", err)
		}
		if err := scheduler.Start(context.Background()); err != nil {
			logger.Fatal("Failed to start sync scheduler", "error", err)
		}
	}

	apiCfg := api.Config{
		Processor:      proc,
		Frames:         frames,
		Records:        coord,
		Store:          store,
		Metrics:        reg,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		ExportLocation: exportLoc,
	}
	if scheduler != nil {
		apiCfg.Trigger = scheduler
	}
	if probe != nil {
		apiCfg.Probe = probe
	}
	router, err := api.NewRouter(apiCfg)
	if err != nil {
		logger.Fatal("Failed to build HTTP router", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	logger.Info("SIRIM capture worker is READY", "http_addr", cfg.HTTPAddr)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown...", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping sync scheduler", "error", err)
		}
	}

	logger.Info("Shutdown complete")
}

// buildImageStore selects the configured photo backend. The returned closer
// is always safe to call.
func buildImageStore(cfg *config.Config, logger *logging.Logger) (syncer.ImageStore, func()) {
	switch cfg.ImageStore {
	case config.ImageStoreArtifact:
		client := clients.NewArtifactClient(cfg.ArtifactAPIURL)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.HealthCheck(ctx); err != nil {
			logger.Warn("Artifact service not reachable yet", "error", err)
		}
		return client, func() {}
	case config.ImageStoreGCS:
		gcs, err := clients.NewGCSImageStore(context.Background(), cfg.GCSBucket, cfg.GCSCredentialsJSON)
		if err != nil {
			logger.Fatal("Failed to initialize GCS image store", "error", err)
		}
		return gcs, func() { _ = gcs.Close() }
	default:
		return nil, func() {}
	}
}
