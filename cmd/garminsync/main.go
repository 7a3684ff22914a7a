package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	cryptoadapter "github.com/ericfisherdev/garminsync/internal/adapter/driven/crypto"
	garminadapter "github.com/ericfisherdev/garminsync/internal/adapter/driven/garmin"
	redisadapter "github.com/ericfisherdev/garminsync/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/garminsync/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/garminsync/internal/adapter/driving/http"
	webhandler "github.com/ericfisherdev/garminsync/internal/adapter/driving/web"
	"github.com/ericfisherdev/garminsync/internal/application"
	"github.com/ericfisherdev/garminsync/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"garmin_base_url", cfg.GarminBaseURL,
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"sync_interval", cfg.SyncInterval,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", db.Path())

	// 4. Run migrations on writer connection.
	version, err := sqliteadapter.RunMigrations(db.Writer)
	if err != nil {
		return err
	}
	slog.Info("migrations complete", "version", version)

	// 5. Connect to Redis for the shared rate limit budget.
	redisClient, err := redisadapter.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := redisClient.Close(); closeErr != nil {
			slog.Error("error closing redis client", "error", closeErr)
		}
	}()
	limiter := redisadapter.NewSlidingWindowLimiter(redisClient)

	// 6. Wire driven adapters.
	cipher, err := cryptoadapter.NewPBKDF2Cipher(cfg.SecretKey)
	if err != nil {
		return err
	}
	provider, err := garminadapter.NewProvider(cfg.GarminBaseURL, cfg.UpstreamTimeout)
	if err != nil {
		return err
	}
	credentialStore := sqliteadapter.NewCredentialRepo(db)
	activityStore := sqliteadapter.NewActivityRepo(db)
	metricStore := sqliteadapter.NewHealthMetricRepo(db)

	// 7. Application services. Every sync and every credential check gets a
	// fresh client sharing the Redis budget.
	clientCfg := application.DefaultSyncClientConfig()
	clientCfg.RateLimit = cfg.RateLimitPerMinute
	clientCfg.MinInterval = cfg.MinRequestInterval

	vault := application.NewCredentialVault(credentialStore, cipher, func(username string) application.CredentialValidator {
		return application.NewSyncClient(provider, limiter, "validate:"+username, clientCfg)
	})
	syncSvc := application.NewSyncService(vault, func(userID string) application.WellnessClient {
		return application.NewSyncClient(provider, limiter, userID, clientCfg)
	}, activityStore, metricStore)

	// 8. Start the sync scheduler (periodic cycle only when an interval is set).
	scheduler := application.NewSyncScheduler(syncSvc, vault, cfg.SyncDays, cfg.SyncInterval)
	go scheduler.Start(ctx)

	// 9. Register API and web routes.
	mux := http.NewServeMux()
	httphandler.RegisterAPIRoutes(mux, httphandler.NewHandler(vault, syncSvc, slog.Default()))
	webhandler.RegisterRoutes(mux, webhandler.NewHandler(syncSvc, scheduler, slog.Default()))

	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	// A 30-day sync makes up to 121 spaced upstream calls, so writes get a
	// generous timeout.
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	slog.Info("garminsync started",
		"listen_addr", cfg.ListenAddr,
		"scheduler_enabled", cfg.SchedulerEnabled(),
		"sync_days", cfg.SyncDays,
	)

	// 10. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
