package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"docconsole/internal/app"
	"docconsole/internal/backend"
	"docconsole/internal/config"
	"docconsole/internal/conflict"
	"docconsole/internal/logging"
	"docconsole/internal/metacache"
	"docconsole/internal/metrics"
	"docconsole/internal/search"
	"docconsole/internal/store"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := metrics.NewCollector("docconsole")
	server := backend.New(cfg.BackendURL, backend.Options{
		Timeout: cfg.BackendTimeout,
		Logger:  logger.Named("backend"),
		Observe: collector.ObserveBackend,
	})

	deps := app.Deps{
		Server:  server,
		Metrics: collector,
		Logger:  logger,
		Checks:  map[string]app.Pinger{},
	}

	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database connection failed", zap.Error(err))
		}
		defer db.Close()
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			logger.Fatal("migrations failed", zap.Error(err))
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("versions", applied))
		}
		conflicts := store.NewPostgresStore(db)
		deps.Conflicts = conflicts
		deps.Checks["database"] = conflicts
		go purgeLoop(ctx, conflicts, cfg.ConflictRetention, logger)
		logger.Info("conflicts stored in postgres")
	} else {
		deps.Conflicts = conflict.NewMemoryStore()
		logger.Info("conflicts stored in memory")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		cache, err := metacache.NewRedis(cfg.RedisURL, cfg.TitleCacheTTL)
		if err != nil {
			logger.Fatal("redis connection failed", zap.Error(err))
		}
		defer cache.Close()
		deps.Cache = cache
		deps.Checks["redis"] = cache
		logger.Info("title cache in redis")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger.Named("search"))
		defer meili.Close()
	}
	deps.Search = search.NewService(meili, server, logger.Named("search"))

	service := app.NewService(cfg, deps)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("document console listening", zap.String("addr", cfg.Addr), zap.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

type purger interface {
	PurgeResolved(ctx context.Context, cutoff time.Time) (int64, error)
}

// purgeLoop drops resolved conflicts older than retention once an hour.
func purgeLoop(ctx context.Context, p purger, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		n, err := p.PurgeResolved(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("purge resolved conflicts failed", zap.Error(err))
		case n > 0:
			logger.Info("purged resolved conflicts", zap.Int64("count", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
