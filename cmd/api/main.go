package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/user/isbn-service/internal/delivery/http/handler"
	"github.com/user/isbn-service/internal/delivery/http/router"
	"github.com/user/isbn-service/internal/usecase"
	"github.com/user/isbn-service/pkg/config"
	"github.com/user/isbn-service/pkg/logger"
	"github.com/user/isbn-service/pkg/metrics"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("could not load config: %v", err)
	}

	// --- Logger ---
	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("could not build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Storage and upstream ---
	ctx := context.Background()
	store, cleanup, err := newStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("could not initialize cache store", zap.String("backend", cfg.CacheBackend), zap.Error(err))
	}
	defer cleanup.close()

	fetcher, closeFetcher := newFetcher(cfg, zlog)
	defer closeFetcher()

	// --- Use Cases ---
	lookup := usecase.NewBookLookup(store, fetcher, m, zlog, usecase.LookupConfig{
		UpstreamTimeout:     cfg.UpstreamTimeout(),
		DeduplicateInflight: cfg.DeduplicateInflight,
	})

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(lookup, store, zlog)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, m, reg, zlog),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout() + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zlog.Info("server started",
			zap.String("port", cfg.ServerPort),
			zap.String("cache_backend", cfg.CacheBackend),
			zap.String("fetch_mode", cfg.FetchMode),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		zlog.Error("could not start server", zap.Error(err))
		return
	}

	zlog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
		return
	}

	zlog.Info("server exiting")
}
