package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openride/relay-gateway/internal/config"
	"github.com/openride/relay-gateway/internal/metrics"
	"github.com/openride/relay-gateway/internal/relay"
	"github.com/openride/relay-gateway/internal/server"
	"github.com/openride/relay-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: "relay-gateway",
	})
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if cfg.BackendAPIKey == "" {
		log.Error("BACKEND_API_KEY is not set; ingestion calls will answer 500 until it is")
	}
	if cfg.AllowAnonymous {
		log.Warn("anonymous connections enabled; development only")
	}

	m := metrics.NewRelay()
	dir := relay.NewDirectory()
	registry := relay.NewRegistry(dir, log)
	router := relay.NewRouter(dir, log, m)
	srv := server.New(cfg, log, registry, dir, router, m)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go srv.RunStatsLogger(ctx)
	go srv.RunRedisIngest(ctx)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("address", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		log.Error("server failed", zap.Error(err))
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}
