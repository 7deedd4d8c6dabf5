package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/labbit-23/labbit-main-sub000/internal/app/bootstrap"
	"github.com/labbit-23/labbit-main-sub000/internal/config"
	observemetrics "github.com/labbit-23/labbit-main-sub000/internal/observability/metrics"
	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// messaging-worker drains the chat outbox: replies, menus, location cards,
// booking calls and operator notifications that were not delivered inline.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("messaging worker requires DATABASE_URL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	email, err := bootstrap.BuildEmailSender(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure operator email", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	metrics := observemetrics.NewMessagingMetrics(registry)
	svc, err := bootstrap.BuildServices(cfg, pool, redisClient, email, metrics, logger)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		svc.Deliverer.Start(ctx)
		close(done)
	}()
	logger.Info("messaging worker started", "interval", cfg.OutboxInterval, "batch_size", cfg.OutboxBatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("messaging worker shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	select {
	case <-done:
	case <-shutdownCtx.Done():
	}
}
