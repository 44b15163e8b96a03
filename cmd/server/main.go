package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltfleet/webhook-dispatcher/internal/api"
	"github.com/voltfleet/webhook-dispatcher/internal/config"
	"github.com/voltfleet/webhook-dispatcher/internal/dispatch"
	"github.com/voltfleet/webhook-dispatcher/internal/metrics"
	"github.com/voltfleet/webhook-dispatcher/internal/store"
	ws "github.com/voltfleet/webhook-dispatcher/internal/websocket"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	if err := pgStore.RunMigrations(ctx, "migrations"); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisStore.Close()
	logger.Info("connected to Redis")

	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)

	hub := ws.NewHub(logger)
	go hub.Run()

	limiter := dispatch.NewRateLimiter(redisStore.Client(), logger)
	deliverer := dispatch.NewDeliverer(pgStore, limiter, hub, cfg.DeliveryTimeout, logger)
	scheduler := dispatch.NewScheduler(deliverer, pgStore, logger)
	fanout := dispatch.NewFanout(pgStore, deliverer, scheduler, logger)

	router := api.NewRouter(pgStore, fanout, hub, promReg, api.SubscriberDefaults{
		MaxAttempts: cfg.DefaultMaxAttempts,
		BaseDelayMs: cfg.DefaultBaseDelayMs,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Pending retry timers are in-process only and are abandoned here; the
	// delivery log keeps the trail of what settled before shutdown.
	logger.Info("server stopped")
}
