package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flotteq/booking-service/internal/api/router"
	"github.com/flotteq/booking-service/internal/bookings"
	appconfig "github.com/flotteq/booking-service/internal/config"
	"github.com/flotteq/booking-service/internal/fleet"
	"github.com/flotteq/booking-service/internal/observability/metrics"
	"github.com/flotteq/booking-service/internal/wizard"
	"github.com/flotteq/booking-service/pkg/logging"
)

func main() {
	// Load .env for local development; ignore if absent
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-service API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.CoreAPIBaseURL == "" {
		logger.Error("CORE_API_BASE_URL is required")
		os.Exit(1)
	}
	if cfg.AuthJWTSecret == "" {
		logger.Error("AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	wizardMetrics := metrics.NewWizardMetrics(registry)

	// Redis-backed session store
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() { _ = redisClient.Close() }()
	sessionStore := wizard.NewRedisStore(redisClient, cfg.SessionTTL)

	// Optional Postgres booking records
	var recorder wizard.BookingRecorder
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		recorder = bookings.NewRepository(pool)
		logger.Info("booking records enabled")
	} else {
		logger.Warn("DATABASE_URL not set; booking records disabled")
	}

	// Core API client and wizard service
	coreClient := fleet.NewClient(cfg.CoreAPIBaseURL, cfg.CoreAPIToken, cfg.CoreAPITimeout, logger)
	wizardService := wizard.NewService(coreClient, sessionStore, recorder, wizardMetrics, logger)
	wizardHandler := wizard.NewHandler(wizardService, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		WizardHandler:      wizardHandler,
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AuthJWTSecret:      cfg.AuthJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
