package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/budgetme/prediction-api/internal/auth"
	"github.com/budgetme/prediction-api/internal/config"
	"github.com/budgetme/prediction-api/internal/forecast"
	"github.com/budgetme/prediction-api/internal/service"
	"github.com/budgetme/prediction-api/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx := context.Background()

	var (
		cacheStore store.CacheStore
		quotaStore store.QuotaStore
		storeName  string
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("failed to create database pool: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			logger.Fatalf("failed to ping database: %v", err)
		}
		pg := store.NewPostgresStore(pool, cfg.CacheMaxEntries)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatalf("failed to ensure schema: %v", err)
		}
		cacheStore, quotaStore, storeName = pg, pg, "postgres"
		logger.Info("using postgres store")
	} else {
		mem := store.NewMemoryStore(cfg.CacheMaxEntries)
		defer mem.Stop()
		cacheStore, quotaStore, storeName = mem, mem, "memory"
		logger.Info("using in-memory store, state will not survive restarts")
	}

	var primary forecast.Forecaster
	if cfg.PrimaryEngineDisabled {
		logger.Warn("primary engine disabled, all forecasts will use the fallback estimator")
	} else {
		primary = forecast.NewEngine(cfg.MinObservations)
	}

	svc := service.NewPredictionService(cacheStore, quotaStore, primary, forecast.NewFallbackEstimator(), logger, service.Options{
		CacheTTL:        cfg.CacheTTL,
		MaxPerMonth:     cfg.MaxPredictionsPerMonth,
		MinObservations: cfg.MinObservations,
		FitTimeout:      cfg.ModelFitTimeout,
	})

	authenticate := auth.LocalDevHandler
	if cfg.AuthDisabled {
		logger.Warn("authentication disabled, trusting X-User-ID header")
	} else {
		authenticate = auth.NewMiddleware(cfg.JWTSecret, logger).Handler
	}

	handlers := service.NewHandlers(svc, logger, storeName)
	router := service.NewRouter(handlers, service.RouterConfig{
		CORSOrigins:  cfg.CORSOrigins,
		Authenticate: authenticate,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("prediction API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
