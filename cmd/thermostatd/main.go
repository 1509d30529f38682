package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/alert"
	"rental-thermostat-backend/internal/api"
	"rental-thermostat-backend/internal/calendar"
	"rental-thermostat-backend/internal/db"
	"rental-thermostat-backend/internal/dispatch"
	"rental-thermostat-backend/internal/occupancy"
	"rental-thermostat-backend/internal/scheduler"
	"rental-thermostat-backend/internal/store"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	logger.Info().Str("path", configPath).Msg("configuration loaded")

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatal().Msg("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	logger.Info().Str("backend", cfg.Database.Backend).Msg("database initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var alertPool *alert.WorkerPool
	var alerter dispatch.Alerter
	if webpushOptions != nil {
		alertPool = alert.NewWorkerPool(cfg.Push.PoolSize, gormDB, webpushOptions, logger)
		alertPool.Start(ctx)
		alerter = alertPool
	}

	dispatchPool := dispatch.NewPool(cfg.Engine, cfg.Breaker, appStore, alerter, logger)
	dispatchPool.Start(ctx)

	var sources []calendar.Source
	for _, srcCfg := range cfg.Calendar.Sources {
		src, err := calendar.NewFeedSource(srcCfg, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("source", srcCfg.ID).Msg("failed to initialize calendar source")
		}
		sources = append(sources, src)
	}
	normalizer := occupancy.NewNormalizer(sources, logger)

	engineSvc := scheduler.NewService(cfg, appStore, normalizer, dispatchPool, logger)
	go engineSvc.Run(ctx)

	router := api.NewRouter(cfg, appStore, engineSvc, webpushOptions)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info().Msg("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("server gracefully stopped")
}
