package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/margdarshak/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/margdarshak/internal/adapter/kafka"
	"github.com/couchcryptid/margdarshak/internal/app"
	"github.com/couchcryptid/margdarshak/internal/config"
	"github.com/couchcryptid/margdarshak/internal/observability"
	"github.com/couchcryptid/margdarshak/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build services", "error", err)
		os.Exit(1)
	}

	// Start the observation ingest pipeline when Kafka is configured.
	var reader *kafkaadapter.Reader
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		p := pipeline.New(reader, pipeline.NewTransformer(logger), a.History, logger, metrics, cfg.BatchSize)
		a.AddReadiness(p)
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
		logger.Info("observation ingest enabled", "topic", cfg.KafkaObservationsTopic, "group", cfg.KafkaGroupID)
	} else {
		logger.Info("kafka disabled, observation ingest not started")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Ready:       a,
		Auth:        a.Auth,
		Geocoder:    a.Geocoder,
		Router:      a.Routing,
		Corridors:   a.Corridor,
		Traffic:     a.Traffic,
		Roads:       a.Roads,
		Weather:     a.Weather,
		APIKey:      cfg.APIKey,
		FrontendDir: cfg.FrontendDir,
		DefaultCity: cfg.DefaultCity,
	}, logger, metrics)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if err := a.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
