package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/storm-footprint/internal/adapter/csvio"
	"github.com/couchcryptid/storm-footprint/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/storm-footprint/internal/adapter/kafka"
	"github.com/couchcryptid/storm-footprint/internal/adapter/postgres"
	"github.com/couchcryptid/storm-footprint/internal/config"
	"github.com/couchcryptid/storm-footprint/internal/observability"
	"github.com/couchcryptid/storm-footprint/internal/pipeline"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	source := csvio.NewFileSource(csvio.Paths{
		Tracks:        cfg.TracksPath,
		IntensityBins: cfg.IntensityBinsPath,
		DamageBins:    cfg.DamageBinsPath,
		Vulnerability: cfg.VulnerabilityPath,
		Region:        cfg.RegionPath,
	})

	sinks := []pipeline.Sink{csvio.NewDirSink(cfg.OutputDir, logger)}
	var closers []func() error

	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg.KafkaBrokers, cfg.KafkaFootprintTopic, logger)
		sinks = append(sinks, writer)
		closers = append(closers, writer.Close)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaFootprintTopic)
	}
	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		if err := store.Migrate(ctx); err != nil {
			logger.Error("failed to migrate postgres", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	p := pipeline.New(cfg, source, sinks, logger, metrics)

	code := 0
	if cfg.HTTPAddr == "" {
		if _, err := p.Run(ctx); err != nil {
			code = 1
		}
	} else {
		code = serve(ctx, cfg, p, logger)
	}

	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("close error", "error", err)
		}
	}
	stop()
	os.Exit(code)
}

// serve runs the footprint once while exposing health, metrics, and the last
// manifest, then keeps serving until a signal arrives.
func serve(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, logger *slog.Logger) int {
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, prometheus.DefaultGatherer, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	code := 0
	if _, err := p.Run(ctx); err != nil {
		code = 1
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
	return code
}
