package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/groundstation-io/vrt-ingest/internal/rx"
	"github.com/groundstation-io/vrt-ingest/internal/source"
	"github.com/groundstation-io/vrt-ingest/internal/storage"
)

const storageDir = "data"

// Run wires the UDP source, receiver, metrics endpoint and store
// together and blocks until ctx is cancelled or a component fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		if cErr := store.Close(); cErr != nil {
			logger.Error("closing storage", "error", cErr)
		}
	}()

	src, err := source.OpenUDP(config.Source, source.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics := rx.NewMetrics(reg)

	if config.Settings.MetricsListen != "" {
		startMetricsServer(ctx, config.Settings.MetricsListen, reg, logger)
	}

	recv, err := rx.New(rx.Config{
		ReorderDepth:   config.Receiver.ReorderDepth,
		ReorderHorizon: time.Duration(config.Receiver.ReorderHorizon),
		ChannelDepth:   config.Receiver.ChannelDepth,
		EmitTimeout:    time.Duration(config.Receiver.EmitTimeout),
	}, rx.WithLogger(logger), rx.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}

	orch := NewOrchestrator(store, recv, src, logger,
		WithListenAddr(config.Source.Listen),
		WithSessionConfig(config),
		WithStaleAfter(time.Duration(config.Streams.StaleAfter)),
		WithStatsInterval(time.Duration(config.Streams.StatsInterval)),
	)
	return orch.Run(ctx)
}

// startMetricsServer serves the Prometheus registry until ctx ends.
// Failures are logged, not fatal: losing metrics must not stop capture.
func startMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func createStorage(config *StorageConfig) (storage.Store, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := filepath.Join(wd, storageDir)
	if config.DataDirectory != "" {
		dbPath = config.DataDirectory
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(wd, dbPath)
		}
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		return nil, fmt.Errorf("storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("vrt_capture_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}
