package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/Territoires/internal/api"
	"github.com/MikeSquared-Agency/Territoires/internal/config"
	"github.com/MikeSquared-Agency/Territoires/internal/hermes"
	"github.com/MikeSquared-Agency/Territoires/internal/scoring"
	"github.com/MikeSquared-Agency/Territoires/internal/snapshot"
	"github.com/MikeSquared-Agency/Territoires/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data store
	db, err := store.Open(ctx, cfg.Data)
	if err != nil {
		logger.Error("failed to open data store", "backend", cfg.Data.Backend, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("data store opened", "backend", cfg.Data.Backend)

	// Hermes (optional)
	var hermesClient hermes.Client = hermes.NoopClient{}
	if cfg.Hermes.URL != "" {
		hc, err := hermes.NewNATSClient(ctx, cfg.Hermes.URL, logger)
		if err != nil {
			logger.Warn("failed to connect to hermes, running without events", "error", err)
		} else {
			hermesClient = hc
			defer hc.Close()
		}
	}

	// Snapshot
	holder := &snapshot.Holder{}
	loader := snapshot.NewLoader(db, cfg.DefinitionsFor, logger)
	reloader := snapshot.NewReloader(loader, holder, hermesClient, logger)
	if _, err := reloader.Reload(ctx, snapshot.TriggerStartup); err != nil {
		logger.Error("failed to load initial snapshot", "error", err)
		os.Exit(1)
	}
	if err := reloader.Start(ctx, cfg.Data.ReloadCron); err != nil {
		logger.Error("failed to start reloader", "error", err)
		os.Exit(1)
	}
	defer reloader.Stop()

	pipeline := scoring.NewPipeline(cfg.Scoring.Classes, logger)

	// API server
	router := api.NewRouter(holder, pipeline, hermesClient, reloader, cfg, logger)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler:           api.NewMetricsRouter(holder),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}
