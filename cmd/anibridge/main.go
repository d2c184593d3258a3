package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seiyaku/anibridge/internal/api"
	"github.com/seiyaku/anibridge/internal/catalog"
	"github.com/seiyaku/anibridge/internal/config"
	"github.com/seiyaku/anibridge/internal/download"
	"github.com/seiyaku/anibridge/internal/metrics"
	"github.com/seiyaku/anibridge/internal/relay"
	"github.com/seiyaku/anibridge/internal/resolver"
	"github.com/seiyaku/anibridge/internal/scheduler"
	"github.com/seiyaku/anibridge/internal/store"
	"github.com/seiyaku/anibridge/internal/webdav"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting anibridge", "config", *configPath)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure required directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		slog.Error("Failed to create directories", "error", err)
		os.Exit(1)
	}

	// Open the key-value store
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()
	slog.Info("Store opened", "path", cfg.Store.Path)

	// Initialize services
	res := resolver.New(time.Duration(cfg.Resolver.PageTimeout) * time.Second)
	rel := relay.New(time.Duration(cfg.Resolver.StreamTimeout) * time.Second)

	downloads, err := download.NewManager(
		cfg.Download.Directory,
		cfg.Download.MaxConcurrent,
		time.Duration(cfg.Resolver.StreamTimeout)*time.Second,
		st,
	)
	if err != nil {
		slog.Error("Failed to initialize download manager", "error", err)
		os.Exit(1)
	}

	sched, err := scheduler.New(catalog.NewStoreProvider(st), downloads, res, st)
	if err != nil {
		slog.Error("Failed to initialize scheduler", "error", err)
		os.Exit(1)
	}
	sched.Start()

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	registry.MustRegister(metrics.NewDownloadCollector(downloads))

	// Start HTTP server
	apiServer := api.NewServer(res, rel, downloads, sched, registry, m)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: apiServer.Handler(),
	}

	go func() {
		slog.Info("Starting REST API server", "port", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("REST API server error", "error", err)
		}
	}()

	// Optional read-only WebDAV view of the download library
	var webdavHTTPServer *http.Server
	if cfg.WebDAV.Enabled {
		webdavServer := webdav.NewServer(cfg.Download.Directory)
		webdavHTTPServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.WebDAV.Port),
			Handler: webdav.NewAuthMiddleware(webdavServer.Handler(), cfg.WebDAV.Auth),
		}
		go func() {
			slog.Info("Starting WebDAV server", "port", cfg.WebDAV.Port)
			if err := webdavHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("WebDAV server error", "error", err)
			}
		}()
	}

	slog.Info("anibridge is ready",
		"api_url", fmt.Sprintf("http://localhost:%d/api", cfg.Server.HTTPPort),
	)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	slog.Info("Received signal, shutting down", "signal", sig)

	sched.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("REST API server shutdown error", "error", err)
	}
	if webdavHTTPServer != nil {
		if err := webdavHTTPServer.Shutdown(ctx); err != nil {
			slog.Error("WebDAV server shutdown error", "error", err)
		}
	}

	slog.Info("anibridge stopped")
}
