// Package main provides the HTTP API server for convo.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/raphaelgruber/convo-go/internal/chat"
	"github.com/raphaelgruber/convo-go/internal/config"
	"github.com/raphaelgruber/convo-go/internal/events"
	"github.com/raphaelgruber/convo-go/internal/llm"
	"github.com/raphaelgruber/convo-go/internal/metrics"
	"github.com/raphaelgruber/convo-go/internal/search"
	"github.com/raphaelgruber/convo-go/internal/server"
	"github.com/raphaelgruber/convo-go/internal/speech"
	"github.com/raphaelgruber/convo-go/internal/store"
	"github.com/raphaelgruber/convo-go/internal/upload"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Parse flags
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	// Initialize logging
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() { _ = cleanup() }()
	slog.SetDefault(logger)

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("starting convo-server", "port", cfg.Port, "storage", cfg.StorageBackend, "provider", cfg.LLMProvider)

	collector := metrics.NewCollector()

	// Open store and model
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	handle, err := store.Open(ctx, cfg, logger, collector)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if err := handle.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	// Wipe database if requested (via flag or env var)
	if *wipeDB || os.Getenv("CONVO_WIPE_DB") == "true" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := handle.WipeData(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("wipe database: %w", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	model, err := llm.NewModel(ctx, cfg, collector, logger)
	cancel()
	if err != nil {
		return err
	}

	uploads, err := upload.NewStorage(cfg.UploadDir, cfg.MaxFileSize)
	if err != nil {
		return err
	}

	orch := chat.NewOrchestrator(handle, model, model, chat.Options{
		History:     chat.StoreAssembler{Store: handle, MaxMessages: cfg.HistoryLimit},
		TurnTimeout: cfg.TurnTimeout,
		Metrics:     collector,
		Logger:      logger,
	})

	hub := events.NewHub(logger, server.AllowOrigin(cfg.CORSOrigins))
	defer hub.Close()

	deps := server.Deps{
		Store:   handle,
		Turns:   orch,
		Uploads: uploads,
		Events:  hub,
		Metrics: collector,
	}
	if sc := search.NewClient(cfg.GoogleAPIKey, cfg.GoogleCSEID, search.WithMetrics(collector), search.WithLogger(logger)); sc.Configured() {
		deps.Search = sc
	} else {
		slog.Info("web search disabled: GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID not set")
	}
	if sp := speech.NewClient(speech.Config{
		Endpoint:   cfg.AzureSpeech.Endpoint,
		APIKey:     cfg.AzureSpeech.APIKey,
		Deployment: cfg.AzureSpeech.Deployment,
		APIVersion: cfg.AzureSpeech.APIVersion,
	}, collector, logger); sp.Configured() {
		deps.Speech = sp
	} else {
		slog.Info("text-to-speech disabled: Azure speech deployment not configured")
	}

	srv := server.New(deps, server.Options{
		CORSOrigins:  cfg.CORSOrigins,
		DefaultTitle: cfg.DefaultTitle,
	}, logger)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: server.ReadHeaderTimeout,
		ReadTimeout:       server.ReadTimeout,
		WriteTimeout:      server.WriteTimeout(cfg.TurnTimeout),
		IdleTimeout:       server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API available", "url", fmt.Sprintf("http://localhost:%s/", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	slog.Info("shutting down server...")

	// Event feed connections are hijacked and not drained by Shutdown
	hub.Close()

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
