package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/backend"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/capture"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/config"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/dispatch"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/display"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/gate"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/metrics"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/server"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/session"
	"github.com/ElvisOkereke/Auto-Subtitle-Translate-Extension/internal/settings"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "caption-orchestrator"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("backend_url", cfg.Backend.BaseURL),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Float64("forward_interval", cfg.Capture.ForwardInterval),
		slog.Int("buffer_capacity", cfg.Capture.BufferCapacity),
		slog.Float64("gate_threshold", cfg.Gate.Threshold),
		slog.String("source_language", cfg.Settings.SourceLanguage),
		slog.String("target_language", cfg.Settings.TargetLanguage),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.New(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	coordinator := dispatch.NewCoordinator(dispatch.Config{
		Timeout:    cfg.Backend.GetTimeoutDuration(),
		MaxRetries: cfg.Backend.MaxRetries,
		BaseDelay:  cfg.Backend.GetRetryBaseDuration(),
	})
	coordinator.OnDedupHit = appMetrics.RecordDedupHit
	coordinator.OnRetry = appMetrics.RecordRetry

	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.Backend.GetTimeoutDuration(),
		MaxRetries:    cfg.Backend.MaxRetries,
		MaxConcurrent: cfg.Backend.MaxConcurrent,
	}, coordinator)
	if err != nil {
		logger.Error("Failed to create backend client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Backend client initialized",
		slog.String("base_url", cfg.Backend.BaseURL),
		slog.Duration("timeout", cfg.Backend.GetTimeoutDuration()),
	)

	// The stub source stands in for the host capture runtime until one is
	// wired up.
	source := capture.NewStubSource(&capture.StubSourceConfig{
		Interval:      cfg.Capture.GetForwardInterval(),
		ChunkDuration: cfg.Capture.GetChunkDuration(),
		SampleRate:    cfg.Capture.SampleRate,
		Amplitude:     0.5,
	})

	store := settings.NewMemoryStore(settings.Snapshot{
		SourceLanguage: cfg.Settings.SourceLanguage,
		TargetLanguage: cfg.Settings.TargetLanguage,
		BackendURL:     cfg.Backend.BaseURL,
	})

	manager, err := session.NewManager(logger, session.Config{
		ForwardInterval:       cfg.Capture.GetForwardInterval(),
		BufferCapacity:        cfg.Capture.BufferCapacity,
		IdleTimeout:           cfg.Capture.GetIdleTimeout(),
		CleanupInterval:       cfg.Capture.GetCleanupInterval(),
		DefaultSourceLanguage: cfg.Settings.SourceLanguage,
		DefaultTargetLanguage: cfg.Settings.TargetLanguage,
	}, session.Deps{
		Source:  source,
		Sink:    display.NewLogSink(logger),
		Store:   store,
		Client:  client,
		Gate:    gate.New(cfg.Gate.Threshold),
		Metrics: appMetrics,
	})
	if err != nil {
		logger.Error("Failed to create session manager", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Session manager initialized",
		slog.Duration("forward_interval", cfg.Capture.GetForwardInterval()),
		slog.Duration("idle_timeout", cfg.Capture.GetIdleTimeout()),
	)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, manager, client, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server started",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	manager.Stop()

	coordStats := coordinator.GetStats()
	logger.Info("Final coordinator statistics",
		slog.Uint64("total_calls", coordStats.TotalCalls),
		slog.Uint64("dedup_hits", coordStats.DedupHits),
		slog.Uint64("timeouts", coordStats.Timeouts),
		slog.Uint64("total_retries", coordStats.TotalRetries),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
