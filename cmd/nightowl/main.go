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

	"github.com/joho/godotenv"

	"github.com/nightowl-app/capture-service/internal/capture"
	"github.com/nightowl-app/capture-service/internal/config"
	"github.com/nightowl-app/capture-service/internal/dictionary"
	"github.com/nightowl-app/capture-service/internal/lookup"
	"github.com/nightowl-app/capture-service/internal/metrics"
	"github.com/nightowl-app/capture-service/internal/pipeline"
	"github.com/nightowl-app/capture-service/internal/server"
	"github.com/nightowl-app/capture-service/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "nightowl-capture-service"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	autoStart := flag.Bool("start", false, "Begin recording immediately")
	flag.Parse()

	// Load .env before the config so ${ENV} references resolve
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("frame_size", cfg.Capture.FrameSize),
		slog.Float64("vad_threshold", cfg.VAD.Threshold),
		slog.Int("silence_ms", cfg.VAD.SilenceMs),
		slog.Int("max_chunk_ms", cfg.VAD.MaxChunkMs),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("lookup_model", cfg.Lookup.Model),
		slog.String("dictionary_path", cfg.Dictionary.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize transcription client
	transcriber, err := transcription.NewClient(transcription.Config{
		Endpoint: cfg.Transcription.Endpoint,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		Timeout:  cfg.Transcription.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize lookup client
	analyzer, err := lookup.NewClient(lookup.Config{
		APIKey:     cfg.Lookup.APIKey,
		BaseURL:    cfg.Lookup.BaseURL,
		Model:      cfg.Lookup.Model,
		SourceLang: cfg.Lookup.SourceLang,
		TargetLang: cfg.Lookup.TargetLang,
		Timeout:    cfg.Lookup.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create lookup client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Open the dictionary store
	store, err := dictionary.Open(cfg.Dictionary.Path, logger)
	if err != nil {
		logger.Error("Failed to open dictionary", slog.String("error", err.Error()))
		os.Exit(1)
	}
	appMetrics.SetDictionarySize(store.Len())

	// Initialize microphone source
	source := capture.NewMicSource(capture.Config{
		SampleRate:  cfg.Capture.SampleRate,
		FrameSize:   cfg.Capture.FrameSize,
		MeterWindow: cfg.Capture.MeterWindow,
	}, logger)

	// Initialize the capture pipeline
	pipe, err := pipeline.New(cfg, source, transcriber, analyzer, store, appMetrics, logger)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Pipeline initialized")

	// Initialize HTTP API server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, pipe, store, appMetrics)
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if *autoStart {
		if err := pipe.Start(ctx); err != nil {
			logger.Error("Failed to start recording", slog.String("error", err.Error()))
		}
	}

	// Setup signal handling: SIGUSR1 toggles recording like the hotkey,
	// SIGINT/SIGTERM shut the service down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)

	logger.Info("Service started successfully, waiting for signals...")

	for {
		sig := <-sigChan
		if sig == syscall.SIGUSR1 {
			logger.Info("Toggle signal received")
			if err := pipe.Toggle(ctx); err != nil {
				logger.Error("Toggle failed", slog.String("error", err.Error()))
			}
			continue
		}
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		break
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop the pipeline (ends any active session and releases the device)
	pipe.Stop()

	// Get final statistics
	status := pipe.Status()
	logger.Info("Final session statistics",
		slog.Uint64("chunks_dispatched", status.Dispatcher.Dispatched),
		slog.Uint64("fragments_accepted", status.Assembler.Fragments),
		slog.Int("dictionary_entries", status.Dictionary),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
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
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
