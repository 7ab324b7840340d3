package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nightowl-app/capture-service/internal/config"
	"github.com/nightowl-app/capture-service/internal/lookup"
	"github.com/nightowl-app/capture-service/internal/metrics"
	"github.com/nightowl-app/capture-service/internal/pipeline"
)

// HTTPServer provides HTTP API endpoints for session control and monitoring
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	pipeline *pipeline.Pipeline
	words    WordStore
	metrics  *metrics.Metrics

	startTime time.Time
}

// WordStore is the dictionary surface the API needs.
type WordStore interface {
	List() []lookup.WordEntry
	Delete(id string) (bool, error)
	Clear() error
	Len() int
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, p *pipeline.Pipeline, words WordStore, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		pipeline:  p,
		words:     words,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Session control endpoints
	mux.HandleFunc("/api/status", h.withMetrics("/api/status", h.handleStatus))
	mux.HandleFunc("/api/start", h.withMetrics("/api/start", h.handleStart))
	mux.HandleFunc("/api/stop", h.withMetrics("/api/stop", h.handleStop))
	mux.HandleFunc("/api/toggle", h.withMetrics("/api/toggle", h.handleToggle))
	mux.HandleFunc("/api/submit", h.withMetrics("/api/submit", h.handleSubmit))

	// Dictionary endpoints
	mux.HandleFunc("/api/words", h.withMetrics("/api/words", h.handleWords))
	mux.HandleFunc("/api/words/", h.withMetrics("/api/words/{id}", h.handleWordDetail))

	// Configuration endpoint
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	status := h.pipeline.Status()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "nightowl-capture-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"pipeline": map[string]interface{}{
				"state":      status.State,
				"last_error": status.LastError,
			},
			"transcription": map[string]interface{}{
				"dispatched": status.Dispatcher.Dispatched,
				"accepted":   status.Dispatcher.Accepted,
				"failed":     status.Dispatcher.Failed,
				"in_flight":  status.Dispatcher.InFlight,
			},
			"dictionary": map[string]interface{}{
				"entries": status.Dictionary,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /api/status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.pipeline.Status())
}

// handleStart implements the /api/start endpoint
func (h *HTTPServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The session must outlive the request: net/http cancels r.Context()
	// as soon as the handler returns.
	if err := h.pipeline.Start(context.Background()); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}

	h.writeState(w)
}

// handleStop implements the /api/stop endpoint
func (h *HTTPServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.pipeline.Stop()
	h.writeState(w)
}

// handleToggle implements the /api/toggle endpoint, the HTTP equivalent of
// the push-to-talk hotkey.
func (h *HTTPServer) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Same as handleStart: a session begun here must not be tied to the
	// request's context.
	if err := h.pipeline.Toggle(context.Background()); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}

	h.writeState(w)
}

// handleSubmit implements the /api/submit endpoint
func (h *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	if err := h.pipeline.SubmitText(strings.TrimSpace(req.Text)); err != nil {
		h.writeError(w, http.StatusConflict, err)
		return
	}

	h.writeState(w)
}

// handleWords implements the /api/words endpoint
func (h *HTTPServer) handleWords(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		response := map[string]interface{}{
			"total":     h.words.Len(),
			"timestamp": time.Now().UTC(),
			"words":     h.words.List(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)

	case http.MethodDelete:
		if err := h.words.Clear(); err != nil {
			h.writeError(w, http.StatusInternalServerError, err)
			return
		}
		h.metrics.SetDictionarySize(0)
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWordDetail implements the /api/words/{id} endpoint
func (h *HTTPServer) handleWordDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/words/")
	if id == "" {
		http.Error(w, "Word ID required", http.StatusBadRequest)
		return
	}

	removed, err := h.words.Delete(id)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !removed {
		http.Error(w, "Word not found", http.StatusNotFound)
		return
	}

	h.metrics.SetDictionarySize(h.words.Len())
	w.WriteHeader(http.StatusNoContent)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Return sanitized configuration (remove sensitive data)
	sanitizedConfig := map[string]interface{}{
		"capture": map[string]interface{}{
			"sample_rate":   h.config.Capture.SampleRate,
			"frame_size":    h.config.Capture.FrameSize,
			"meter_window":  h.config.Capture.MeterWindow,
			"poll_interval": h.config.Capture.PollInterval,
		},
		"vad": map[string]interface{}{
			"threshold":         h.config.VAD.Threshold,
			"silence_ms":        h.config.VAD.SilenceMs,
			"max_chunk_ms":      h.config.VAD.MaxChunkMs,
			"min_chunk_samples": h.config.VAD.MinChunkSamples,
		},
		"transcription": map[string]interface{}{
			"endpoint": h.config.Transcription.Endpoint,
			"model":    h.config.Transcription.Model,
			"language": h.config.Transcription.Language,
			"timeout":  h.config.Transcription.Timeout,
			// Note: API key is intentionally omitted for security
		},
		"assembler": map[string]interface{}{
			"word_limit":    h.config.Assembler.WordLimit,
			"inactivity_ms": h.config.Assembler.InactivityMs,
		},
		"session": map[string]interface{}{
			"idle_shutdown_sec": h.config.Session.IdleShutdownSec,
		},
		"lookup": map[string]interface{}{
			"model":       h.config.Lookup.Model,
			"source_lang": h.config.Lookup.SourceLang,
			"target_lang": h.config.Lookup.TargetLang,
			"timeout":     h.config.Lookup.Timeout,
			// Note: API key is intentionally omitted for security
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "NightOwl Capture Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                      "API documentation",
			"GET /health":                "Service health check",
			"GET /api/status":            "Current session status",
			"POST /api/start":            "Start a recording session",
			"POST /api/stop":             "Stop the recording session",
			"POST /api/toggle":           "Toggle recording (hotkey equivalent)",
			"POST /api/submit":           "Submit the pending or provided utterance",
			"GET /api/words":             "List dictionary entries",
			"DELETE /api/words":          "Clear the dictionary",
			"DELETE /api/words/{id}":     "Delete a dictionary entry",
			"GET /config":                "Get service configuration",
			"GET /metrics":               "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

func (h *HTTPServer) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"state": h.pipeline.State().String(),
	})
}

func (h *HTTPServer) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
	})
}
