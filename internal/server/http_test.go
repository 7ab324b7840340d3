package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nightowl-app/capture-service/internal/audio"
	"github.com/nightowl-app/capture-service/internal/config"
	"github.com/nightowl-app/capture-service/internal/dictionary"
	"github.com/nightowl-app/capture-service/internal/lookup"
	"github.com/nightowl-app/capture-service/internal/metrics"
	"github.com/nightowl-app/capture-service/internal/pipeline"
	"github.com/nightowl-app/capture-service/internal/transcription"
)

var (
	testMetrics     *metrics.Metrics
	testMetricsOnce sync.Once
)

func sharedMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	frames chan audio.Frame
	level  atomic.Uint64
}

func (f *fakeSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	return f.frames, nil
}

func (f *fakeSource) Stop() {}

func (f *fakeSource) Level() float64 {
	return math.Float64frombits(f.level.Load())
}

type fakeTranscriber struct {
	calls atomic.Int32
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*transcription.Result, error) {
	f.calls.Add(1)
	return &transcription.Result{Success: true, Text: "hei"}, nil
}

type fakeAnalyzer struct{}

func (f *fakeAnalyzer) Analyze(ctx context.Context, text string) (*lookup.WordEntry, error) {
	return &lookup.WordEntry{
		ID:          "entry-1",
		Original:    text,
		Translation: "translated",
		Timestamp:   time.Now().UnixMilli(),
	}, nil
}

func testServer(t *testing.T) (*HTTPServer, *pipeline.Pipeline, *dictionary.Store) {
	t.Helper()

	cfg := config.Default()
	cfg.Transcription.Endpoint = "http://localhost:9000"

	store, err := dictionary.Open(filepath.Join(t.TempDir(), "dictionary.json"), testLogger())
	if err != nil {
		t.Fatalf("Failed to open dictionary: %v", err)
	}

	source := &fakeSource{frames: make(chan audio.Frame, 4)}
	p, err := pipeline.New(cfg, source, &fakeTranscriber{}, &fakeAnalyzer{}, store, sharedMetrics(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	h := NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0, Enabled: true},
		testLogger(), cfg, p, store, sharedMetrics())

	return h, p, store
}

func doRequest(h *HTTPServer, method, path string, body []byte) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	h.setupRoutes(mux)

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h, _, _ := testServer(t)

	rec := doRequest(h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	h, _, _ := testServer(t)

	rec := doRequest(h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Failed to parse status response: %v", err)
	}
	if status["state"] != "idle" {
		t.Errorf("Expected idle state, got %v", status["state"])
	}
}

func TestToggleEndpoint(t *testing.T) {
	h, p, _ := testServer(t)
	defer p.Stop()

	rec := doRequest(h, http.MethodPost, "/api/toggle", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["state"] != "recording" {
		t.Errorf("Expected recording after toggle, got %q", resp["state"])
	}

	rec = doRequest(h, http.MethodPost, "/api/toggle", nil)
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["state"] != "idle" {
		t.Errorf("Expected idle after second toggle, got %q", resp["state"])
	}
}

func TestStartStopEndpoints(t *testing.T) {
	h, p, _ := testServer(t)
	defer p.Stop()

	rec := doRequest(h, http.MethodPost, "/api/start", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	// Starting an active session conflicts.
	rec = doRequest(h, http.MethodPost, "/api/start", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for double start, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodPost, "/api/stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
}

func TestStartEndpointOutlivesRequest(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Endpoint = "http://localhost:9000"
	cfg.Capture.PollInterval = 10
	cfg.VAD.SilenceMs = 100
	cfg.VAD.MaxChunkMs = 400

	store, err := dictionary.Open(filepath.Join(t.TempDir(), "dictionary.json"), testLogger())
	if err != nil {
		t.Fatalf("Failed to open dictionary: %v", err)
	}

	source := &fakeSource{frames: make(chan audio.Frame, 4)}
	tr := &fakeTranscriber{}
	p, err := pipeline.New(cfg, source, tr, &fakeAnalyzer{}, store, sharedMetrics(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	defer p.Stop()

	h := NewHTTPServer(config.HTTPConfig{Address: "127.0.0.1", Port: 0, Enabled: true},
		testLogger(), cfg, p, store, sharedMetrics())

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/start", nil).WithContext(reqCtx)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// net/http cancels the request context as soon as the handler returns.
	cancelReq()

	// Speech followed by silence must still segment and reach the
	// transcriber through the session started above.
	source.level.Store(math.Float64bits(0.8))
	source.frames <- audio.Frame{Samples: make([]float32, 8000), SampleRate: 16000}
	time.Sleep(50 * time.Millisecond)
	source.level.Store(math.Float64bits(0))

	deadline := time.Now().Add(2 * time.Second)
	for tr.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if tr.calls.Load() == 0 {
		t.Fatal("Expected the session to keep transcribing after the start request finished")
	}
	if got := p.State().String(); got != "recording" {
		t.Errorf("Expected recording, got %q", got)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	h, _, store := testServer(t)

	body, _ := json.Marshal(map[string]string{"text": "hund"})
	rec := doRequest(h, http.MethodPost, "/api/submit", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if store.Len() != 1 {
		t.Error("Expected the submitted word to be stored")
	}
}

func TestSubmitEndpointEmptyWhileIdle(t *testing.T) {
	h, _, _ := testServer(t)

	rec := doRequest(h, http.MethodPost, "/api/submit", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected 409 for empty idle submission, got %d", rec.Code)
	}
}

func TestWordsEndpoints(t *testing.T) {
	h, _, store := testServer(t)

	store.Add(lookup.WordEntry{ID: "w1", Original: "hund"})
	store.Add(lookup.WordEntry{ID: "w2", Original: "katt"})

	rec := doRequest(h, http.MethodGet, "/api/words", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Total int                `json:"total"`
		Words []lookup.WordEntry `json:"words"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse words response: %v", err)
	}
	if resp.Total != 2 || len(resp.Words) != 2 {
		t.Errorf("Expected 2 words, got total=%d len=%d", resp.Total, len(resp.Words))
	}
	if resp.Words[0].ID != "w2" {
		t.Errorf("Expected newest first, got %s", resp.Words[0].ID)
	}

	rec = doRequest(h, http.MethodDelete, "/api/words/w1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for deletion, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodDelete, "/api/words/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown word, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodDelete, "/api/words", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for clear, got %d", rec.Code)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d entries", store.Len())
	}
}

func TestConfigEndpointHidesSecrets(t *testing.T) {
	h, _, _ := testServer(t)
	h.config.Transcription.APIKey = "super-secret"
	h.config.Lookup.APIKey = "super-secret"

	rec := doRequest(h, http.MethodGet, "/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if bytes.Contains(rec.Body.Bytes(), []byte("super-secret")) {
		t.Error("Expected API keys to be omitted from the config endpoint")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := testServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/toggle"},
		{http.MethodGet, "/api/start"},
		{http.MethodGet, "/api/submit"},
		{http.MethodPost, "/api/status"},
		{http.MethodPost, "/health"},
		{http.MethodPut, "/api/words"},
	}

	for _, tt := range tests {
		rec := doRequest(h, tt.method, tt.path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestRootDocumentation(t *testing.T) {
	h, _, _ := testServer(t)

	rec := doRequest(h, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown path, got %d", rec.Code)
	}
}
