package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nightowl-app/capture-service/internal/audio"
)

func testSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return samples
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost:9000"})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", client.config.Timeout)
	}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth string
	var gotModel string
	var gotLanguage string
	var gotWAVLen int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("Missing file field: %v", err)
		} else {
			defer file.Close()
			buf := make([]byte, 1<<20)
			n, _ := file.Read(buf)
			gotWAVLen = n

			samples, rate, err := audio.DecodeWAV(buf[:n])
			if err != nil {
				t.Errorf("Uploaded file is not valid WAV: %v", err)
			}
			if rate != 16000 {
				t.Errorf("Expected 16000 Hz upload, got %d", rate)
			}
			if len(samples) != 8000 {
				t.Errorf("Expected 8000 samples, got %d", len(samples))
			}
		}

		json.NewEncoder(w).Encode(map[string]string{"text": "hei på deg"})
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Model:    "whisper-1",
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	result, err := client.Transcribe(context.Background(), testSamples(8000), 16000, "no")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if !result.Success {
		t.Errorf("Expected success, got error %q", result.Error)
	}
	if result.Text != "hei på deg" {
		t.Errorf("Expected text %q, got %q", "hei på deg", result.Text)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("Expected model whisper-1, got %q", gotModel)
	}
	if gotLanguage != "no" {
		t.Errorf("Expected language hint no, got %q", gotLanguage)
	}
	if gotWAVLen == 0 {
		t.Error("Expected a non-empty WAV upload")
	}
}

func TestTranscribeAutoLanguageOmitsHint(t *testing.T) {
	var hadLanguage bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseMultipartForm(10 << 20)
		_, hadLanguage = r.MultipartForm.Value["language"]
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), testSamples(4000), 16000, "auto"); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if hadLanguage {
		t.Error("Expected no language field for auto detection")
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	result, err := client.Transcribe(context.Background(), testSamples(4000), 16000, "auto")
	if err != nil {
		t.Fatalf("Expected a result for an HTTP error, got transport error: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for a 503 response")
	}
	if result.Error == "" {
		t.Error("Expected an error message in the result")
	}
}

func TestTranscribeAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "audio too short"})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	result, err := client.Transcribe(context.Background(), testSamples(4000), 16000, "auto")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Success {
		t.Error("Expected failure for an API error payload")
	}
	if result.Error != "audio too short" {
		t.Errorf("Expected API error message, got %q", result.Error)
	}
}

func TestTranscribeNoRetry(t *testing.T) {
	var requests int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	client.Transcribe(context.Background(), testSamples(4000), 16000, "auto")

	if requests != 1 {
		t.Errorf("Expected exactly 1 request, got %d", requests)
	}
}

func TestClientStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoint: server.URL})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	client.Transcribe(context.Background(), testSamples(4000), 16000, "auto")
	client.Transcribe(context.Background(), testSamples(4000), 16000, "auto")

	stats := client.GetStats()
	if stats.TotalRequests != 2 {
		t.Errorf("Expected 2 total requests, got %d", stats.TotalRequests)
	}
	if stats.SuccessRequests != 2 {
		t.Errorf("Expected 2 successes, got %d", stats.SuccessRequests)
	}
	if stats.SuccessRate != 100 {
		t.Errorf("Expected 100%% success rate, got %f", stats.SuccessRate)
	}
}
