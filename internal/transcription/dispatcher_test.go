package transcription

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nightowl-app/capture-service/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTranscriber returns canned results and records calls. A non-nil gate
// blocks each call until released, which lets tests hold a request in flight.
type fakeTranscriber struct {
	result *Result
	err    error
	gate   chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int, language string) (*Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTranscriber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func speechChunk(samples int) *audio.Chunk {
	now := time.Now()
	return &audio.Chunk{
		ID:         "test-chunk",
		Samples:    make([]float32, samples),
		SampleRate: 16000,
		HasSpeech:  true,
		Start:      now.Add(-time.Second),
		End:        now,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestDispatchGates(t *testing.T) {
	tests := []struct {
		name  string
		chunk *audio.Chunk
		want  DropReason
	}{
		{
			name:  "nil chunk",
			chunk: nil,
			want:  DropNoSpeech,
		},
		{
			name: "no speech",
			chunk: &audio.Chunk{
				ID:         "silent",
				Samples:    make([]float32, 8000),
				SampleRate: 16000,
				HasSpeech:  false,
			},
			want: DropNoSpeech,
		},
		{
			name:  "below sample floor",
			chunk: speechChunk(1000),
			want:  DropTooShort,
		},
		{
			name:  "dispatchable",
			chunk: speechChunk(8000),
			want:  DropNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTranscriber{result: &Result{Success: true, Text: "hello"}}
			d := NewDispatcher(fake, DispatcherConfig{
				MinSamples: 4000,
				Timeout:    time.Second,
			}, testLogger(), nil, func(string) {})

			if got := d.Dispatch(tt.chunk); got != tt.want {
				t.Errorf("Dispatch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDispatchSingleFlight(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeTranscriber{
		result: &Result{Success: true, Text: "hello"},
		gate:   gate,
	}

	var texts []string
	var textMu sync.Mutex
	d := NewDispatcher(fake, DispatcherConfig{
		MinSamples: 4000,
		Timeout:    5 * time.Second,
	}, testLogger(), nil, func(text string) {
		textMu.Lock()
		texts = append(texts, text)
		textMu.Unlock()
	})

	if got := d.Dispatch(speechChunk(8000)); got != DropNone {
		t.Fatalf("First dispatch rejected: %v", got)
	}

	waitFor(t, time.Second, d.InFlight)

	// A chunk closing while the first request is outstanding is dropped,
	// not queued.
	if got := d.Dispatch(speechChunk(8000)); got != DropBusy {
		t.Errorf("Expected DropBusy while in flight, got %v", got)
	}

	close(gate)
	waitFor(t, time.Second, func() bool { return !d.InFlight() })

	if fake.callCount() != 1 {
		t.Errorf("Expected exactly 1 transcription call, got %d", fake.callCount())
	}

	textMu.Lock()
	defer textMu.Unlock()
	if len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("Expected one delivered fragment, got %v", texts)
	}

	// The slot frees after completion.
	if got := d.Dispatch(speechChunk(8000)); got != DropNone {
		t.Errorf("Expected dispatch after completion, got %v", got)
	}
}

func TestDispatchFailureDiscardsChunk(t *testing.T) {
	fake := &fakeTranscriber{err: fmt.Errorf("connection refused")}

	var delivered atomic.Bool
	d := NewDispatcher(fake, DispatcherConfig{
		MinSamples: 4000,
		Timeout:    time.Second,
	}, testLogger(), nil, func(string) { delivered.Store(true) })

	if got := d.Dispatch(speechChunk(8000)); got != DropNone {
		t.Fatalf("Dispatch rejected: %v", got)
	}

	waitFor(t, time.Second, func() bool { return d.GetStats().Failed == 1 })

	if delivered.Load() {
		t.Error("Expected no text delivery for a failed request")
	}
	if fake.callCount() != 1 {
		t.Errorf("Expected no retry, got %d calls", fake.callCount())
	}
}

func TestDispatchFiltersHallucinations(t *testing.T) {
	fake := &fakeTranscriber{result: &Result{Success: true, Text: "[BLANK_AUDIO]"}}

	var delivered atomic.Bool
	d := NewDispatcher(fake, DispatcherConfig{
		MinSamples: 4000,
		Timeout:    time.Second,
	}, testLogger(), nil, func(string) { delivered.Store(true) })

	d.Dispatch(speechChunk(8000))
	waitFor(t, time.Second, func() bool { return d.GetStats().Filtered == 1 })

	if delivered.Load() {
		t.Error("Expected filtered text not to be delivered")
	}
}

func TestFilterHallucination(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{"normal text", "hei på deg", "hei på deg", true},
		{"needs trimming", "  hallo  ", "hallo", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"single character", "a", "", false},
		{"single multibyte character", "Я", "", false},
		{"blank audio marker", "[BLANK_AUDIO]", "", false},
		{"bracketed noise", "[música]", "", false},
		{"parenthesized noise", "(keyboard clacking)", "", false},
		{"two characters pass", "ja", "ja", true},
		{"two multibyte characters pass", "Øl", "Øl", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FilterHallucination(tt.text)
			if ok != tt.ok {
				t.Errorf("FilterHallucination(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("FilterHallucination(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestDropReasonString(t *testing.T) {
	tests := []struct {
		reason DropReason
		want   string
	}{
		{DropNone, "none"},
		{DropNoSpeech, "no_speech"},
		{DropTooShort, "too_short"},
		{DropBusy, "busy"},
	}

	for _, tt := range tests {
		if got := tt.reason.String(); got != tt.want {
			t.Errorf("DropReason(%d).String() = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
