package transcription

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/nightowl-app/capture-service/internal/audio"
	"github.com/nightowl-app/capture-service/internal/metrics"
)

// DropReason explains why a chunk was not dispatched.
type DropReason int

const (
	// DropNone means the chunk was handed to the transcription engine.
	DropNone DropReason = iota

	// DropNoSpeech means no amplitude sample in the chunk crossed the
	// speech threshold.
	DropNoSpeech

	// DropTooShort means the chunk is below the minimum sample floor
	// and too short to transcribe reliably.
	DropTooShort

	// DropBusy means another request was already in flight. The chunk
	// is discarded; the accumulator has already begun the next one.
	DropBusy
)

// String returns a human-readable drop reason
func (r DropReason) String() string {
	switch r {
	case DropNoSpeech:
		return "no_speech"
	case DropTooShort:
		return "too_short"
	case DropBusy:
		return "busy"
	default:
		return "none"
	}
}

// DispatcherConfig contains dispatcher parameters.
type DispatcherConfig struct {
	Language   string        // source language hint, or "auto"
	MinSamples int           // chunks below this are dropped even with speech
	Timeout    time.Duration // per-request deadline
}

// Dispatcher sends closed chunks for transcription with single-flight
// semantics and forwards usable text to its sink. Results for a chunk are
// never interleaved: a second close while a request is outstanding drops
// the chunk rather than spawning a concurrent request.
type Dispatcher struct {
	client  Transcriber
	config  DispatcherConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	onText  func(text string)

	inFlight atomic.Bool

	// Statistics
	dispatched      uint64
	droppedNoSpeech uint64
	droppedShort    uint64
	droppedBusy     uint64
	failed          uint64
	filtered        uint64
	accepted        uint64

	mu sync.RWMutex
}

// DispatcherStats represents dispatcher statistics for monitoring
type DispatcherStats struct {
	Dispatched      uint64 `json:"dispatched"`
	DroppedNoSpeech uint64 `json:"dropped_no_speech"`
	DroppedShort    uint64 `json:"dropped_too_short"`
	DroppedBusy     uint64 `json:"dropped_busy"`
	Failed          uint64 `json:"failed"`
	Filtered        uint64 `json:"filtered"`
	Accepted        uint64 `json:"accepted"`
	InFlight        bool   `json:"in_flight"`
}

// NewDispatcher creates a dispatcher. onText receives each usable
// transcription fragment; it is called from the dispatch goroutine, so the
// sink must re-check any shared state before acting. m may be nil.
func NewDispatcher(client Transcriber, config DispatcherConfig, logger *slog.Logger, m *metrics.Metrics, onText func(text string)) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Dispatcher{
		client:  client,
		config:  config,
		logger:  logger,
		metrics: m,
		onText:  onText,
	}
}

// Dispatch sends a closed chunk for transcription. Chunks without detected
// speech or below the sample floor are discarded silently; a chunk arriving
// while a request is outstanding is dropped.
func (d *Dispatcher) Dispatch(chunk *audio.Chunk) DropReason {
	if chunk == nil {
		return DropNoSpeech
	}

	if !chunk.HasSpeech {
		d.count(&d.droppedNoSpeech)
		return DropNoSpeech
	}

	if chunk.SampleCount() < d.config.MinSamples {
		d.count(&d.droppedShort)
		d.logger.Debug("Chunk below sample floor, dropped",
			slog.String("chunk_id", chunk.ID),
			slog.Int("samples", chunk.SampleCount()),
			slog.Int("min_samples", d.config.MinSamples),
		)
		return DropTooShort
	}

	if !d.inFlight.CompareAndSwap(false, true) {
		d.count(&d.droppedBusy)
		d.logger.Debug("Transcription already in flight, chunk dropped",
			slog.String("chunk_id", chunk.ID),
		)
		return DropBusy
	}

	d.count(&d.dispatched)
	go d.run(chunk)

	return DropNone
}

// run performs the transcription call and forwards the filtered result.
func (d *Dispatcher) run(chunk *audio.Chunk) {
	defer d.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), d.config.Timeout)
	defer cancel()

	if d.metrics != nil {
		d.metrics.RecordTranscriptionRequest()
	}

	startTime := time.Now()
	result, err := d.client.Transcribe(ctx, chunk.Samples, chunk.SampleRate, d.config.Language)
	duration := time.Since(startTime)

	if err != nil {
		d.count(&d.failed)
		if d.metrics != nil {
			d.metrics.RecordTranscriptionFailure(duration.Seconds())
		}
		d.logger.Warn("Transcription failed, chunk discarded",
			slog.String("chunk_id", chunk.ID),
			slog.String("error", err.Error()),
			slog.Duration("duration", duration),
		)
		return
	}

	if !result.Success {
		d.count(&d.failed)
		if d.metrics != nil {
			d.metrics.RecordTranscriptionFailure(duration.Seconds())
		}
		d.logger.Warn("Transcription rejected, chunk discarded",
			slog.String("chunk_id", chunk.ID),
			slog.String("error", result.Error),
			slog.Duration("duration", duration),
		)
		return
	}

	if d.metrics != nil {
		d.metrics.RecordTranscriptionSuccess(duration.Seconds())
	}

	text, ok := FilterHallucination(result.Text)
	if !ok {
		d.count(&d.filtered)
		if d.metrics != nil {
			d.metrics.RecordTranscriptionFiltered()
		}
		d.logger.Debug("Transcription result filtered",
			slog.String("chunk_id", chunk.ID),
			slog.String("raw_text", result.Text),
		)
		return
	}

	d.count(&d.accepted)
	d.logger.Info("Chunk transcribed",
		slog.String("chunk_id", chunk.ID),
		slog.String("text", text),
		slog.Duration("duration", duration),
	)

	d.onText(text)
}

// InFlight reports whether a transcription request is outstanding.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// GetStats returns current dispatcher statistics
func (d *Dispatcher) GetStats() DispatcherStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return DispatcherStats{
		Dispatched:      d.dispatched,
		DroppedNoSpeech: d.droppedNoSpeech,
		DroppedShort:    d.droppedShort,
		DroppedBusy:     d.droppedBusy,
		Failed:          d.failed,
		Filtered:        d.filtered,
		Accepted:        d.accepted,
		InFlight:        d.inFlight.Load(),
	}
}

func (d *Dispatcher) count(field *uint64) {
	d.mu.Lock()
	*field++
	d.mu.Unlock()
}

// FilterHallucination screens a transcription result for known artifacts a
// speech engine fabricates from silence or noise: empty output, bracketed
// annotations like "[BLANK_AUDIO]" or "(music)", and fragments shorter than
// two characters. The length check counts runes so a single non-ASCII
// character is rejected too. Returns the trimmed text and whether it is
// usable.
func FilterHallucination(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)

	if utf8.RuneCountInString(trimmed) < 2 {
		return "", false
	}

	switch trimmed[0] {
	case '[', '(':
		return "", false
	}

	return trimmed, true
}
