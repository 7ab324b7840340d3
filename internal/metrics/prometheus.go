package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture service
type Metrics struct {
	// Capture metrics
	FramesCaptured prometheus.Counter
	AudioLevel     prometheus.Gauge

	// VAD metrics
	LevelsSampled prometheus.Counter
	LoudSamples   prometheus.Counter

	// Chunk metrics
	ChunksDispatched prometheus.Counter
	ChunksDropped    *prometheus.CounterVec
	ChunkDuration    prometheus.Histogram
	ChunkSamples     prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionFiltered  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// Assembler metrics
	FragmentsAccepted prometheus.Counter
	Submissions       *prometheus.CounterVec

	// Lookup metrics
	LookupSuccesses prometheus.Counter
	LookupFailures  prometheus.Counter
	LookupDuration  prometheus.Histogram

	// Session metrics
	RecordingState prometheus.Gauge
	IdleRemaining  prometheus.Gauge
	DictionarySize prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Capture metrics
		FramesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_frames_captured_total",
			Help: "Total number of audio frames read from the microphone",
		}),
		AudioLevel: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nightowl_audio_level",
			Help: "Most recent RMS amplitude level in [0,1]",
		}),

		// VAD metrics
		LevelsSampled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_vad_levels_sampled_total",
			Help: "Total number of amplitude samples evaluated",
		}),
		LoudSamples: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_vad_loud_samples_total",
			Help: "Total number of amplitude samples above the speech threshold",
		}),

		// Chunk metrics
		ChunksDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_chunks_dispatched_total",
			Help: "Total number of chunks handed to transcription",
		}),
		ChunksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nightowl_chunks_dropped_total",
			Help: "Total number of chunks dropped before transcription",
		}, []string{"reason"}),
		ChunkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightowl_chunk_duration_seconds",
			Help:    "Duration of closed audio chunks",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 7), // 0.25s to ~16s
		}),
		ChunkSamples: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightowl_chunk_samples",
			Help:    "Sample count of closed audio chunks",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1K to ~1M samples
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionFiltered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_transcription_filtered_total",
			Help: "Total number of transcription results discarded as artifacts",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightowl_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Assembler metrics
		FragmentsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_fragments_accepted_total",
			Help: "Total number of transcription fragments added to utterances",
		}),
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nightowl_submissions_total",
			Help: "Total number of submitted utterances",
		}, []string{"trigger"}),

		// Lookup metrics
		LookupSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_lookup_successes_total",
			Help: "Total number of successful dictionary lookups",
		}),
		LookupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nightowl_lookup_failures_total",
			Help: "Total number of failed dictionary lookups",
		}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "nightowl_lookup_duration_seconds",
			Help:    "Duration of dictionary lookup requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// Session metrics
		RecordingState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nightowl_recording_state",
			Help: "Current recording state (0=idle, 1=recording, 2=processing, 3=error)",
		}),
		IdleRemaining: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nightowl_idle_remaining_seconds",
			Help: "Seconds left before the idle timeout stops the session",
		}),
		DictionarySize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nightowl_dictionary_entries",
			Help: "Current number of stored dictionary entries",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nightowl_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nightowl_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nightowl_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordFrameCaptured increments the frames captured counter
func (m *Metrics) RecordFrameCaptured() {
	m.FramesCaptured.Inc()
}

// SetAudioLevel sets the current audio level gauge
func (m *Metrics) SetAudioLevel(level float64) {
	m.AudioLevel.Set(level)
}

// RecordLevelSample records one amplitude evaluation
func (m *Metrics) RecordLevelSample(loud bool) {
	m.LevelsSampled.Inc()
	if loud {
		m.LoudSamples.Inc()
	}
}

// RecordChunkDispatched records a chunk handed to transcription
func (m *Metrics) RecordChunkDispatched(durationSeconds float64, samples int) {
	m.ChunksDispatched.Inc()
	m.ChunkDuration.Observe(durationSeconds)
	m.ChunkSamples.Observe(float64(samples))
}

// RecordChunkDropped records a chunk dropped before transcription
func (m *Metrics) RecordChunkDropped(reason string) {
	m.ChunksDropped.WithLabelValues(reason).Inc()
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFiltered records a discarded transcription artifact
func (m *Metrics) RecordTranscriptionFiltered() {
	m.TranscriptionFiltered.Inc()
}

// RecordFragmentAccepted increments the accepted fragments counter
func (m *Metrics) RecordFragmentAccepted() {
	m.FragmentsAccepted.Inc()
}

// RecordSubmission records an utterance submission by trigger
func (m *Metrics) RecordSubmission(trigger string) {
	m.Submissions.WithLabelValues(trigger).Inc()
}

// RecordLookupSuccess records a successful dictionary lookup
func (m *Metrics) RecordLookupSuccess(durationSeconds float64) {
	m.LookupSuccesses.Inc()
	m.LookupDuration.Observe(durationSeconds)
}

// RecordLookupFailure records a failed dictionary lookup
func (m *Metrics) RecordLookupFailure(durationSeconds float64) {
	m.LookupFailures.Inc()
	m.LookupDuration.Observe(durationSeconds)
}

// SetRecordingState sets the recording state gauge
func (m *Metrics) SetRecordingState(state int) {
	m.RecordingState.Set(float64(state))
}

// SetIdleRemaining sets the idle countdown gauge
func (m *Metrics) SetIdleRemaining(seconds int) {
	m.IdleRemaining.Set(float64(seconds))
}

// SetDictionarySize sets the dictionary size gauge
func (m *Metrics) SetDictionarySize(count int) {
	m.DictionarySize.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
