package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Chunk is a contiguous span of captured audio bounded by detected silence
// or a max-duration cutoff. It is created empty when recording starts or a
// prior chunk closes, grows by frame arrivals, and is destroyed (dispatched
// or dropped) when closed.
type Chunk struct {
	ID         string
	Samples    []float32
	SampleRate int

	// HasSpeech is true if any amplitude sample in the chunk's span
	// crossed the speech threshold.
	HasSpeech bool

	Start      time.Time // when the chunk was opened
	LastLoudAt time.Time // last time the level crossed the speech threshold
	End        time.Time // when the chunk was closed
}

// Duration returns the wall-clock span of the chunk.
func (c *Chunk) Duration() time.Duration {
	if c.End.IsZero() {
		return 0
	}
	return c.End.Sub(c.Start)
}

// SampleCount returns the number of samples accumulated in the chunk.
func (c *Chunk) SampleCount() int {
	return len(c.Samples)
}

// Accumulator buffers frames into the currently open chunk. At most one
// chunk is open at a time; Rotate closes it and opens the next one in the
// same step so no frame can fall between chunks.
type Accumulator struct {
	sampleRate int
	open       *Chunk

	// Statistics
	chunksOpened   uint64
	framesAppended uint64

	mu sync.Mutex
}

// AccumulatorStats represents accumulator statistics for monitoring
type AccumulatorStats struct {
	ChunksOpened   uint64 `json:"chunks_opened"`
	FramesAppended uint64 `json:"frames_appended"`
	OpenSamples    int    `json:"open_chunk_samples"`
	OpenHasSpeech  bool   `json:"open_chunk_has_speech"`
}

// NewAccumulator creates an accumulator for the given capture sample rate.
func NewAccumulator(sampleRate int) *Accumulator {
	return &Accumulator{sampleRate: sampleRate}
}

// Open starts a fresh empty chunk, replacing any currently open one.
func (a *Accumulator) Open(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.openLocked(now)
}

func (a *Accumulator) openLocked(now time.Time) {
	a.open = &Chunk{
		ID:         uuid.NewString(),
		SampleRate: a.sampleRate,
		Start:      now,
	}
	a.chunksOpened++
}

// Append adds a frame's samples to the open chunk. Frames arriving while
// no chunk is open are dropped; that only happens when capture is stopped.
func (a *Accumulator) Append(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open == nil {
		return
	}

	a.open.Samples = append(a.open.Samples, f.Samples...)
	a.framesAppended++
}

// MarkLoud records that the amplitude crossed the speech threshold while
// the current chunk was open.
func (a *Accumulator) MarkLoud(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open == nil {
		return
	}

	a.open.HasSpeech = true
	a.open.LastLoudAt = now
}

// Rotate closes the open chunk and immediately opens a new empty one,
// returning the closed chunk. Returns nil if no chunk was open.
func (a *Accumulator) Rotate(now time.Time) *Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()

	chunk := a.closeLocked(now)
	a.openLocked(now)
	return chunk
}

// Close closes the open chunk without opening a new one. Used on stop.
func (a *Accumulator) Close(now time.Time) *Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.closeLocked(now)
}

func (a *Accumulator) closeLocked(now time.Time) *Chunk {
	if a.open == nil {
		return nil
	}

	chunk := a.open
	chunk.End = now
	a.open = nil
	return chunk
}

// IsOpen reports whether a chunk is currently accumulating.
func (a *Accumulator) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open != nil
}

// HasSpeech reports whether the open chunk has seen speech. False when no
// chunk is open.
func (a *Accumulator) HasSpeech() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open != nil && a.open.HasSpeech
}

// StartedAt returns the open chunk's start time, or the zero time when no
// chunk is open.
func (a *Accumulator) StartedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open == nil {
		return time.Time{}
	}
	return a.open.Start
}

// GetStats returns current accumulator statistics
func (a *Accumulator) GetStats() AccumulatorStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AccumulatorStats{
		ChunksOpened:   a.chunksOpened,
		FramesAppended: a.framesAppended,
	}
	if a.open != nil {
		stats.OpenSamples = len(a.open.Samples)
		stats.OpenHasSpeech = a.open.HasSpeech
	}
	return stats
}
