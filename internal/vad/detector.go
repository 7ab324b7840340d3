package vad

import (
	"fmt"
	"sync"
	"time"
)

// Boundary identifies a chunk boundary condition derived from the
// amplitude signal.
type Boundary int

const (
	// BoundaryNone means the current chunk stays open.
	BoundaryNone Boundary = iota

	// BoundarySilence closes a chunk whose speech run ended: the level
	// has stayed below threshold for the silence window.
	BoundarySilence

	// BoundaryMaxDuration closes a chunk that hit the duration cap,
	// with or without detected speech.
	BoundaryMaxDuration
)

// String returns a human-readable boundary name
func (b Boundary) String() string {
	switch b {
	case BoundarySilence:
		return "silence"
	case BoundaryMaxDuration:
		return "max_duration"
	default:
		return "none"
	}
}

// Detector classifies amplitude samples as speech or silence and evaluates
// the boundary conditions once per polling tick. The threshold is expressed
// on a 0-255 scale; a normalized RMS level crosses it when level*128 exceeds
// the configured value.
type Detector struct {
	threshold float64
	silence   time.Duration
	maxChunk  time.Duration

	lastLoudAt time.Time

	// Statistics
	totalSamples uint64
	loudSamples  uint64

	mu sync.RWMutex
}

// DetectorStats represents detector statistics for monitoring
type DetectorStats struct {
	Threshold      float64   `json:"threshold"`
	TotalSamples   uint64    `json:"total_samples"`
	LoudSamples    uint64    `json:"loud_samples"`
	LoudPercentage float64   `json:"loud_percentage"`
	LastLoudAt     time.Time `json:"last_loud_at"`
}

// NewDetector creates a detector with the given speech threshold (0-255
// scale), silence window, and maximum chunk duration.
func NewDetector(threshold float64, silence, maxChunk time.Duration) (*Detector, error) {
	if threshold <= 0 || threshold > 255 {
		return nil, fmt.Errorf("threshold must be between 0 and 255, got %f", threshold)
	}

	if silence <= 0 {
		return nil, fmt.Errorf("silence window must be positive, got %s", silence)
	}

	if maxChunk <= silence {
		return nil, fmt.Errorf("max chunk duration (%s) must exceed silence window (%s)", maxChunk, silence)
	}

	return &Detector{
		threshold: threshold,
		silence:   silence,
		maxChunk:  maxChunk,
	}, nil
}

// Sample classifies one normalized RMS level in [0, 1] and returns whether
// it crossed the speech threshold. Loud samples update the last-loud
// timestamp used by the silence boundary.
func (d *Detector) Sample(level float64, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.totalSamples++

	loud := level*128 > d.threshold
	if loud {
		d.loudSamples++
		d.lastLoudAt = now
	}

	return loud
}

// Boundary evaluates the close conditions for the chunk opened at
// chunkStart. Checked in priority order: close-on-silence requires detected
// speech, close-on-max-duration applies regardless.
func (d *Detector) Boundary(now, chunkStart time.Time, hasSpeech bool) Boundary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if chunkStart.IsZero() {
		return BoundaryNone
	}

	if hasSpeech && !d.lastLoudAt.IsZero() && now.Sub(d.lastLoudAt) >= d.silence {
		return BoundarySilence
	}

	if now.Sub(chunkStart) >= d.maxChunk {
		return BoundaryMaxDuration
	}

	return BoundaryNone
}

// LastLoudAt returns the time of the most recent above-threshold sample.
func (d *Detector) LastLoudAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastLoudAt
}

// Reset clears the detector state between capture sessions.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastLoudAt = time.Time{}
	d.totalSamples = 0
	d.loudSamples = 0
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	loudPercentage := float64(0)
	if d.totalSamples > 0 {
		loudPercentage = float64(d.loudSamples) / float64(d.totalSamples) * 100
	}

	return DetectorStats{
		Threshold:      d.threshold,
		TotalSamples:   d.totalSamples,
		LoudSamples:    d.loudSamples,
		LoudPercentage: loudPercentage,
		LastLoudAt:     d.lastLoudAt,
	}
}
