package audio

import (
	"testing"
	"time"
)

func frameOf(samples ...float32) Frame {
	return Frame{Samples: samples, SampleRate: 16000}
}

func TestAccumulatorLifecycle(t *testing.T) {
	acc := NewAccumulator(16000)

	if acc.IsOpen() {
		t.Error("Expected no open chunk initially")
	}

	start := time.Now()
	acc.Open(start)

	if !acc.IsOpen() {
		t.Error("Expected an open chunk after Open")
	}
	if !acc.StartedAt().Equal(start) {
		t.Errorf("Expected start time %v, got %v", start, acc.StartedAt())
	}

	acc.Append(frameOf(0.1, 0.2))
	acc.Append(frameOf(0.3))

	end := start.Add(2 * time.Second)
	chunk := acc.Close(end)
	if chunk == nil {
		t.Fatal("Close returned nil for an open chunk")
	}
	if chunk.SampleCount() != 3 {
		t.Errorf("Expected 3 samples, got %d", chunk.SampleCount())
	}
	if chunk.Duration() != 2*time.Second {
		t.Errorf("Expected 2s duration, got %v", chunk.Duration())
	}
	if chunk.SampleRate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", chunk.SampleRate)
	}
	if chunk.ID == "" {
		t.Error("Expected a non-empty chunk ID")
	}
	if acc.IsOpen() {
		t.Error("Expected no open chunk after Close")
	}
}

func TestAccumulatorRotateLossless(t *testing.T) {
	acc := NewAccumulator(16000)
	acc.Open(time.Now())

	// Every appended sample must land in exactly one chunk across rotations.
	var want []float32
	var got []float32

	next := float32(0)
	appendFrames := func(n int) {
		for i := 0; i < n; i++ {
			acc.Append(frameOf(next))
			want = append(want, next)
			next++
		}
	}

	appendFrames(5)
	first := acc.Rotate(time.Now())
	if first == nil {
		t.Fatal("Rotate returned nil for an open chunk")
	}
	got = append(got, first.Samples...)

	if !acc.IsOpen() {
		t.Fatal("Expected a fresh open chunk after Rotate")
	}

	appendFrames(3)
	second := acc.Rotate(time.Now())
	got = append(got, second.Samples...)

	appendFrames(4)
	last := acc.Close(time.Now())
	got = append(got, last.Samples...)

	if len(got) != len(want) {
		t.Fatalf("Expected %d samples across chunks, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Sample %d mismatch: want %f, got %f", i, want[i], got[i])
		}
	}

	if first.ID == second.ID {
		t.Error("Expected distinct chunk IDs across rotations")
	}
}

func TestAccumulatorMarkLoud(t *testing.T) {
	acc := NewAccumulator(16000)
	acc.Open(time.Now())

	if acc.HasSpeech() {
		t.Error("Expected no speech on a fresh chunk")
	}

	loudAt := time.Now()
	acc.MarkLoud(loudAt)

	if !acc.HasSpeech() {
		t.Error("Expected speech after MarkLoud")
	}

	chunk := acc.Rotate(time.Now())
	if !chunk.HasSpeech {
		t.Error("Expected the closed chunk to carry the speech flag")
	}
	if !chunk.LastLoudAt.Equal(loudAt) {
		t.Errorf("Expected last-loud time %v, got %v", loudAt, chunk.LastLoudAt)
	}

	// Rotation must not leak the speech flag into the next chunk.
	if acc.HasSpeech() {
		t.Error("Expected the fresh chunk to start without speech")
	}
}

func TestAccumulatorClosedOperations(t *testing.T) {
	acc := NewAccumulator(16000)

	// All operations are no-ops without an open chunk.
	acc.Append(frameOf(0.5))
	acc.MarkLoud(time.Now())

	if chunk := acc.Close(time.Now()); chunk != nil {
		t.Error("Expected nil from Close without an open chunk")
	}
	if acc.HasSpeech() {
		t.Error("Expected no speech without an open chunk")
	}
	if !acc.StartedAt().IsZero() {
		t.Error("Expected zero start time without an open chunk")
	}
}

func TestAccumulatorStats(t *testing.T) {
	acc := NewAccumulator(16000)
	acc.Open(time.Now())
	acc.Append(frameOf(0.1, 0.2))
	acc.Append(frameOf(0.3))
	acc.MarkLoud(time.Now())
	acc.Rotate(time.Now())

	stats := acc.GetStats()
	if stats.ChunksOpened != 2 {
		t.Errorf("Expected 2 chunks opened, got %d", stats.ChunksOpened)
	}
	if stats.FramesAppended != 2 {
		t.Errorf("Expected 2 frames appended, got %d", stats.FramesAppended)
	}
	if stats.OpenSamples != 0 {
		t.Errorf("Expected empty open chunk, got %d samples", stats.OpenSamples)
	}
	if stats.OpenHasSpeech {
		t.Error("Expected the open chunk to have no speech")
	}
}

func TestChunkDurationUnclosed(t *testing.T) {
	chunk := &Chunk{Start: time.Now()}
	if d := chunk.Duration(); d != 0 {
		t.Errorf("Expected zero duration for an unclosed chunk, got %v", d)
	}
}

func TestFrameDuration(t *testing.T) {
	frame := Frame{Samples: make([]float32, 16000), SampleRate: 16000}
	if d := frame.Duration(); d != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}

	frame = Frame{Samples: make([]float32, 8000), SampleRate: 16000}
	if d := frame.Duration(); d != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", d)
	}
}
