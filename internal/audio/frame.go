package audio

import "time"

// Frame is a fixed-length block of normalized samples produced by the
// capture source. Frames are immutable once emitted; ownership transfers
// to the accumulator.
type Frame struct {
	Samples    []float32 // amplitude values in [-1, 1]
	SampleRate int       // Hz
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
