package capture

import (
	"context"
	"errors"

	"github.com/nightowl-app/capture-service/internal/audio"
)

// ErrPermissionDenied is returned when the OS refuses microphone access.
// Fatal for the session: the caller must surface an error state and wait
// for a manual retry.
var ErrPermissionDenied = errors.New("microphone permission denied")

// ErrDeviceUnavailable is returned when no usable input device exists or
// the device cannot be opened.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Source produces audio frames and a running amplitude level while started.
type Source interface {
	// Start acquires the device and returns the live frame stream.
	// Frame delivery is strictly ordered and lossless until Stop.
	Start(ctx context.Context) (<-chan audio.Frame, error)

	// Stop releases all device resources synchronously. Calling it when
	// already stopped is a no-op.
	Stop()

	// Level returns the most recent RMS amplitude in [0, 1], computed
	// over the configured analysis window. Zero while stopped.
	Level() float64
}

// Config contains capture source parameters.
type Config struct {
	SampleRate  int // Hz
	FrameSize   int // samples per frame
	MeterWindow int // samples per amplitude analysis window
}
