//go:build !portaudio
// +build !portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nightowl-app/capture-service/internal/audio"
)

// MicSource stub when portaudio is not available
type MicSource struct {
	logger *slog.Logger
}

// NewMicSource creates a stub microphone source.
func NewMicSource(cfg Config, logger *slog.Logger) *MicSource {
	return &MicSource{logger: logger}
}

// Start always fails: there is no audio backend in this build.
func (m *MicSource) Start(_ context.Context) (<-chan audio.Frame, error) {
	return nil, fmt.Errorf("%w: rebuild with -tags portaudio", ErrDeviceUnavailable)
}

// Stop is a no-op.
func (m *MicSource) Stop() {}

// Level always reports silence.
func (m *MicSource) Level() float64 {
	return 0
}
