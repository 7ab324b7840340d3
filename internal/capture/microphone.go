//go:build portaudio
// +build portaudio

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/nightowl-app/capture-service/internal/audio"
)

// MicSource captures mono audio from the default input device via
// portaudio. Frames are delivered in order with no loss while running;
// the reader blocks rather than dropping when the consumer falls behind.
type MicSource struct {
	cfg    Config
	logger *slog.Logger
	meter  *Meter

	stream  *portaudio.Stream
	frames  chan audio.Frame
	done    chan struct{}
	running bool
	wg      sync.WaitGroup

	mu sync.Mutex
}

// NewMicSource creates a microphone source. The device is not touched
// until Start.
func NewMicSource(cfg Config, logger *slog.Logger) *MicSource {
	return &MicSource{
		cfg:    cfg,
		logger: logger,
		meter:  NewMeter(cfg.MeterWindow),
	}
}

// Start acquires the microphone and begins producing frames.
func (m *MicSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return m.frames, nil
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: initializing portaudio: %v", ErrDeviceUnavailable, err)
	}

	buffer := make([]float32, m.cfg.FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), m.cfg.FrameSize, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, classifyOpenError(err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: starting stream: %v", ErrDeviceUnavailable, err)
	}

	m.stream = stream
	m.frames = make(chan audio.Frame, 8)
	m.done = make(chan struct{})
	m.running = true
	m.meter.Reset()

	m.wg.Add(1)
	go m.readLoop(ctx, stream, buffer, m.frames, m.done)

	m.logger.Info("Microphone started",
		slog.Int("sample_rate", m.cfg.SampleRate),
		slog.Int("frame_size", m.cfg.FrameSize),
	)

	return m.frames, nil
}

// readLoop pulls fixed-size buffers off the device, feeds the meter, and
// forwards frames until stopped.
func (m *MicSource) readLoop(ctx context.Context, stream *portaudio.Stream, buffer []float32, frames chan audio.Frame, done chan struct{}) {
	defer m.wg.Done()
	defer close(frames)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
			default:
				m.logger.Error("Microphone read failed", slog.String("error", err.Error()))
			}
			return
		}

		m.meter.Write(buffer)

		frame := audio.Frame{
			Samples:    append([]float32(nil), buffer...),
			SampleRate: m.cfg.SampleRate,
		}

		select {
		case frames <- frame:
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

// Stop releases the device. Safe to call repeatedly.
func (m *MicSource) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false

	close(m.done)
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()

	stream.Stop()
	stream.Close()
	m.wg.Wait()
	portaudio.Terminate()

	m.meter.Reset()
	m.logger.Info("Microphone stopped")
}

// Level returns the current RMS amplitude in [0, 1].
func (m *MicSource) Level() float64 {
	return m.meter.Level()
}

// classifyOpenError maps portaudio open failures onto the session error
// taxonomy: permission problems are terminal for the session, everything
// else counts as an unavailable device.
func classifyOpenError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
