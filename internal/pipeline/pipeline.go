package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nightowl-app/capture-service/internal/assembler"
	"github.com/nightowl-app/capture-service/internal/audio"
	"github.com/nightowl-app/capture-service/internal/capture"
	"github.com/nightowl-app/capture-service/internal/config"
	"github.com/nightowl-app/capture-service/internal/dictionary"
	"github.com/nightowl-app/capture-service/internal/lookup"
	"github.com/nightowl-app/capture-service/internal/metrics"
	"github.com/nightowl-app/capture-service/internal/session"
	"github.com/nightowl-app/capture-service/internal/transcription"
	"github.com/nightowl-app/capture-service/internal/vad"
)

// Pipeline runs one recording session at a time. While recording it pulls
// frames from the source into the accumulator, polls the amplitude meter
// through the detector, closes chunks on detected boundaries, and hands them
// to the dispatcher. Accepted fragments flow through the assembler into
// dictionary lookups.
//
// The state cell is the single source of truth for the lifecycle. Every
// callback that can arrive late, such as a transcription result after stop,
// reads the cell at delivery time and discards its payload if the session
// ended.
type Pipeline struct {
	config     *config.Config
	source     capture.Source
	detector   *vad.Detector
	acc        *audio.Accumulator
	dispatcher *transcription.Dispatcher
	asm        *assembler.Assembler
	idle       *session.IdleTimer
	analyzer   lookup.Analyzer
	store      *dictionary.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	state   session.Cell
	lastErr string
	errMu   sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes Start, Stop, and Toggle.
	mu sync.Mutex
}

// Status is a snapshot of the pipeline for the control API.
type Status struct {
	State         string                        `json:"state"`
	AudioLevel    float64                       `json:"audio_level"`
	IdleRemaining int                           `json:"idle_remaining_sec"`
	Pending       string                        `json:"pending_utterance"`
	LastError     string                        `json:"last_error,omitempty"`
	Accumulator   audio.AccumulatorStats        `json:"accumulator"`
	Detector      vad.DetectorStats             `json:"detector"`
	Dispatcher    transcription.DispatcherStats `json:"dispatcher"`
	Assembler     assembler.Stats               `json:"assembler"`
	Dictionary    int                           `json:"dictionary_entries"`
}

// New creates a pipeline and wires its internal callbacks.
func New(
	cfg *config.Config,
	source capture.Source,
	transcriber transcription.Transcriber,
	analyzer lookup.Analyzer,
	store *dictionary.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) (*Pipeline, error) {
	detector, err := vad.NewDetector(
		cfg.VAD.Threshold,
		cfg.VAD.GetSilenceWindow(),
		cfg.VAD.GetMaxChunkDuration(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector: %w", err)
	}

	p := &Pipeline{
		config:   cfg,
		source:   source,
		detector: detector,
		acc:      audio.NewAccumulator(cfg.Capture.SampleRate),
		analyzer: analyzer,
		store:    store,
		metrics:  m,
		logger:   logger,
	}

	p.dispatcher = transcription.NewDispatcher(transcriber, transcription.DispatcherConfig{
		Language:   cfg.Transcription.Language,
		MinSamples: cfg.VAD.MinChunkSamples,
		Timeout:    cfg.Transcription.GetTimeoutDuration(),
	}, logger, m, p.onFragment)

	p.asm = assembler.New(assembler.Config{
		WordLimit:  cfg.Assembler.WordLimit,
		Inactivity: cfg.Assembler.GetInactivityWindow(),
	}, logger, p.onSubmit)

	p.idle = session.NewIdleTimer(cfg.Session.GetIdleShutdown(), logger, p.onIdleExpire)

	return p, nil
}

// Start begins a recording session. Starting while already recording is an
// error; starting from the error state clears it and retries the device.
// ctx must outlive the session: cancelling it aborts the session into the
// error state, so request-scoped contexts are unsuitable here.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state.Get() {
	case session.StateRecording:
		return fmt.Errorf("already recording")
	case session.StateProcessing:
		return fmt.Errorf("busy processing a submission")
	}

	runCtx, cancel := context.WithCancel(ctx)

	frames, err := p.source.Start(runCtx)
	if err != nil {
		cancel()
		p.state.Set(session.StateError)
		p.metrics.SetRecordingState(int(session.StateError))
		p.setLastError(err.Error())
		p.logger.Error("Failed to start capture",
			slog.String("error", err.Error()),
		)
		return err
	}

	p.cancel = cancel
	p.setLastError("")
	p.detector.Reset()
	p.acc.Open(time.Now())
	p.idle.Start()
	p.state.Set(session.StateRecording)
	p.metrics.SetRecordingState(int(session.StateRecording))

	p.wg.Add(1)
	go p.runLoop(runCtx, cancel, frames)

	p.logger.Info("Recording started",
		slog.Int("sample_rate", p.config.Capture.SampleRate),
		slog.Float64("vad_threshold", p.config.VAD.Threshold),
	)

	return nil
}

// Stop ends the recording session. The state flips to idle before any
// teardown so in-flight callbacks observing the cell discard their results.
// The partially accumulated chunk is discarded, never transcribed. Stopping
// an idle pipeline is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.CompareAndSwap(session.StateRecording, session.StateIdle) {
		return
	}
	p.metrics.SetRecordingState(int(session.StateIdle))

	p.cancel()
	p.idle.Stop()
	p.asm.Reset()
	p.source.Stop()
	p.wg.Wait()

	p.acc.Close(time.Now())

	p.logger.Info("Recording stopped")
}

// Toggle starts a session when idle and stops it when recording, the same
// action a push-to-talk hotkey performs.
func (p *Pipeline) Toggle(ctx context.Context) error {
	if p.state.Get() == session.StateRecording {
		p.Stop()
		return nil
	}
	return p.Start(ctx)
}

// SubmitText submits an utterance explicitly. While recording it completes
// the pending utterance, replaced by text when non-empty. While idle it
// looks up text directly, holding the processing state until the lookup
// finishes.
func (p *Pipeline) SubmitText(text string) error {
	if p.state.Get() == session.StateRecording {
		p.idle.Reset()
		p.asm.Submit(text)
		return nil
	}

	if text == "" {
		return fmt.Errorf("nothing to submit")
	}

	if !p.state.CompareAndSwap(session.StateIdle, session.StateProcessing) {
		return fmt.Errorf("busy processing a submission")
	}
	p.metrics.SetRecordingState(int(session.StateProcessing))

	p.metrics.RecordSubmission(assembler.TriggerManual.String())
	go func() {
		p.resolve(text)
		p.state.CompareAndSwap(session.StateProcessing, session.StateIdle)
		p.metrics.SetRecordingState(int(p.state.Get()))
	}()

	return nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() session.State {
	return p.state.Get()
}

// Status returns a snapshot for the control API.
func (p *Pipeline) Status() Status {
	return Status{
		State:         p.state.Get().String(),
		AudioLevel:    p.source.Level(),
		IdleRemaining: p.idle.Remaining(),
		Pending:       p.asm.Buffer(),
		LastError:     p.getLastError(),
		Accumulator:   p.acc.GetStats(),
		Detector:      p.detector.GetStats(),
		Dispatcher:    p.dispatcher.GetStats(),
		Assembler:     p.asm.GetStats(),
		Dictionary:    p.store.Len(),
	}
}

// runLoop consumes captured frames and evaluates chunk boundaries on a
// fixed poll interval until the session ends.
func (p *Pipeline) runLoop(ctx context.Context, cancel context.CancelFunc, frames <-chan audio.Frame) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Capture.GetPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.abort("capture context cancelled")
			return

		case frame, ok := <-frames:
			if !ok {
				cancel()
				p.abort("audio stream ended unexpectedly")
				return
			}
			p.acc.Append(frame)
			p.metrics.RecordFrameCaptured()

		case now := <-ticker.C:
			p.pollTick(now)
		}
	}
}

// pollTick samples the amplitude meter and closes the chunk when the
// detector reports a boundary. The silence boundary requires detected
// speech, so ambient noise alone never produces a chunk; the max-duration
// boundary closes unconditionally and the dispatcher discards the chunk if
// it never held speech.
func (p *Pipeline) pollTick(now time.Time) {
	if p.state.Get() != session.StateRecording {
		return
	}

	level := p.source.Level()
	p.metrics.SetAudioLevel(level)

	loud := p.detector.Sample(level, now)
	p.metrics.RecordLevelSample(loud)
	if loud {
		p.acc.MarkLoud(now)
		p.idle.Reset()
		p.metrics.SetIdleRemaining(p.idle.Remaining())
	}

	boundary := p.detector.Boundary(now, p.acc.StartedAt(), p.acc.HasSpeech())
	if boundary == vad.BoundaryNone {
		return
	}

	chunk := p.acc.Rotate(now)
	if chunk == nil {
		return
	}

	p.logger.Debug("Chunk boundary",
		slog.String("chunk_id", chunk.ID),
		slog.String("boundary", boundary.String()),
		slog.Duration("duration", chunk.Duration()),
		slog.Bool("has_speech", chunk.HasSpeech),
	)

	reason := p.dispatcher.Dispatch(chunk)
	if reason == transcription.DropNone {
		p.metrics.RecordChunkDispatched(chunk.Duration().Seconds(), chunk.SampleCount())
	} else {
		p.metrics.RecordChunkDropped(reason.String())
	}
}

// abort runs when the session dies underneath the state machine: the frame
// channel closed because the device failed, or the capture context was
// cancelled by its parent. A regular Stop flips the state to idle before
// cancelling, so its cancellation never reaches the error state here.
func (p *Pipeline) abort(reason string) {
	if !p.state.CompareAndSwap(session.StateRecording, session.StateError) {
		return
	}
	p.metrics.SetRecordingState(int(session.StateError))
	p.setLastError(reason)

	p.idle.Stop()
	p.asm.Reset()
	p.source.Stop()
	p.acc.Close(time.Now())

	p.logger.Error("Recording session aborted",
		slog.String("reason", reason),
	)
}

// onFragment receives usable transcription text from the dispatcher. The
// result may arrive after the session stopped; it is discarded then.
func (p *Pipeline) onFragment(text string) {
	if p.state.Get() != session.StateRecording {
		p.logger.Debug("Transcription result after session end, discarded",
			slog.String("text", text),
		)
		return
	}

	p.metrics.RecordFragmentAccepted()
	p.idle.Reset()
	p.asm.AddFragment(text)
}

// onSubmit receives a completed utterance from the assembler.
func (p *Pipeline) onSubmit(text string, trigger assembler.Trigger) {
	p.metrics.RecordSubmission(trigger.String())
	if p.state.Get() == session.StateRecording {
		p.idle.Reset()
	}
	go p.resolve(text)
}

// resolve looks up an utterance and stores the resulting entry. Lookup
// failures drop the utterance; there is no retry.
func (p *Pipeline) resolve(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Lookup.GetTimeoutDuration())
	defer cancel()

	startTime := time.Now()
	entry, err := p.analyzer.Analyze(ctx, text)
	duration := time.Since(startTime)

	if err != nil {
		p.metrics.RecordLookupFailure(duration.Seconds())
		p.logger.Warn("Lookup failed, utterance dropped",
			slog.String("text", text),
			slog.String("error", err.Error()),
		)
		return
	}
	p.metrics.RecordLookupSuccess(duration.Seconds())

	if err := p.store.Add(*entry); err != nil {
		p.logger.Error("Failed to store dictionary entry",
			slog.String("id", entry.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	p.metrics.SetDictionarySize(p.store.Len())
}

func (p *Pipeline) onIdleExpire() {
	p.logger.Info("Session idle for too long, stopping")
	p.Stop()
}

func (p *Pipeline) setLastError(msg string) {
	p.errMu.Lock()
	p.lastErr = msg
	p.errMu.Unlock()
}

func (p *Pipeline) getLastError() string {
	p.errMu.RLock()
	defer p.errMu.RUnlock()
	return p.lastErr
}
