package assembler

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Trigger identifies what caused an utterance to be submitted.
type Trigger int

const (
	// TriggerWords means the buffer grew past the word limit.
	TriggerWords Trigger = iota

	// TriggerInactivity means no new fragment arrived within the window.
	TriggerInactivity

	// TriggerManual means the user submitted the utterance explicitly.
	TriggerManual
)

// String returns a human-readable trigger name
func (t Trigger) String() string {
	switch t {
	case TriggerWords:
		return "words"
	case TriggerInactivity:
		return "inactivity"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Config contains assembler parameters.
type Config struct {
	WordLimit  int           // submit immediately above this word count
	Inactivity time.Duration // submit after this long without fragments
}

// Assembler joins accepted transcription fragments into a pending utterance
// and fires the submit callback when the utterance completes. Each new
// fragment cancels the pending inactivity timer and arms a fresh one, so
// only silence after the latest fragment can trigger submission.
type Assembler struct {
	config Config
	logger *slog.Logger
	submit func(text string, trigger Trigger)

	buffer     string
	generation uint64
	timer      *time.Timer

	// Statistics
	fragments   uint64
	submissions map[Trigger]uint64

	mu sync.Mutex
}

// Stats represents assembler statistics for monitoring
type Stats struct {
	Fragments             uint64 `json:"fragments"`
	SubmitsByWords        uint64 `json:"submits_by_words"`
	SubmitsByInactivity   uint64 `json:"submits_by_inactivity"`
	SubmitsByManual       uint64 `json:"submits_by_manual"`
	PendingLength         int    `json:"pending_length"`
	InactivityTimerActive bool   `json:"inactivity_timer_active"`
}

// New creates an assembler. submit is called from whichever goroutine
// completes the utterance, including the timer goroutine.
func New(config Config, logger *slog.Logger, submit func(text string, trigger Trigger)) *Assembler {
	return &Assembler{
		config:      config,
		logger:      logger,
		submit:      submit,
		submissions: make(map[Trigger]uint64),
	}
}

// AddFragment appends a transcription fragment to the pending utterance.
// If the utterance grows past the word limit it is submitted immediately;
// otherwise the inactivity timer is re-armed from now.
func (a *Assembler) AddFragment(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	a.mu.Lock()

	a.fragments++
	if a.buffer == "" {
		a.buffer = text
	} else {
		a.buffer += " " + text
	}

	if countWords(a.buffer) > a.config.WordLimit {
		a.finishLocked(TriggerWords)
		return
	}

	// Bumping the generation invalidates any timer already running; a
	// stale timer that fires afterwards sees the mismatch and does nothing.
	a.generation++
	gen := a.generation
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(a.config.Inactivity, func() {
		a.onInactivity(gen)
	})

	a.mu.Unlock()
}

// Submit completes the pending utterance explicitly. If text is non-empty
// it replaces the buffer, which lets a user submit an edited utterance. An
// empty buffer with empty text is a no-op.
func (a *Assembler) Submit(text string) {
	a.mu.Lock()

	if text != "" {
		a.buffer = text
	}
	if a.buffer == "" {
		a.mu.Unlock()
		return
	}

	a.finishLocked(TriggerManual)
}

// Reset discards the pending utterance and cancels the inactivity timer.
func (a *Assembler) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffer = ""
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// Buffer returns the pending utterance text.
func (a *Assembler) Buffer() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer
}

// GetStats returns current assembler statistics
func (a *Assembler) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Stats{
		Fragments:             a.fragments,
		SubmitsByWords:        a.submissions[TriggerWords],
		SubmitsByInactivity:   a.submissions[TriggerInactivity],
		SubmitsByManual:       a.submissions[TriggerManual],
		PendingLength:         len(a.buffer),
		InactivityTimerActive: a.timer != nil,
	}
}

func (a *Assembler) onInactivity(gen uint64) {
	a.mu.Lock()

	if gen != a.generation || a.buffer == "" {
		a.mu.Unlock()
		return
	}

	a.finishLocked(TriggerInactivity)
}

// finishLocked submits the buffer and clears it. It releases the mutex
// before invoking the callback so the sink can call back into the assembler.
func (a *Assembler) finishLocked(trigger Trigger) {
	text := a.buffer
	a.buffer = ""
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.submissions[trigger]++
	a.mu.Unlock()

	a.logger.Info("Utterance submitted",
		slog.String("text", text),
		slog.String("trigger", trigger.String()),
	)

	a.submit(text, trigger)
}

// countWords counts whitespace-separated words.
func countWords(s string) int {
	return len(strings.Fields(s))
}
