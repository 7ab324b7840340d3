package session

import "sync/atomic"

// State is the recording lifecycle state.
type State int32

const (
	// StateIdle means no capture session is active.
	StateIdle State = iota

	// StateRecording means audio is being captured and segmented.
	StateRecording

	// StateProcessing means a manually submitted utterance is being
	// resolved outside a capture session.
	StateProcessing

	// StateError means capture failed terminally, for example because the
	// microphone permission was denied.
	StateError
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Cell holds the current state so async callbacks can read it without
// locking. Callbacks that outlive a session, such as a transcription result
// arriving after stop, must consult the cell fresh at delivery time rather
// than trusting the state they were started under.
type Cell struct {
	v atomic.Int32
}

// Get returns the current state.
func (c *Cell) Get() State {
	return State(c.v.Load())
}

// Set stores a new state.
func (c *Cell) Set(s State) {
	c.v.Store(int32(s))
}

// CompareAndSwap transitions from old to new atomically and reports whether
// the swap happened.
func (c *Cell) CompareAndSwap(old, new State) bool {
	return c.v.CompareAndSwap(int32(old), int32(new))
}
