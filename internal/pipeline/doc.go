// Package pipeline wires microphone capture, voice activity detection,
// chunk accumulation, transcription, utterance assembly, and dictionary
// lookup into a single recording session and owns its lifecycle.
package pipeline
