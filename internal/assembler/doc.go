// Package assembler accumulates transcription fragments into an utterance
// and decides when the utterance is complete: immediately once it grows past
// the word limit, after a window of inactivity, or on explicit submit.
package assembler
