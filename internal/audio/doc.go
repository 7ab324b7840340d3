// Package audio defines the audio data model for the capture pipeline.
// It implements frame and chunk accumulation between voice boundary events,
// float to PCM sample conversion, and WAV encoding for transcription upload.
package audio
