// Package vad provides energy-based voice activity detection.
// It classifies a running RMS amplitude signal against a fixed threshold and
// derives the chunk boundary conditions: close-on-silence after a speech run
// and close-on-max-duration as a hard latency cap.
package vad
