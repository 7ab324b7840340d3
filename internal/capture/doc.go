// Package capture owns the microphone and exposes it as a live sequence of
// fixed-size audio frames plus a continuously queryable RMS amplitude level.
// The portaudio backend is selected with the "portaudio" build tag; without
// it a stub source is compiled in so the rest of the service can be built
// and tested on machines with no audio hardware.
package capture
