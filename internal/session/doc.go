// Package session tracks the recording lifecycle: the current state as an
// atomically readable cell, and the idle countdown that force-stops a
// session nobody is speaking into.
package session
