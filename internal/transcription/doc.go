// Package transcription implements the HTTP client for the transcription API
// and the single-flight dispatcher that feeds it. The dispatcher gates chunks
// on detected speech and minimum length, enforces at most one in-flight
// request, and filters hallucinated results. Failed chunks are never retried:
// their audio is already gone by the time a retry could run.
package transcription
