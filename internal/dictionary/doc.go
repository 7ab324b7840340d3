// Package dictionary persists resolved word entries to a JSON file,
// newest first, and serves them to the status API.
package dictionary
