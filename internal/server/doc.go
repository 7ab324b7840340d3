// Package server exposes the HTTP control and status API: session control
// (start, stop, toggle, submit), dictionary access, health, and Prometheus
// metrics.
package server
