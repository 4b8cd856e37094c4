// Package server exposes health, metrics and manual reconnect over HTTP.
//
// Endpoints:
//   - GET  /health     stream status and retry state (503 unless connected)
//   - GET  /metrics    Prometheus metrics (path configurable)
//   - POST /reconnect  drop the stream and reconnect now (409 while one is running)
package server
