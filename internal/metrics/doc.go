// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream connection status, connect attempts and failures
//   - Retry delays chosen by the backoff
//   - Frames received and events dispatched, by type and outcome
//   - Notifications sent, stored and dropped
package metrics
