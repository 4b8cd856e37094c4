// Package notify delivers user-facing notifications raised by the dispatcher.
//
// A Sink must never block or panic back into its caller. Provided sinks:
//   - LogSink: writes each notification to a slog.Logger
//   - Multi: fans out to several sinks, isolating each one
//   - Store: queues notifications and batch-inserts them into PostgreSQL
package notify
