// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns exactly one event stream transport (SSE or WebSocket) at a time
//   - Drives the disconnected -> reconnecting -> connected state machine
//   - Reconnects forever with exponential backoff until stopped
//   - Pushes every received frame into the Event Dispatcher, in arrival order
package connection
