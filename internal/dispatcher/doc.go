// Package dispatcher decodes stream frames and routes them by event type.
//
// Each frame is handled in isolation: a malformed frame raises one error
// notification, a failing handler is logged, and neither affects the next
// frame or the connection. The route table is fixed at construction.
package dispatcher
