package dispatcher

import "errors"

var (
	ErrMissingType = errors.New("event type missing")
)

// Event types sent by the server.
const (
	TypeConnected          = "connected"
	TypePing               = "ping"
	TypeUpdateAvailable    = "update_available"
	TypeUpdateApplied      = "update_applied"
	TypeUpdateFailed       = "update_failed"
	TypeContainerRestarted = "container_restarted"
	TypeHealthCheckFailed  = "health_check_failed"
)

// Event is the decoded envelope {"type", "data", "timestamp"}.
type Event struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"` // ISO-8601, as sent
}

// HandlerFunc processes the data of one event. Data is nil when the envelope
// omitted it.
type HandlerFunc func(data map[string]any) error

// Outcome reports what Handle did with a frame.
type Outcome int

const (
	OutcomeDispatched Outcome = iota
	OutcomeHeartbeat
	OutcomeUnknown
	OutcomeDecodeError
	OutcomeHandlerFailed
)

// String returns the metric label for o.
func (o Outcome) String() string {
	switch o {
	case OutcomeDispatched:
		return "dispatched"
	case OutcomeHeartbeat:
		return "heartbeat"
	case OutcomeUnknown:
		return "unknown"
	case OutcomeDecodeError:
		return "decode_error"
	case OutcomeHandlerFailed:
		return "handler_failed"
	default:
		return "invalid"
	}
}

// route is one entry of the read-only route table.
type route struct {
	handler HandlerFunc
	notify  bool
}

func isHeartbeat(eventType string) bool {
	return eventType == TypeConnected || eventType == TypePing
}
