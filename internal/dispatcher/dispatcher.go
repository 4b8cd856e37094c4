package dispatcher

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rickgao/updatewatch/internal/connection"
	"github.com/rickgao/updatewatch/internal/metrics"
	"github.com/rickgao/updatewatch/internal/notify"
)

// decodeErrorTitle heads the notification raised for frames that cannot be decoded.
const decodeErrorTitle = "Stream error"

// otherLabel is the metric label for unregistered event types.
const otherLabel = "other"

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHandler registers fn for eventType, replacing any earlier handler.
// Heartbeat types never reach a handler.
func WithHandler(eventType string, fn HandlerFunc) Option {
	return func(d *Dispatcher) {
		r := d.routes[eventType]
		r.handler = fn
		d.routes[eventType] = r
	}
}

// WithNotification turns the notification for eventType on or off.
func WithNotification(eventType string, enabled bool) Option {
	return func(d *Dispatcher) {
		r := d.routes[eventType]
		r.notify = enabled
		d.routes[eventType] = r
	}
}

// WithNotificationsEnabled is the global switch; when off no notification
// is sent, decode errors included.
func WithNotificationsEnabled(enabled bool) Option {
	return func(d *Dispatcher) {
		d.notifyEnabled = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics records dispatch metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = mt
	}
}

// Dispatcher decodes frames and routes them to handlers and the notification
// sink. It holds no state besides its route table, which is read-only after
// New returns.
type Dispatcher struct {
	routes        map[string]route
	sink          notify.Sink
	notifyEnabled bool
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// New creates a Dispatcher. Every type with a notification template notifies
// by default. A nil sink disables notifications.
func New(sink notify.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes:        make(map[string]route, len(templates)),
		sink:          sink,
		notifyEnabled: true,
		logger:        slog.Default(),
	}
	for eventType := range templates {
		d.routes[eventType] = route{notify: true}
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// HandleFrame implements connection.FrameHandler.
func (d *Dispatcher) HandleFrame(f connection.Frame) {
	d.Handle(f.Data)
}

// Handle decodes and routes one frame. It never panics and never returns an
// error: every failure ends in a log line or a notification.
func (d *Dispatcher) Handle(raw []byte) Outcome {
	ev, err := decode(raw)
	if err != nil {
		d.logger.Warn("failed to decode event", "error", err, "size", len(raw))
		d.notify(notify.SeverityError, decodeErrorTitle, fmt.Sprintf("Could not read event: %v", err))
		d.metrics.Event(otherLabel, OutcomeDecodeError.String())
		return OutcomeDecodeError
	}

	outcome := d.route(ev)
	d.metrics.Event(d.label(ev.Type), outcome.String())
	return outcome
}

func (d *Dispatcher) route(ev Event) Outcome {
	if isHeartbeat(ev.Type) {
		d.logger.Debug("heartbeat", "type", ev.Type)
		return OutcomeHeartbeat
	}

	r, registered := d.routes[ev.Type]
	if !registered {
		d.logger.Debug("skipping unknown event type", "type", ev.Type)
		return OutcomeUnknown
	}

	outcome := OutcomeDispatched
	if r.handler != nil {
		if err := d.invoke(ev, r.handler); err != nil {
			d.logger.Error("event handler failed", "type", ev.Type, "error", err)
			outcome = OutcomeHandlerFailed
		}
	} else if !isKnown(ev.Type) {
		return OutcomeUnknown
	}

	if r.notify {
		if t, description, ok := formatNotification(ev); ok {
			d.notify(t.severity, t.title, description)
		}
	}

	return outcome
}

// invoke calls fn, converting a panic into an error.
func (d *Dispatcher) invoke(ev Event, fn HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn(ev.Data)
}

// notify sends to the sink, guarding against a misbehaving one.
func (d *Dispatcher) notify(severity notify.Severity, title, description string) {
	if !d.notifyEnabled || d.sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification sink panicked", "title", title, "panic", r)
		}
	}()
	d.sink.Notify(severity, title, description)
	d.metrics.Notification(string(severity))
}

// label bounds the metric label set to registered types.
func (d *Dispatcher) label(eventType string) string {
	if isHeartbeat(eventType) {
		return eventType
	}
	if _, ok := d.routes[eventType]; ok {
		return eventType
	}
	return otherLabel
}

// decode parses the envelope. Keys match exactly, so "Type" or "DATA" are
// unknown top-level fields and, like any other, are ignored.
func decode(raw []byte) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	var ev Event
	for key, dst := range map[string]any{
		"type":      &ev.Type,
		"data":      &ev.Data,
		"timestamp": &ev.Timestamp,
	} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Event{}, fmt.Errorf("decode envelope %s: %w", key, err)
		}
	}

	if ev.Type == "" {
		return Event{}, ErrMissingType
	}
	return ev, nil
}
