package notify

import (
	"context"
	"log/slog"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sink receives notifications. Implementations must not block.
type Sink interface {
	Notify(severity Severity, title, description string)
}

// Func adapts a function to Sink.
type Func func(severity Severity, title, description string)

// Notify calls fn.
func (fn Func) Notify(severity Severity, title, description string) {
	fn(severity, title, description)
}

// LogSink writes notifications to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Notify logs at a level matching severity.
func (s *LogSink) Notify(severity Severity, title, description string) {
	level := slog.LevelInfo
	switch severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}

	s.logger.Log(context.Background(), level, title,
		"severity", string(severity),
		"description", description,
	)
}

// Multi fans a notification out to every sink in order. A panicking sink is
// logged and skipped.
type Multi struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewMulti creates a Multi over sinks. Nil sinks are ignored.
func NewMulti(logger *slog.Logger, sinks ...Sink) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Multi{logger: logger}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Notify sends to every sink.
func (m *Multi) Notify(severity Severity, title, description string) {
	for i, s := range m.sinks {
		m.notifyOne(i, s, severity, title, description)
	}
}

func (m *Multi) notifyOne(i int, s Sink, severity Severity, title, description string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("notification sink panicked", "sink", i, "panic", r)
		}
	}()
	s.Notify(severity, title, description)
}
