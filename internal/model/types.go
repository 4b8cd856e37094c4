package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is one user-facing message produced from a stream event.
type Notification struct {
	ID          uuid.UUID // Primary key
	Severity    string    // info, success, warning, error
	Title       string    // Short headline (e.g. "Update available")
	Description string    // Formatted detail line
	CreatedAt   time.Time // When the notification was raised
}

// NewNotification builds a Notification with a fresh ID stamped at now.
func NewNotification(severity, title, description string, now time.Time) Notification {
	return Notification{
		ID:          uuid.New(),
		Severity:    severity,
		Title:       title,
		Description: description,
		CreatedAt:   now.UTC(),
	}
}
