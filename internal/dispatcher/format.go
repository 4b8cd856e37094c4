package dispatcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rickgao/updatewatch/internal/notify"
)

// missingField stands in for absent or empty payload fields.
const missingField = "unknown"

// template describes the notification raised for one event type.
// Placeholders in description are {field} names from the event data.
type template struct {
	severity    notify.Severity
	title       string
	description string
}

var templates = map[string]template{
	TypeUpdateAvailable: {
		severity:    notify.SeverityInfo,
		title:       "Update available",
		description: "{container_name} can be updated to {new_version}",
	},
	TypeUpdateApplied: {
		severity:    notify.SeveritySuccess,
		title:       "Update applied",
		description: "{container_name} was updated to {new_version}",
	},
	TypeUpdateFailed: {
		severity:    notify.SeverityError,
		title:       "Update failed",
		description: "{container_name}: {error}",
	},
	TypeContainerRestarted: {
		severity:    notify.SeverityInfo,
		title:       "Container restarted",
		description: "{container_name} restarted: {reason}",
	},
	TypeHealthCheckFailed: {
		severity:    notify.SeverityWarning,
		title:       "Health check failed",
		description: "{container_name}: {error}",
	},
}

// isKnown reports whether eventType has a notification template.
func isKnown(eventType string) bool {
	_, ok := templates[eventType]
	return ok
}

// formatNotification renders the notification for ev. ok is false when the
// type has no template.
func formatNotification(ev Event) (t template, description string, ok bool) {
	t, ok = templates[ev.Type]
	if !ok {
		return template{}, "", false
	}
	return t, expand(t.description, ev.Data), true
}

// expand replaces each {field} in s with the matching value from data.
func expand(s string, data map[string]any) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(s[open:], '}')
		if end < 0 {
			break
		}
		b.WriteString(s[:open])
		b.WriteString(field(data, s[open+1:open+end]))
		s = s[open+end+1:]
	}
	b.WriteString(s)
	return b.String()
}

// field returns data[key] as display text.
func field(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return missingField
	}
	switch v := v.(type) {
	case string:
		if v == "" {
			return missingField
		}
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
