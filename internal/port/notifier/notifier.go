// Package notifier defines the human-review notification port (interface).
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is not properly configured.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier. Delivery is
// fire-and-forget from the coordinator's perspective: the escalation record
// is the durable source of truth, the notification only speeds up review.
type Notification struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Level   string `json:"level"`  // "info", "warning", "error"
	Source  string `json:"source"` // e.g. "escalation.created", "escalation.resolved"
	Ref     string `json:"ref"`    // correlation id, typically the escalation id
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	DeliveryRef    bool `json:"delivery_ref"`
}

// Notifier is the port interface for delivering review requests.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack", "github").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification. The returned reference identifies the
	// delivery on the external side (e.g. a posted comment URL) and is empty
	// when the sink has no such concept.
	Send(ctx context.Context, notification Notification) (string, error)
}
