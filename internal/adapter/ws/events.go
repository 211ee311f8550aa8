package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventSessionCreated     = "session.created"
	EventSessionClosed      = "session.closed"
	EventEscalationCreated  = "escalation.created"
	EventEscalationResolved = "escalation.resolved"
	EventEscalationReroute  = "escalation.reroute"
)

// SessionEvent is broadcast when a session is created or closed.
type SessionEvent struct {
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Status    string `json:"status"`
}

// EscalationEvent is broadcast on escalation lifecycle changes.
type EscalationEvent struct {
	EscalationID string `json:"escalation_id"`
	SessionID    string `json:"session_id,omitempty"`
	Topic        string `json:"topic"`
	Confidence   int    `json:"confidence"`
	Status       string `json:"status"`
	HumanAction  string `json:"human_action,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
