// Package session defines domain types for multi-turn conversational sessions
// and their messages.
package session

import (
	"errors"
	"time"
)

// DefaultTTL is how long a session stays active after creation. The expiry
// is fixed at creation; appending messages does not slide the window.
const DefaultTTL = time.Hour

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
	StatusExpired Status = "expired"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleHuman     Role = "human"
)

var (
	// ErrClosed is returned when writing to an explicitly closed session.
	ErrClosed = errors.New("session is closed")
	// ErrExpired is returned when writing to a timed-out session. Callers
	// can recover by opening a new session; a closed session is terminal.
	ErrExpired = errors.New("session has expired")
	// ErrEmptyContent is returned when a message has no content.
	ErrEmptyContent = errors.New("message content is required")
	// ErrInvalidRole is returned for a role outside {user, assistant, human}.
	ErrInvalidRole = errors.New("invalid message role")
	// ErrAgentRequired is returned when a session is created without an agent.
	ErrAgentRequired = errors.New("agent_id is required")
)

// Session is one bounded conversational context scoped to a single agent.
// Sessions are never deleted; they leave Active only by explicit close or
// by the lazy expiry check, and both end states remain readable for audit.
type Session struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agent_id"`
	FeatureID string    `json:"feature_id,omitempty"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExpiredBy reports whether the session's window has elapsed at the given
// instant. Only Active sessions can transition; Closed stays Closed.
func (s *Session) ExpiredBy(now time.Time) bool {
	return s.Status == StatusActive && now.After(s.ExpiresAt)
}

// Writable returns nil when messages may be appended, or the sentinel
// matching the session's terminal state.
func (s *Session) Writable() error {
	switch s.Status {
	case StatusClosed:
		return ErrClosed
	case StatusExpired:
		return ErrExpired
	default:
		return nil
	}
}

// Message is one immutable turn within a session. Ordering is by creation time.
type Message struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// CreateRequest holds the fields for creating a session.
type CreateRequest struct {
	AgentID   string `json:"agent_id"`
	FeatureID string `json:"feature_id,omitempty"`
}

// Validate checks the create request for correctness.
func (r *CreateRequest) Validate() error {
	if r.AgentID == "" {
		return ErrAgentRequired
	}
	return nil
}

// AppendRequest holds the fields for appending a message to a session.
type AppendRequest struct {
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the append request for correctness.
func (r *AppendRequest) Validate() error {
	switch r.Role {
	case RoleUser, RoleAssistant, RoleHuman:
	default:
		return ErrInvalidRole
	}
	if r.Content == "" {
		return ErrEmptyContent
	}
	return nil
}
