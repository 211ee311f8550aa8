// Package escalation defines domain types for human review of low-confidence
// agent answers.
package escalation

import (
	"errors"
	"time"
)

// Status represents the lifecycle state of an escalation.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	// StatusExpired is reserved for a future timeout policy. No operation
	// currently produces it.
	StatusExpired Status = "expired"
)

// Action is the verb a human reviewer applies to a pending escalation.
type Action string

const (
	// ActionConfirm accepts the agent's tentative answer as-is.
	ActionConfirm Action = "confirm"
	// ActionCorrect replaces the tentative answer with the human's response.
	ActionCorrect Action = "correct"
	// ActionAddContext supplies extra context and triggers a re-invocation
	// of the agent; it is the one action that is not itself terminal.
	ActionAddContext Action = "add_context"
)

var (
	// ErrAlreadyResolved is returned on a second human response. Strict by
	// design: a second decision overwriting the first is a correctness
	// hazard, not a harmless retry.
	ErrAlreadyResolved = errors.New("escalation is already resolved")
	// ErrInvalidAction is returned for an unrecognized human action.
	ErrInvalidAction = errors.New("invalid action")
	// ErrMissingResponse is returned when action=correct has no response text.
	ErrMissingResponse = errors.New("response is required for action=correct")
	// ErrResponderRequired is returned when no responder identity is given.
	ErrResponderRequired = errors.New("responder is required")
	// ErrConfidenceRange is returned when confidence is outside [0, 100].
	ErrConfidenceRange = errors.New("confidence must be in [0, 100]")
	// ErrQuestionRequired is returned when an escalation has no question text.
	ErrQuestionRequired = errors.New("question is required")
	// ErrTopicRequired is returned when an escalation has no topic.
	ErrTopicRequired = errors.New("topic is required")
)

// Escalation is one durable human-review request for a low-confidence answer.
// Created exactly once when validation rejects an answer, mutated exactly
// once by a human response, never deleted.
type Escalation struct {
	ID                 string     `json:"id"`
	SessionID          string     `json:"session_id,omitempty"`
	QuestionID         string     `json:"question_id"`
	Topic              string     `json:"topic"`
	Question           string     `json:"question"`
	TentativeAnswer    string     `json:"tentative_answer"`
	Confidence         int        `json:"confidence"`
	UncertaintyReasons []string   `json:"uncertainty_reasons,omitempty"`
	Status             Status     `json:"status"`
	HumanAction        Action     `json:"human_action,omitempty"`
	HumanResponse      string     `json:"human_response,omitempty"`
	HumanResponder     string     `json:"human_responder,omitempty"`
	NotificationRef    string     `json:"notification_ref,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Resolved reports whether the escalation has received its human decision.
func (e *Escalation) Resolved() bool {
	return e.Status == StatusResolved
}

// FinalAnswer returns the answer that stands after resolution: the human's
// replacement for action=correct, the tentative answer otherwise.
func (e *Escalation) FinalAnswer() string {
	if e.HumanAction == ActionCorrect && e.HumanResponse != "" {
		return e.HumanResponse
	}
	return e.TentativeAnswer
}

// CreateRequest holds the fields for creating an escalation.
type CreateRequest struct {
	SessionID          string   `json:"session_id,omitempty"`
	QuestionID         string   `json:"question_id,omitempty"`
	Topic              string   `json:"topic"`
	Question           string   `json:"question"`
	TentativeAnswer    string   `json:"tentative_answer"`
	Confidence         int      `json:"confidence"`
	UncertaintyReasons []string `json:"uncertainty_reasons,omitempty"`
}

// Validate checks the create request for correctness.
func (r *CreateRequest) Validate() error {
	if r.Topic == "" {
		return ErrTopicRequired
	}
	if r.Question == "" {
		return ErrQuestionRequired
	}
	if r.Confidence < 0 || r.Confidence > 100 {
		return ErrConfidenceRange
	}
	return nil
}

// HumanResponseRequest holds a human reviewer's decision.
type HumanResponseRequest struct {
	Action    Action `json:"action"`
	Responder string `json:"responder"`
	Response  string `json:"response,omitempty"`
}

// Validate checks the response for correctness before any mutation.
func (r *HumanResponseRequest) Validate() error {
	switch r.Action {
	case ActionConfirm, ActionCorrect, ActionAddContext:
	default:
		return ErrInvalidAction
	}
	if r.Responder == "" {
		return ErrResponderRequired
	}
	if r.Action == ActionCorrect && r.Response == "" {
		return ErrMissingResponse
	}
	return nil
}
