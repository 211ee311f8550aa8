// Package agentclient defines the expert agent invocation port (interface).
package agentclient

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the agent could not be reached or timed out.
// Retryable at the caller's discretion; the coordinator never retries
// internally to avoid duplicate side effects against a stateful agent.
var ErrUnavailable = errors.New("agent unavailable")

// InvocationError is an error the agent itself reported in its response
// payload. These are permanent for the given request.
type InvocationError struct {
	Code    string
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent invocation failed: %s: %s", e.Code, e.Message)
}

// Turn is one prior message handed to the agent as conversational context.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the outbound agent invocation contract.
type Request struct {
	Workflow   string            `json:"workflow"`
	Question   string            `json:"question"`
	Context    map[string]string `json:"context,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	History    []Turn            `json:"history,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	ModelHint  string            `json:"model_hint,omitempty"`
}

// Result is the agent's answer plus its self-reported confidence.
type Result struct {
	Answer             string        `json:"answer"`
	Confidence         int           `json:"confidence"`
	UncertaintyReasons []string      `json:"uncertainty_reasons,omitempty"`
	Model              string        `json:"model,omitempty"`
	Duration           time.Duration `json:"duration,omitempty"`
}

// Invoker is the port interface for calling an expert agent.
type Invoker interface {
	// Invoke sends the request to the agent at the given endpoint and waits
	// for a definitive response. Transport failures and timeouts surface as
	// ErrUnavailable; agent-reported failures as *InvocationError.
	Invoke(ctx context.Context, endpoint string, req Request) (*Result, error)
}
