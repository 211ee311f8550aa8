// Package agenthttp implements the agent invocation port over HTTP JSON.
package agenthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/knappson/askgate/internal/port/agentclient"
	"github.com/knappson/askgate/internal/resilience"
)

// Client invokes expert agent services over their HTTP request/response
// contract. One client serves all configured agents; the endpoint comes
// from the routing table per call.
type Client struct {
	httpClient    *http.Client
	healthTimeout time.Duration
	breaker       *resilience.Breaker
}

// NewClient creates an agent client. invokeTimeout bounds the full
// invocation; underlying agents may legitimately take minutes.
func NewClient(invokeTimeout, healthTimeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: invokeTimeout,
		},
		healthTimeout: healthTimeout,
	}
}

// SetBreaker attaches a circuit breaker to all outgoing invocations.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// invokeRequest is the wire form of an agent invocation.
type invokeRequest struct {
	Workflow   string             `json:"workflow"`
	Question   string             `json:"question"`
	Context    map[string]string  `json:"context,omitempty"`
	Parameters map[string]string  `json:"parameters,omitempty"`
	History    []agentclient.Turn `json:"history,omitempty"`
	SessionID  string             `json:"session_id,omitempty"`
	ModelHint  string             `json:"model_hint,omitempty"`
}

// invokeResponse is the wire form of an agent's answer.
type invokeResponse struct {
	Success    bool `json:"success"`
	Result     struct {
		Answer             string   `json:"answer"`
		UncertaintyReasons []string `json:"uncertainty_reasons,omitempty"`
	} `json:"result"`
	Confidence int `json:"confidence"`
	Metadata   struct {
		Model      string `json:"model,omitempty"`
		DurationMs int64  `json:"duration_ms,omitempty"`
	} `json:"metadata"`
	Error      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Invoke sends the request to the agent endpoint and maps the outcome into
// the port's error taxonomy: transport failures, timeouts and 5xx responses
// are agentclient.ErrUnavailable (retryable by the caller); 4xx responses
// and agent-reported errors are *agentclient.InvocationError (permanent).
func (c *Client) Invoke(ctx context.Context, endpoint string, req agentclient.Request) (*agentclient.Result, error) {
	body, err := json.Marshal(invokeRequest{
		Workflow:   req.Workflow,
		Question:   req.Question,
		Context:    req.Context,
		Parameters: req.Parameters,
		History:    req.History,
		SessionID:  req.SessionID,
		ModelHint:  req.ModelHint,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal invoke request: %w", err)
	}

	var result *agentclient.Result
	call := func() error {
		result, err = c.doInvoke(ctx, endpoint, body)
		return err
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%w: %w", agentclient.ErrUnavailable, err)
		}
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) doInvoke(ctx context.Context, endpoint string, body []byte) (*agentclient.Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", agentclient.ErrUnavailable, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", agentclient.ErrUnavailable, err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: %s returned %d", agentclient.ErrUnavailable, endpoint, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, &agentclient.InvocationError{
			Code:    fmt.Sprintf("http_%d", resp.StatusCode),
			Message: truncate(string(respBody), 200),
		}
	}

	var wire invokeResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, &agentclient.InvocationError{
			Code:    "bad_response",
			Message: fmt.Sprintf("unparseable agent response: %v", err),
		}
	}

	if !wire.Success {
		code, message := "agent_error", "agent reported failure without detail"
		if wire.Error != nil {
			code, message = wire.Error.Code, wire.Error.Message
		}
		return nil, &agentclient.InvocationError{Code: code, Message: message}
	}

	duration := time.Since(start)
	if wire.Metadata.DurationMs > 0 {
		duration = time.Duration(wire.Metadata.DurationMs) * time.Millisecond
	}

	return &agentclient.Result{
		Answer:             wire.Result.Answer,
		Confidence:         wire.Confidence,
		UncertaintyReasons: wire.Result.UncertaintyReasons,
		Model:              wire.Metadata.Model,
		Duration:           duration,
	}, nil
}

// Health probes an agent endpoint with a short timeout. Best-effort; used
// only for the health report, never for routing decisions.
func (c *Client) Health(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", http.NoBody)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
