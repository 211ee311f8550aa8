// Package http provides the HTTP API adapter.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/agentclient"
)

const bodyLimit = 1 << 20 // 1 MiB

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

// urlParam is a short alias for chi.URLParam.
func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError maps domain errors to HTTP status codes. Unknown topics
// and agents are 404 with the valid alternatives in the message; terminal
// state violations are 409; agent-side failures are 502/504.
func writeDomainError(w http.ResponseWriter, err error, fallbackMsg string) {
	var (
		unknownTopic  *routing.UnknownTopicError
		unknownAgent  *routing.UnknownAgentError
		invocationErr *agentclient.InvocationError
		badConfidence *routing.InvalidConfidenceError
	)
	switch {
	case errors.As(err, &unknownTopic):
		writeError(w, http.StatusNotFound, unknownTopic.Error())
	case errors.As(err, &unknownAgent):
		writeError(w, http.StatusNotFound, unknownAgent.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, fallbackMsg)
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrExpired):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, escalation.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, "escalation is already resolved")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "resource was modified by another request")
	case errors.Is(err, domain.ErrValidation):
		msg := strings.TrimPrefix(err.Error(), domain.ErrValidation.Error()+": ")
		writeError(w, http.StatusBadRequest, msg)
	case isValidationSentinel(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &badConfidence):
		writeError(w, http.StatusBadGateway, badConfidence.Error())
	case errors.As(err, &invocationErr):
		writeError(w, http.StatusBadGateway, invocationErr.Error())
	case errors.Is(err, agentclient.ErrUnavailable):
		writeError(w, http.StatusGatewayTimeout, "agent unavailable")
	default:
		slog.Error("unhandled domain error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// isValidationSentinel reports whether err is one of the request-shape
// sentinels from the domain packages.
func isValidationSentinel(err error) bool {
	for _, sentinel := range []error{
		session.ErrAgentRequired,
		session.ErrEmptyContent,
		session.ErrInvalidRole,
		escalation.ErrInvalidAction,
		escalation.ErrMissingResponse,
		escalation.ErrResponderRequired,
		escalation.ErrConfidenceRange,
		escalation.ErrQuestionRequired,
		escalation.ErrTopicRequired,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
