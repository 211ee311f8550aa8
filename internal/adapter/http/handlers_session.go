package http

import (
	"net/http"

	"github.com/knappson/askgate/internal/domain/session"
)

// CreateSession handles POST /api/v1/sessions.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[session.CreateRequest](w, r)
	if !ok {
		return
	}
	sess, err := h.sessions.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /api/v1/sessions. The optional status query
// parameter filters by lifecycle state.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	status := session.Status(r.URL.Query().Get("status"))
	switch status {
	case "", session.StatusActive, session.StatusClosed, session.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	sessions, err := h.sessions.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err, "sessions not found")
		return
	}
	if sessions == nil {
		sessions = []session.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type sessionDetail struct {
	*session.Session
	Messages []session.Message `json:"messages"`
}

// GetSession handles GET /api/v1/sessions/{id}. The response includes the
// full message history.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	sess, msgs, err := h.sessions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	if msgs == nil {
		msgs = []session.Message{}
	}
	writeJSON(w, http.StatusOK, sessionDetail{Session: sess, Messages: msgs})
}

// CloseSession handles POST /api/v1/sessions/{id}/close.
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	sess, err := h.sessions.Close(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
