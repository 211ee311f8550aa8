package http

import (
	"net/http"

	"github.com/knappson/askgate/internal/domain/escalation"
)

// ListEscalations handles GET /api/v1/escalations. The optional status
// query parameter filters by lifecycle state.
func (h *Handlers) ListEscalations(w http.ResponseWriter, r *http.Request) {
	status := escalation.Status(r.URL.Query().Get("status"))
	switch status {
	case "", escalation.StatusPending, escalation.StatusResolved, escalation.StatusExpired:
	default:
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	escalations, err := h.escalations.List(r.Context(), status)
	if err != nil {
		writeDomainError(w, err, "escalations not found")
		return
	}
	if escalations == nil {
		escalations = []escalation.Escalation{}
	}
	writeJSON(w, http.StatusOK, escalations)
}

// GetEscalation handles GET /api/v1/escalations/{id}.
func (h *Handlers) GetEscalation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	esc, err := h.escalations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, esc)
}

// RespondEscalation handles POST /api/v1/escalations/{id}/response.
func (h *Handlers) RespondEscalation(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	req, ok := readJSON[escalation.HumanResponseRequest](w, r)
	if !ok {
		return
	}

	res, err := h.escalations.SubmitResponse(r.Context(), id, req)
	if err != nil {
		writeDomainError(w, err, "escalation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
