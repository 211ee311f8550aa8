package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/service"
)

// HealthProber checks whether an agent endpoint is reachable.
type HealthProber interface {
	Health(ctx context.Context, endpoint string) bool
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	coordinator *service.Coordinator
	sessions    *service.SessionService
	escalations *service.EscalationService
	table       *routing.Table
	prober      HealthProber
}

// NewHandlers creates the handler set. prober may be nil, in which case
// /health reports configuration only.
func NewHandlers(
	coordinator *service.Coordinator,
	sessions *service.SessionService,
	escalations *service.EscalationService,
	table *routing.Table,
	prober HealthProber,
) *Handlers {
	return &Handlers{
		coordinator: coordinator,
		sessions:    sessions,
		escalations: escalations,
		table:       table,
		prober:      prober,
	}
}

// Ask handles POST /api/v1/ask.
func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.AskRequest](w, r)
	if !ok {
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	resp, err := h.coordinator.Ask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type healthResponse struct {
	Status string            `json:"status"`
	Topics []string          `json:"topics"`
	Agents map[string]string `json:"agents"`
}

// Health handles GET /health. Agents are probed concurrently with a short
// per-probe timeout so a hung agent cannot stall the endpoint.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Topics: h.table.Topics(),
		Agents: make(map[string]string),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, id := range h.table.Agents() {
		agent, err := h.table.ResolveAgent(id)
		if err != nil {
			continue
		}
		if h.prober == nil {
			resp.Agents[id] = "unknown"
			continue
		}
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			state := "ok"
			if !h.prober.Health(probeCtx, agent.Endpoint) {
				state = "unreachable"
			}
			mu.Lock()
			resp.Agents[id] = state
			if state != "ok" {
				resp.Status = "degraded"
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	writeJSON(w, http.StatusOK, resp)
}
