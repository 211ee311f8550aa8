package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/knappson/askgate/internal/adapter/otel"
	"github.com/knappson/askgate/internal/adapter/ws"
	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/database"
)

// Resolution is the outcome of a human response. FinalAnswer carries the
// answer of record; Reroute is set only for add_context and holds the result
// of re-running the question with the human's input.
type Resolution struct {
	Escalation  *escalation.Escalation `json:"escalation"`
	Status      string                 `json:"status"`
	FinalAnswer string                 `json:"final_answer"`
	Reroute     *AskResponse           `json:"reroute,omitempty"`
}

// EscalationService handles the human review side of the escalation flow.
type EscalationService struct {
	store       database.Store
	coordinator *Coordinator
	hub         Broadcaster
	events      EventPublisher
	metrics     *otel.Metrics
}

// NewEscalationService creates an EscalationService. hub, events and
// metrics may be nil.
func NewEscalationService(store database.Store, coordinator *Coordinator, hub Broadcaster, events EventPublisher, metrics *otel.Metrics) *EscalationService {
	return &EscalationService{
		store:       store,
		coordinator: coordinator,
		hub:         hub,
		events:      events,
		metrics:     metrics,
	}
}

// Get returns an escalation by id.
func (s *EscalationService) Get(ctx context.Context, id string) (*escalation.Escalation, error) {
	return s.store.GetEscalation(ctx, id)
}

// List returns escalations, optionally filtered by status.
func (s *EscalationService) List(ctx context.Context, status escalation.Status) ([]escalation.Escalation, error) {
	return s.store.ListEscalations(ctx, status)
}

// SubmitResponse applies a human reviewer's decision. The first submission
// wins: a second response to the same escalation fails with
// escalation.ErrAlreadyResolved and leaves the record unchanged.
//
// confirm and correct are terminal. add_context records the human's input in
// the session and re-runs the question with it; the reroute can itself
// escalate again if the agent is still not confident enough.
func (s *EscalationService) SubmitResponse(ctx context.Context, id string, req escalation.HumanResponseRequest) (*Resolution, error) {
	esc, err := s.store.ResolveEscalation(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.EscalationsResolved.Add(ctx, 1, metric.WithAttributes(
			topicAttr(esc.Topic),
			actionAttr(string(esc.HumanAction)),
		))
	}
	slog.Info("escalation resolved",
		"escalation_id", esc.ID,
		"action", esc.HumanAction,
		"responder", esc.HumanResponder,
	)
	s.emitEvent(ctx, ws.EventEscalationResolved, "escalations.resolved", esc)

	res := &Resolution{
		Escalation:  esc,
		Status:      StatusResolved,
		FinalAnswer: esc.FinalAnswer(),
	}

	switch esc.HumanAction {
	case escalation.ActionConfirm:
		return res, nil
	case escalation.ActionCorrect:
		s.recordHumanTurn(ctx, esc, "correction: "+esc.HumanResponse)
		return res, nil
	case escalation.ActionAddContext:
		return s.reroute(ctx, esc)
	default:
		return nil, fmt.Errorf("%w: %q", escalation.ErrInvalidAction, esc.HumanAction)
	}
}

// reroute re-runs the original question enriched with the human's context.
// If the escalation's session is no longer writable the question runs in a
// fresh session, the enriched context carries everything the agent needs.
func (s *EscalationService) reroute(ctx context.Context, esc *escalation.Escalation) (*Resolution, error) {
	s.recordHumanTurn(ctx, esc, esc.HumanResponse)
	s.emitEvent(ctx, ws.EventEscalationReroute, "escalations.reroute", esc)

	askReq := AskRequest{
		Topic:     esc.Topic,
		Question:  esc.Question,
		Context:   map[string]string{"human_context": esc.HumanResponse},
		SessionID: esc.SessionID,
	}
	resp, err := s.coordinator.Ask(ctx, askReq)
	if err != nil && askReq.SessionID != "" && sessionUnusable(err) {
		askReq.SessionID = ""
		resp, err = s.coordinator.Ask(ctx, askReq)
	}
	if err != nil {
		return nil, fmt.Errorf("reroute escalation %s: %w", esc.ID, err)
	}

	return &Resolution{
		Escalation:  esc,
		Status:      StatusNeedsReroute,
		FinalAnswer: resp.Answer,
		Reroute:     resp,
	}, nil
}

// recordHumanTurn appends the reviewer's input to the session history.
// Best-effort: the escalation record already holds the response, a closed
// or expired session just stops accumulating turns.
func (s *EscalationService) recordHumanTurn(ctx context.Context, esc *escalation.Escalation, content string) {
	if esc.SessionID == "" || content == "" {
		return
	}
	_, err := s.store.AppendMessage(ctx, esc.SessionID, session.AppendRequest{
		Role:    session.RoleHuman,
		Content: content,
		Metadata: map[string]any{
			"escalation_id": esc.ID,
			"action":        string(esc.HumanAction),
			"responder":     esc.HumanResponder,
		},
	})
	if err != nil {
		slog.Warn("record human turn failed",
			"escalation_id", esc.ID,
			"session_id", esc.SessionID,
			"error", err,
		)
	}
}

func (s *EscalationService) emitEvent(ctx context.Context, eventType, subject string, esc *escalation.Escalation) {
	payload := ws.EscalationEvent{
		EscalationID: esc.ID,
		SessionID:    esc.SessionID,
		Topic:        esc.Topic,
		Confidence:   esc.Confidence,
		Status:       string(esc.Status),
		HumanAction:  string(esc.HumanAction),
	}
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, eventType, payload)
	}
	if s.events != nil {
		if err := s.events.Publish(ctx, subject, payload); err != nil {
			slog.Warn("event publish failed", "subject", subject, "error", err)
		}
	}
}

// sessionUnusable reports whether the ask failed because the escalation's
// original session can no longer accept the rerouted question.
func sessionUnusable(err error) bool {
	return errors.Is(err, session.ErrClosed) ||
		errors.Is(err, session.ErrExpired) ||
		errors.Is(err, domain.ErrNotFound)
}

func actionAttr(action string) attribute.KeyValue {
	return attribute.String("action", action)
}
