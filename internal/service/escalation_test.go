package service

import (
	"context"
	"errors"
	"testing"

	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/agentclient"
	"github.com/knappson/askgate/internal/port/database"
)

func newTestEscalationService(t *testing.T, invoker agentclient.Invoker) (*EscalationService, *Coordinator, database.Store) {
	t.Helper()
	coordinator, store := newTestCoordinator(t, invoker, nil)
	svc := NewEscalationService(store, coordinator, nil, nil, nil)
	return svc, coordinator, store
}

// askUntilEscalated runs one low-confidence ask and returns the escalation id
// and session id.
func askUntilEscalated(t *testing.T, coordinator *Coordinator) (escID, sessID string) {
	t.Helper()
	resp, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "architecture",
		Question: "which db?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusPendingHuman {
		t.Fatalf("expected pending_human, got %s", resp.Status)
	}
	return resp.EscalationID, resp.SessionID
}

func TestSubmitResponse_Confirm(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "postgres", Confidence: 40},
	}}
	svc, coordinator, _ := newTestEscalationService(t, invoker)
	escID, _ := askUntilEscalated(t, coordinator)

	res, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionConfirm,
		Responder: "alex",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusResolved {
		t.Errorf("expected resolved, got %s", res.Status)
	}
	if res.FinalAnswer != "postgres" {
		t.Errorf("confirm must keep the tentative answer, got %q", res.FinalAnswer)
	}
	if res.Reroute != nil {
		t.Error("confirm must not reroute")
	}
}

func TestSubmitResponse_CorrectReplacesAnswer(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "postgres", Confidence: 40},
	}}
	svc, coordinator, store := newTestEscalationService(t, invoker)
	escID, sessID := askUntilEscalated(t, coordinator)

	res, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionCorrect,
		Responder: "alex",
		Response:  "mysql",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.FinalAnswer != "mysql" {
		t.Errorf("correct must replace the answer, got %q", res.FinalAnswer)
	}

	// The correction lands in the session history as a human turn.
	msgs, err := store.ListMessages(context.Background(), sessID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := msgs[len(msgs)-1]
	if last.Role != session.RoleHuman {
		t.Errorf("expected human turn, got %s", last.Role)
	}
}

func TestSubmitResponse_AddContextReroutes(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "not sure, maybe postgres", Confidence: 40},
		{Answer: "postgres with read replicas", Confidence: 92},
	}}
	svc, coordinator, _ := newTestEscalationService(t, invoker)
	escID, sessID := askUntilEscalated(t, coordinator)

	res, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionAddContext,
		Responder: "alex",
		Response:  "expect 10k reads/s, writes are rare",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusNeedsReroute {
		t.Errorf("expected needs_reroute, got %s", res.Status)
	}
	if res.Reroute == nil {
		t.Fatal("expected a reroute result")
	}
	if res.Reroute.Status != StatusResolved {
		t.Errorf("expected rerouted ask to resolve, got %s", res.Reroute.Status)
	}
	if res.FinalAnswer != "postgres with read replicas" {
		t.Errorf("unexpected final answer %q", res.FinalAnswer)
	}
	if res.Reroute.SessionID != sessID {
		t.Errorf("reroute should reuse session %s, got %s", sessID, res.Reroute.SessionID)
	}

	// The re-invocation carries the human's input as context.
	reinvoke := invoker.calls[len(invoker.calls)-1]
	if reinvoke.Context["human_context"] != "expect 10k reads/s, writes are rare" {
		t.Errorf("expected human context on reroute, got %v", reinvoke.Context)
	}
}

func TestSubmitResponse_AddContextCanEscalateAgain(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "unsure", Confidence: 30},
		{Answer: "still unsure", Confidence: 45},
	}}
	svc, coordinator, _ := newTestEscalationService(t, invoker)
	escID, _ := askUntilEscalated(t, coordinator)

	res, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionAddContext,
		Responder: "alex",
		Response:  "more detail",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reroute == nil || res.Reroute.Status != StatusPendingHuman {
		t.Fatalf("expected rerouted ask to escalate again, got %+v", res.Reroute)
	}
	if res.Reroute.EscalationID == escID {
		t.Error("re-escalation must create a new record")
	}
}

func TestSubmitResponse_SecondResponderLoses(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "postgres", Confidence: 40},
	}}
	svc, coordinator, _ := newTestEscalationService(t, invoker)
	escID, _ := askUntilEscalated(t, coordinator)

	if _, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionConfirm,
		Responder: "alex",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := svc.SubmitResponse(context.Background(), escID, escalation.HumanResponseRequest{
		Action:    escalation.ActionCorrect,
		Responder: "sam",
		Response:  "mysql",
	})
	if !errors.Is(err, escalation.ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}

	esc, err := svc.Get(context.Background(), escID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if esc.HumanResponder != "alex" {
		t.Errorf("first decision must win, got responder %q", esc.HumanResponder)
	}
}
