package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/knappson/askgate/internal/adapter/memory"
	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/agentclient"
	"github.com/knappson/askgate/internal/port/database"
	"github.com/knappson/askgate/internal/port/notifier"
)

// fakeInvoker returns canned results keyed by nothing: the next queued
// result or error is popped per call.
type fakeInvoker struct {
	results []*agentclient.Result
	err     error
	calls   []agentclient.Request
}

func (f *fakeInvoker) Invoke(_ context.Context, _ string, req agentclient.Request) (*agentclient.Result, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return nil, errors.New("fakeInvoker: no result queued")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

type fakeNotifier struct {
	sent []notifier.Notification
	ref  string
	err  error
}

func (f *fakeNotifier) Name() string { return "fake" }
func (f *fakeNotifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{DeliveryRef: f.ref != ""}
}
func (f *fakeNotifier) Send(_ context.Context, n notifier.Notification) (string, error) {
	f.sent = append(f.sent, n)
	return f.ref, f.err
}

func testTable(t *testing.T) *routing.Table {
	t.Helper()
	table, err := routing.NewTable(routing.DefaultThreshold,
		[]routing.Entry{
			{Topic: "architecture", AgentID: "architect"},
			{Topic: "security", AgentID: "architect", Threshold: 95},
		},
		[]routing.Agent{{ID: "architect", Endpoint: "http://architect:8080"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return table
}

func newTestCoordinator(t *testing.T, invoker agentclient.Invoker, sink *fakeNotifier) (*Coordinator, database.Store) {
	t.Helper()
	store := memory.NewStore(session.DefaultTTL)
	var notify *NotificationService
	if sink != nil {
		notify = NewNotificationService([]notifier.Notifier{sink}, nil, time.Hour, time.Second)
	}
	return NewCoordinator(testTable(t), store, invoker, notify, nil, nil, nil, time.Minute), store
}

func TestAsk_ConfidentAnswerAccepted(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "use postgres", Confidence: 85, Model: "gpt-large"},
	}}
	sink := &fakeNotifier{}
	coordinator, store := newTestCoordinator(t, invoker, sink)

	resp, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "architecture",
		Question: "which db?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusResolved {
		t.Errorf("expected resolved, got %s", resp.Status)
	}
	if resp.Answer != "use postgres" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if resp.ThresholdUsed != routing.DefaultThreshold {
		t.Errorf("expected threshold %d, got %d", routing.DefaultThreshold, resp.ThresholdUsed)
	}
	if resp.EscalationID != "" {
		t.Errorf("accepted answer must not escalate, got %s", resp.EscalationID)
	}
	if len(sink.sent) != 0 {
		t.Errorf("accepted answer must not notify, got %d notifications", len(sink.sent))
	}

	// Both turns are on record with confidence metadata on the answer.
	msgs, err := store.ListMessages(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != session.RoleUser || msgs[1].Role != session.RoleAssistant {
		t.Errorf("unexpected roles %s, %s", msgs[0].Role, msgs[1].Role)
	}
	if got := msgs[1].Metadata["confidence"]; got != 85 {
		t.Errorf("expected confidence metadata 85, got %v", got)
	}
}

func TestAsk_LowConfidenceEscalates(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "probably rotate them", Confidence: 85, UncertaintyReasons: []string{"no key inventory"}},
	}}
	sink := &fakeNotifier{ref: "https://example.com/review/1"}
	coordinator, store := newTestCoordinator(t, invoker, sink)

	// 85 clears the default threshold but not security's override of 95.
	resp, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "security",
		Question: "rotate keys?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != StatusPendingHuman {
		t.Errorf("expected pending_human, got %s", resp.Status)
	}
	if resp.EscalationID == "" {
		t.Fatal("expected an escalation id")
	}
	if resp.ThresholdUsed != 95 {
		t.Errorf("expected threshold 95, got %d", resp.ThresholdUsed)
	}

	esc, err := store.GetEscalation(context.Background(), resp.EscalationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if esc.Status != escalation.StatusPending {
		t.Errorf("expected pending escalation, got %s", esc.Status)
	}
	if esc.TentativeAnswer != "probably rotate them" {
		t.Errorf("unexpected tentative answer %q", esc.TentativeAnswer)
	}
	if esc.NotificationRef != "https://example.com/review/1" {
		t.Errorf("expected delivery ref on record, got %q", esc.NotificationRef)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sink.sent))
	}

	// The tentative turns are still recorded.
	msgs, err := store.ListMessages(context.Background(), resp.SessionID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("expected 2 messages, got %d", len(msgs))
	}
}

func TestAsk_NotificationFailureIsSwallowed(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "maybe", Confidence: 10},
	}}
	sink := &fakeNotifier{err: errors.New("webhook down")}
	coordinator, store := newTestCoordinator(t, invoker, sink)

	resp, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "architecture",
		Question: "which db?",
	})
	if err != nil {
		t.Fatalf("notification failure must not fail the ask: %v", err)
	}
	if resp.Status != StatusPendingHuman {
		t.Errorf("expected pending_human, got %s", resp.Status)
	}

	// The escalation record exists despite the failed delivery.
	esc, err := store.GetEscalation(context.Background(), resp.EscalationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if esc.NotificationRef != "" {
		t.Errorf("expected no delivery ref, got %q", esc.NotificationRef)
	}
}

func TestAsk_AgentUnavailableRecordsNothing(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{err: agentclient.ErrUnavailable}
	coordinator, store := newTestCoordinator(t, invoker, nil)

	sess, err := store.CreateSession(context.Background(), session.CreateRequest{AgentID: "architect"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = coordinator.Ask(context.Background(), AskRequest{
		Topic:     "architecture",
		Question:  "which db?",
		SessionID: sess.ID,
	})
	if !errors.Is(err, agentclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	msgs, err := store.ListMessages(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("failed invocation must leave no messages, got %d", len(msgs))
	}
}

func TestAsk_ExistingSessionCarriesHistory(t *testing.T) {
	t.Parallel()
	invoker := &fakeInvoker{results: []*agentclient.Result{
		{Answer: "postgres", Confidence: 90},
		{Answer: "use pgbouncer", Confidence: 90},
	}}
	coordinator, _ := newTestCoordinator(t, invoker, nil)

	first, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "architecture",
		Question: "which db?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = coordinator.Ask(context.Background(), AskRequest{
		Topic:     "architecture",
		Question:  "and connection pooling?",
		SessionID: first.SessionID,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(invoker.calls) != 2 {
		t.Fatalf("expected 2 invocations, got %d", len(invoker.calls))
	}
	second := invoker.calls[1]
	if len(second.History) != 2 {
		t.Fatalf("expected 2 history turns, got %d", len(second.History))
	}
	if second.History[0].Content != "which db?" || second.History[1].Content != "postgres" {
		t.Errorf("unexpected history %+v", second.History)
	}
}

func TestAsk_UnknownTopic(t *testing.T) {
	t.Parallel()
	coordinator, _ := newTestCoordinator(t, &fakeInvoker{}, nil)

	_, err := coordinator.Ask(context.Background(), AskRequest{
		Topic:    "databases",
		Question: "which db?",
	})
	var unknown *routing.UnknownTopicError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownTopicError, got %v", err)
	}
}

func TestAsk_ClosedSessionRejected(t *testing.T) {
	t.Parallel()
	coordinator, store := newTestCoordinator(t, &fakeInvoker{}, nil)

	sess, err := store.CreateSession(context.Background(), session.CreateRequest{AgentID: "architect"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.CloseSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = coordinator.Ask(context.Background(), AskRequest{
		Topic:     "architecture",
		Question:  "which db?",
		SessionID: sess.ID,
	})
	if !errors.Is(err, session.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
