package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/knappson/askgate/internal/adapter/otel"
	"github.com/knappson/askgate/internal/domain"
	"github.com/knappson/askgate/internal/adapter/ws"
	"github.com/knappson/askgate/internal/domain/escalation"
	"github.com/knappson/askgate/internal/domain/routing"
	"github.com/knappson/askgate/internal/domain/session"
	"github.com/knappson/askgate/internal/port/agentclient"
	"github.com/knappson/askgate/internal/port/database"
)

// Ask outcome statuses.
const (
	StatusResolved     = "resolved"
	StatusPendingHuman = "pending_human"
	StatusNeedsReroute = "needs_reroute"
)

// AskRequest is a question routed by topic to an expert agent.
type AskRequest struct {
	Topic     string            `json:"topic"`
	Question  string            `json:"question"`
	Context   map[string]string `json:"context,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// AskResponse is the outcome of one ask. When Status is pending_human the
// answer is tentative and EscalationID identifies the open review.
type AskResponse struct {
	Status        string `json:"status"`
	Answer        string `json:"answer"`
	Confidence    int    `json:"confidence"`
	ThresholdUsed int    `json:"threshold_used"`
	AgentID       string `json:"agent_id"`
	Model         string `json:"model,omitempty"`
	SessionID     string `json:"session_id"`
	EscalationID  string `json:"escalation_id,omitempty"`
}

// Coordinator runs the ask flow: resolve the topic to an agent, invoke it,
// gate the answer on the topic's confidence threshold, and either accept or
// escalate to a human.
type Coordinator struct {
	table     *routing.Table
	validator *routing.Validator
	store     database.Store
	agents    agentclient.Invoker
	notify    *NotificationService
	hub       Broadcaster
	events    EventPublisher
	metrics   *otel.Metrics

	invokeTimeout time.Duration
}

// NewCoordinator creates a Coordinator. notify, hub, events and metrics may
// be nil.
func NewCoordinator(
	table *routing.Table,
	store database.Store,
	agents agentclient.Invoker,
	notify *NotificationService,
	hub Broadcaster,
	events EventPublisher,
	metrics *otel.Metrics,
	invokeTimeout time.Duration,
) *Coordinator {
	return &Coordinator{
		table:         table,
		validator:     routing.NewValidator(table),
		store:         store,
		agents:        agents,
		notify:        notify,
		hub:           hub,
		events:        events,
		metrics:       metrics,
		invokeTimeout: invokeTimeout,
	}
}

// Ask routes the question to the topic's agent and returns either an
// accepted answer or a pending escalation. Messages are recorded only after
// the agent produced a definitive response, so a failed invocation leaves
// the session history untouched.
func (c *Coordinator) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	if req.Question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}

	route, err := c.table.ResolveTopic(req.Topic)
	if err != nil {
		return nil, err
	}
	agent, err := c.table.ResolveAgent(route.AgentID)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.StartAskSpan(ctx, route.Topic, route.AgentID, req.SessionID)
	defer span.End()
	if c.metrics != nil {
		c.metrics.AsksStarted.Add(ctx, 1, metric.WithAttributes(topicAttr(route.Topic)))
	}

	sess, history, err := c.sessionFor(ctx, req, route)
	if err != nil {
		return nil, err
	}

	result, err := c.invoke(ctx, agent, route, req, sess, history)
	if err != nil {
		return nil, err
	}

	verdict, err := c.validator.Validate(result.Confidence, route.Topic)
	if err != nil {
		return nil, err
	}

	if err := c.recordTurn(ctx, sess.ID, req.Question, result, verdict); err != nil {
		return nil, err
	}

	resp := &AskResponse{
		Answer:        result.Answer,
		Confidence:    result.Confidence,
		ThresholdUsed: verdict.ThresholdUsed,
		AgentID:       route.AgentID,
		Model:         result.Model,
		SessionID:     sess.ID,
	}

	if verdict.Accepted {
		resp.Status = StatusResolved
		if c.metrics != nil {
			c.metrics.AnswersAccepted.Add(ctx, 1, metric.WithAttributes(topicAttr(route.Topic)))
		}
		slog.Info("answer accepted",
			"topic", route.Topic,
			"agent_id", route.AgentID,
			"confidence", result.Confidence,
			"threshold", verdict.ThresholdUsed,
		)
		return resp, nil
	}

	esc, err := c.escalate(ctx, sess.ID, route, req.Question, result)
	if err != nil {
		return nil, err
	}
	resp.Status = StatusPendingHuman
	resp.EscalationID = esc.ID
	return resp, nil
}

// sessionFor resolves or creates the session for this ask and loads prior
// turns. An explicit session must still be writable and scoped to the
// routed agent.
func (c *Coordinator) sessionFor(ctx context.Context, req AskRequest, route routing.Route) (*session.Session, []session.Message, error) {
	if req.SessionID == "" {
		sess, err := c.store.CreateSession(ctx, session.CreateRequest{AgentID: route.AgentID})
		if err != nil {
			return nil, nil, fmt.Errorf("create session: %w", err)
		}
		return sess, nil, nil
	}

	sess, err := c.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.Writable(); err != nil {
		return nil, nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	if sess.AgentID != route.AgentID {
		return nil, nil, fmt.Errorf("%w: session %s is scoped to agent %q, topic %q routes to %q",
			domain.ErrValidation, sess.ID, sess.AgentID, route.Topic, route.AgentID)
	}

	history, err := c.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	return sess, history, nil
}

func (c *Coordinator) invoke(ctx context.Context, agent routing.Agent, route routing.Route, req AskRequest, sess *session.Session, history []session.Message) (*agentclient.Result, error) {
	invokeReq := agentclient.Request{
		Workflow:  route.Topic,
		Question:  req.Question,
		Context:   req.Context,
		History:   toTurns(history),
		SessionID: sess.ID,
		ModelHint: route.ModelHint,
	}

	invokeCtx, cancel := context.WithTimeout(ctx, c.invokeTimeout)
	defer cancel()
	invokeCtx, span := otel.StartInvokeSpan(invokeCtx, agent.ID, agent.Endpoint)
	defer span.End()

	start := time.Now()
	result, err := c.agents.Invoke(invokeCtx, agent.Endpoint, invokeReq)
	if c.metrics != nil {
		c.metrics.AgentInvokeDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(agentAttr(agent.ID)))
	}
	if err != nil {
		slog.Warn("agent invocation failed",
			"agent_id", agent.ID,
			"topic", route.Topic,
			"error", err,
		)
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.AnswerConfidence.Record(ctx, int64(result.Confidence),
			metric.WithAttributes(topicAttr(route.Topic)))
	}
	return result, nil
}

// recordTurn appends the question and the agent's answer as one user turn
// and one assistant turn.
func (c *Coordinator) recordTurn(ctx context.Context, sessionID, question string, result *agentclient.Result, verdict routing.Verdict) error {
	if _, err := c.store.AppendMessage(ctx, sessionID, session.AppendRequest{
		Role:    session.RoleUser,
		Content: question,
	}); err != nil {
		return fmt.Errorf("record question: %w", err)
	}

	meta := map[string]any{
		"confidence": result.Confidence,
		"threshold":  verdict.ThresholdUsed,
		"accepted":   verdict.Accepted,
	}
	if result.Model != "" {
		meta["model"] = result.Model
	}
	if result.Duration > 0 {
		meta["duration_ms"] = result.Duration.Milliseconds()
	}
	if _, err := c.store.AppendMessage(ctx, sessionID, session.AppendRequest{
		Role:     session.RoleAssistant,
		Content:  result.Answer,
		Metadata: meta,
	}); err != nil {
		return fmt.Errorf("record answer: %w", err)
	}
	return nil
}

// escalate creates the durable escalation record, then notifies reviewers
// best-effort.
func (c *Coordinator) escalate(ctx context.Context, sessionID string, route routing.Route, question string, result *agentclient.Result) (*escalation.Escalation, error) {
	esc, err := c.store.CreateEscalation(ctx, escalation.CreateRequest{
		SessionID:          sessionID,
		Topic:              route.Topic,
		Question:           question,
		TentativeAnswer:    result.Answer,
		Confidence:         result.Confidence,
		UncertaintyReasons: result.UncertaintyReasons,
	})
	if err != nil {
		return nil, fmt.Errorf("create escalation: %w", err)
	}
	if c.metrics != nil {
		c.metrics.AnswersEscalated.Add(ctx, 1, metric.WithAttributes(topicAttr(route.Topic)))
	}
	slog.Info("answer escalated",
		"escalation_id", esc.ID,
		"topic", route.Topic,
		"confidence", result.Confidence,
		"threshold", route.Threshold,
	)

	c.emitEscalationEvent(ctx, ws.EventEscalationCreated, "escalations.created", esc)

	if c.notify != nil {
		notifyCtx, span := otel.StartNotifySpan(ctx, esc.ID)
		ref := c.notify.Notify(notifyCtx, reviewNotification(esc))
		span.End()
		if ref != "" {
			if err := c.store.SetNotificationRef(ctx, esc.ID, ref); err != nil {
				slog.Warn("record notification ref failed", "escalation_id", esc.ID, "error", err)
			}
		}
	}
	return esc, nil
}

func (c *Coordinator) emitEscalationEvent(ctx context.Context, eventType, subject string, esc *escalation.Escalation) {
	payload := ws.EscalationEvent{
		EscalationID: esc.ID,
		SessionID:    esc.SessionID,
		Topic:        esc.Topic,
		Confidence:   esc.Confidence,
		Status:       string(esc.Status),
		HumanAction:  string(esc.HumanAction),
	}
	if c.hub != nil {
		c.hub.BroadcastEvent(ctx, eventType, payload)
	}
	if c.events != nil {
		if err := c.events.Publish(ctx, subject, payload); err != nil {
			slog.Warn("event publish failed", "subject", subject, "error", err)
		}
	}
}

func topicAttr(topic string) attribute.KeyValue {
	return attribute.String("topic", topic)
}

func agentAttr(agentID string) attribute.KeyValue {
	return attribute.String("agent_id", agentID)
}

func toTurns(history []session.Message) []agentclient.Turn {
	if len(history) == 0 {
		return nil
	}
	turns := make([]agentclient.Turn, len(history))
	for i, m := range history {
		turns[i] = agentclient.Turn{Role: string(m.Role), Content: m.Content}
	}
	return turns
}
