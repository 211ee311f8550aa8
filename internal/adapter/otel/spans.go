package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "askgate"

// StartAskSpan starts a span for one end-to-end ask flow.
func StartAskSpan(ctx context.Context, topic, agentID, sessionID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "ask",
		trace.WithAttributes(
			attribute.String("ask.topic", topic),
			attribute.String("ask.agent_id", agentID),
			attribute.String("ask.session_id", sessionID),
		),
	)
}

// StartInvokeSpan starts a span for the agent invocation within an ask.
func StartInvokeSpan(ctx context.Context, agentID, endpoint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "agent.invoke",
		trace.WithAttributes(
			attribute.String("agent.id", agentID),
			attribute.String("agent.endpoint", endpoint),
		),
	)
}

// StartNotifySpan starts a span for the best-effort review notification.
func StartNotifySpan(ctx context.Context, escalationID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "escalation.notify",
		trace.WithAttributes(
			attribute.String("escalation.id", escalationID),
		),
	)
}
