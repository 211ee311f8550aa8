package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "askgate"

// Metrics holds all askgate metric instruments.
type Metrics struct {
	AsksStarted          metric.Int64Counter
	AnswersAccepted      metric.Int64Counter
	AnswersEscalated     metric.Int64Counter
	EscalationsResolved  metric.Int64Counter
	AgentInvokeDuration  metric.Float64Histogram
	AnswerConfidence     metric.Int64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AsksStarted, err = meter.Int64Counter("askgate.asks.started",
		metric.WithDescription("Number of ask requests started"))
	if err != nil {
		return nil, err
	}

	m.AnswersAccepted, err = meter.Int64Counter("askgate.answers.accepted",
		metric.WithDescription("Number of agent answers accepted automatically"))
	if err != nil {
		return nil, err
	}

	m.AnswersEscalated, err = meter.Int64Counter("askgate.answers.escalated",
		metric.WithDescription("Number of agent answers escalated to a human"))
	if err != nil {
		return nil, err
	}

	m.EscalationsResolved, err = meter.Int64Counter("askgate.escalations.resolved",
		metric.WithDescription("Number of escalations resolved by a human"))
	if err != nil {
		return nil, err
	}

	m.AgentInvokeDuration, err = meter.Float64Histogram("askgate.agent.invoke_duration_seconds",
		metric.WithDescription("Agent invocation duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.AnswerConfidence, err = meter.Int64Histogram("askgate.answer.confidence",
		metric.WithDescription("Self-reported confidence of agent answers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
