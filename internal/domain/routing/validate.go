package routing

import "fmt"

// Verdict is the outcome of a confidence check.
type Verdict struct {
	Accepted         bool `json:"accepted"`
	ThresholdUsed    int  `json:"threshold_used"`
	EscalationNeeded bool `json:"escalation_needed"`
}

// InvalidConfidenceError is returned when a confidence value is outside [0, 100].
// An out-of-range confidence is a caller contract violation, not a low score.
type InvalidConfidenceError struct {
	Confidence int
}

func (e *InvalidConfidenceError) Error() string {
	return fmt.Sprintf("confidence %d outside valid range [0, 100]", e.Confidence)
}

// Validator decides whether an agent answer is confident enough to accept.
// It is a pure decision function: it creates no escalation and has no side
// effects, so the same logic serves both topic-based asks and direct invokes.
type Validator struct {
	table *Table
}

// NewValidator creates a Validator over the given routing table.
func NewValidator(t *Table) *Validator {
	return &Validator{table: t}
}

// Validate checks confidence against the topic's effective threshold.
// A tie is accepted: a threshold of 80 accepts exactly 80.
func (v *Validator) Validate(confidence int, topic string) (Verdict, error) {
	if confidence < 0 || confidence > 100 {
		return Verdict{}, &InvalidConfidenceError{Confidence: confidence}
	}

	route, err := v.table.ResolveTopic(topic)
	if err != nil {
		return Verdict{}, err
	}

	accepted := confidence >= route.Threshold
	return Verdict{
		Accepted:         accepted,
		ThresholdUsed:    route.Threshold,
		EscalationNeeded: !accepted,
	}, nil
}
