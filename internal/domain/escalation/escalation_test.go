package escalation

import (
	"errors"
	"testing"
)

func TestCreateRequest_Validate(t *testing.T) {
	t.Parallel()

	valid := CreateRequest{
		Topic:           "architecture",
		Question:        "which db?",
		TentativeAnswer: "postgres",
		Confidence:      70,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*CreateRequest)
		wantErr error
	}{
		{"missing topic", func(r *CreateRequest) { r.Topic = "" }, ErrTopicRequired},
		{"missing question", func(r *CreateRequest) { r.Question = "" }, ErrQuestionRequired},
		{"confidence below range", func(r *CreateRequest) { r.Confidence = -1 }, ErrConfidenceRange},
		{"confidence above range", func(r *CreateRequest) { r.Confidence = 101 }, ErrConfidenceRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := valid
			tt.mutate(&req)
			if err := req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHumanResponseRequest_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     HumanResponseRequest
		wantErr error
	}{
		{"confirm", HumanResponseRequest{Action: ActionConfirm, Responder: "alex"}, nil},
		{"correct with response", HumanResponseRequest{Action: ActionCorrect, Responder: "alex", Response: "use mysql"}, nil},
		{"add_context", HumanResponseRequest{Action: ActionAddContext, Responder: "alex", Response: "we run on GKE"}, nil},
		{"correct without response", HumanResponseRequest{Action: ActionCorrect, Responder: "alex"}, ErrMissingResponse},
		{"unknown action", HumanResponseRequest{Action: "approve", Responder: "alex"}, ErrInvalidAction},
		{"missing responder", HumanResponseRequest{Action: ActionConfirm}, ErrResponderRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.req.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFinalAnswer(t *testing.T) {
	t.Parallel()

	e := Escalation{TentativeAnswer: "postgres", HumanAction: ActionConfirm}
	if got := e.FinalAnswer(); got != "postgres" {
		t.Errorf("confirm should keep tentative answer, got %q", got)
	}

	e = Escalation{TentativeAnswer: "postgres", HumanAction: ActionCorrect, HumanResponse: "mysql"}
	if got := e.FinalAnswer(); got != "mysql" {
		t.Errorf("correct should replace the answer, got %q", got)
	}
}
