package main

import (
	"errors"
	"testing"
)

func TestNewSagaState(t *testing.T) {
	state := NewSagaState()

	if state.ID == "" {
		t.Error("Expected saga ID to be set")
	}
	if state.StartedAt.IsZero() {
		t.Error("Expected StartedAt to be set")
	}
	if len(state.Steps) != len(sagaSteps) {
		t.Errorf("Expected %d steps, got %d", len(sagaSteps), len(state.Steps))
	}
	for _, step := range sagaSteps {
		if state.Steps[step] != StepPending {
			t.Errorf("Expected step %s to start as %s, got %s", step, StepPending, state.Steps[step])
		}
	}
	if state.HasSideEffects() {
		t.Error("New saga must not report side effects")
	}
}

func TestSagaStateTransitions(t *testing.T) {
	state := NewSagaState()

	state.MarkDone(StepValidateInput)
	if state.Steps[StepValidateInput] != StepDone {
		t.Errorf("Expected %s, got %s", StepDone, state.Steps[StepValidateInput])
	}

	state.MarkFailed(StepResolveLogin)
	if state.Steps[StepResolveLogin] != StepFailed {
		t.Errorf("Expected %s, got %s", StepFailed, state.Steps[StepResolveLogin])
	}
	if state.FailedStep != StepResolveLogin {
		t.Errorf("Expected first failure %s, got %s", StepResolveLogin, state.FailedStep)
	}

	// o primeiro passo que falhou é preservado
	state.MarkFailed(StepCreateTicket)
	if state.FailedStep != StepResolveLogin {
		t.Errorf("Expected first failure to stay %s, got %s", StepResolveLogin, state.FailedStep)
	}
}

func TestSagaStateHasSideEffects(t *testing.T) {
	state := NewSagaState()

	state.Protocols = append(state.Protocols, "2025083100001")
	if !state.HasSideEffects() {
		t.Error("Generated protocol counts as a side effect")
	}

	state = NewSagaState()
	state.TicketID = "900"
	if !state.HasSideEffects() {
		t.Error("Created ticket counts as a side effect")
	}
}

func TestTransferRequestValidate(t *testing.T) {
	cases := []struct {
		name       string
		subscriber string
		contract   string
		wantErr    bool
	}{
		{"both present", "123", "456", false},
		{"missing subscriber", "", "456", true},
		{"missing contract", "123", "", true},
		{"missing both", "", "", true},
	}

	for _, tc := range cases {
		req := TransferRequest{SubscriberID: tc.subscriber, ContractID: tc.contract}
		err := req.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if tc.wantErr {
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("%s: expected *ValidationError, got %T", tc.name, err)
			}
		}
	}
}

func TestPartialSagaFailureUnwrap(t *testing.T) {
	cause := &UpstreamError{Service: "ixc/su_oss_chamado", Status: 500, Body: "boom"}
	failure := &PartialSagaFailure{
		Step:            StepCreateDeactivationOrder,
		TicketID:        "900",
		TransferOrderID: "911",
		Protocols:       []string{"p1", "p2"},
		Err:             cause,
	}

	var upstream *UpstreamError
	if !errors.As(failure, &upstream) {
		t.Error("Expected PartialSagaFailure to unwrap to the step error")
	}
	if failure.Error() == "" {
		t.Error("Expected a message naming the failed step and created ids")
	}
}
