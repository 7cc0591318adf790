package models

import "testing"

func TestIsValidFlowKind(t *testing.T) {
	for _, k := range []FlowKind{FlowKindOrder, FlowKindSchedule, FlowKindMessage} {
		if !IsValidFlowKind(k) {
			t.Errorf("expected %s to be a valid flow kind", k)
		}
	}
	if IsValidFlowKind("payment") {
		t.Error("expected unknown flow kind to be invalid")
	}
}

func TestIsValidStatusForKind(t *testing.T) {
	if !IsValidStatusForKind(FlowKindOrder, StatusProcessing) {
		t.Error("Processing should be valid for orders")
	}
	if IsValidStatusForKind(FlowKindMessage, StatusProcessing) {
		t.Error("Processing should not be valid for messages")
	}
	if !IsValidStatusForKind(FlowKindSchedule, StatusConfirmed) {
		t.Error("Confirmed should be valid for schedules")
	}
	if IsValidStatusForKind(FlowKindOrder, StatusConfirmed) {
		t.Error("Confirmed should not be valid for orders")
	}
	if !IsValidStatusForKind(FlowKindMessage, StatusResponded) {
		t.Error("Responded should be valid for messages")
	}
}

func TestRecordInterface(t *testing.T) {
	var r Record = &Order{ID: 7}
	if r.RecordKind() != FlowKindOrder {
		t.Errorf("expected order kind, got %s", r.RecordKind())
	}
	if r.RecordID() != 7 {
		t.Errorf("expected id 7, got %d", r.RecordID())
	}

	r = &Schedule{ID: 3}
	if r.RecordKind() != FlowKindSchedule {
		t.Errorf("expected schedule kind, got %s", r.RecordKind())
	}

	r = &Message{}
	if r.RecordID() != 0 {
		t.Errorf("expected zero id before save, got %d", r.RecordID())
	}
}

func TestAPIResponseBuilder(t *testing.T) {
	resp := NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage("done").
		WithResult(map[string]int64{"id": 1}).
		Build()
	if resp.Status != string(APIStatusOK) {
		t.Errorf("expected status ok, got %s", resp.Status)
	}
	if resp.Message != "done" {
		t.Errorf("expected message 'done', got %q", resp.Message)
	}

	errResp := Error("boom")
	if errResp.Status != string(APIStatusError) || errResp.Message != "boom" {
		t.Errorf("unexpected error response: %+v", errResp)
	}
}
