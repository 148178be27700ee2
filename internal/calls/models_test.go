package calls

import (
	"encoding/json"
	"testing"
)

func TestCall_IsParticipant(t *testing.T) {
	c := Call{DoctorID: "doc", PatientID: "pat"}
	if !c.IsParticipant("doc") || !c.IsParticipant("pat") {
		t.Fatalf("expected doctor and patient to be participants")
	}
	if c.IsParticipant("someone") || c.IsParticipant("") {
		t.Fatalf("unexpected participant")
	}
}

func TestCall_JSONHidesStorageKey(t *testing.T) {
	b, err := json.Marshal(Call{ID: "row-1", CallID: "call-1", Status: StatusInitiated})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := got["id"]; ok {
		t.Fatalf("storage key leaked: %s", b)
	}
	if got["callId"] != "call-1" || got["status"] != "initiated" {
		t.Fatalf("unexpected payload: %s", b)
	}
	if _, ok := got["startTime"]; ok {
		t.Fatalf("unset start time should be omitted: %s", b)
	}
}
