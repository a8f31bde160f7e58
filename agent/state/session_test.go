package state

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func TestUpsertToolResultReplacesByID(t *testing.T) {
	t.Parallel()

	st := NewConversationState("s1", testNow)
	st.UpsertToolResult(ToolResult{ID: "weather-2025-10-11", ToolName: ActionWeather, Content: "first"})
	st.UpsertToolResult(ToolResult{ID: "plan-update", ToolName: ActionPlanner, Content: "plan"})
	st.UpsertToolResult(ToolResult{ID: "weather-2025-10-11", ToolName: ActionWeather, Content: "second"})

	if len(st.ToolResults) != 2 {
		t.Fatalf("expected 2 results, got %d", len(st.ToolResults))
	}
	if st.ToolResults[0].Content != "second" {
		t.Fatalf("expected replacement in place, got %q", st.ToolResults[0].Content)
	}
	if st.ToolResults[1].ID != "plan-update" {
		t.Fatalf("expected stable ordering, got %q second", st.ToolResults[1].ID)
	}
}

func TestRecomputeMissingFollowsPlan(t *testing.T) {
	t.Parallel()

	st := NewConversationState("s1", testNow)
	st.RecomputeMissing()
	if len(st.Missing) != len(RequiredPlanFields) {
		t.Fatalf("fresh plan should miss every required field, got %v", st.Missing)
	}

	st.Plan.Date = "2025-10-11"
	st.Plan.Participants = 3
	st.Plan.Budget = "200000"
	st.Plan.Gear = "on-site rental"
	st.RecomputeMissing()

	want := []string{FieldFishingType, FieldTransport}
	if len(st.Missing) != len(want) {
		t.Fatalf("missing = %v, want %v", st.Missing, want)
	}
	for i, field := range want {
		if st.Missing[i] != field {
			t.Fatalf("missing[%d] = %q, want %q", i, st.Missing[i], field)
		}
	}

	st.Plan.FishingType = "boat"
	st.Plan.Transport = "car"
	st.RecomputeMissing()
	if len(st.Missing) != 0 {
		t.Fatalf("complete plan should have no missing fields, got %v", st.Missing)
	}
	if !st.Plan.Complete() {
		t.Fatal("Complete() should be true")
	}
}

func TestFollowUpLifecycle(t *testing.T) {
	t.Parallel()

	st := NewConversationState("s1", testNow)
	st.QueueFollowUp(FollowUpConfirmBusiness, testNow)
	st.QueueFollowUp(FollowUpConfirmBusiness, testNow)
	if len(st.FollowUps) != 1 {
		t.Fatalf("duplicate live follow-up should not queue, got %d", len(st.FollowUps))
	}

	st.QueueFollowUp(FollowUpCallStatus, testNow)
	st.MarkFollowUpsStale()
	if drained := st.DrainFollowUps(); len(drained) != 0 {
		t.Fatalf("stale follow-ups must never be returned, got %v", drained)
	}
	if len(st.FollowUps) != 0 {
		t.Fatal("drain should clear the queue")
	}

	st.QueueFollowUp(FollowUpCallStatus, testNow)
	drained := st.DrainFollowUps()
	if len(drained) != 1 || drained[0] != FollowUpCallStatus {
		t.Fatalf("unexpected drain result: %v", drained)
	}
	if again := st.DrainFollowUps(); len(again) != 0 {
		t.Fatalf("follow-ups must be consumed at most once, got %v", again)
	}
}

func TestApplyUpdateUnknownKeyLandsInMetadata(t *testing.T) {
	t.Parallel()

	st := NewConversationState("s1", testNow)
	if st.ApplyUpdate("negotiated_price", "150000") {
		t.Fatal("unknown key should not report a structured write")
	}
	if got := st.Metadata["negotiated_price"]; got != "150000" {
		t.Fatalf("metadata[negotiated_price] = %v", got)
	}

	if !st.ApplyUpdate(UpdatePlanParticipants, float64(3)) {
		t.Fatal("plan key should report a structured write")
	}
	if st.Plan.Participants != 3 {
		t.Fatalf("participants = %d, want 3", st.Plan.Participants)
	}

	st.ApplyUpdate(UpdateStage, StageReady)
	if st.Stage != StageReady {
		t.Fatalf("stage = %q, want %q", st.Stage, StageReady)
	}
}

func TestCallPlacedGuard(t *testing.T) {
	t.Parallel()

	var plan PlanSnapshot
	if plan.CallPlaced() {
		t.Fatal("fresh plan must not report a placed call")
	}
	plan.CallSID = "CA123"
	if !plan.CallPlaced() {
		t.Fatal("plan with a call sid must report a placed call")
	}
}
