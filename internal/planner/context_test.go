package planner

import (
	"testing"
	"time"
)

func TestRunContextBudgetAccessors(t *testing.T) {
	now := time.Now()
	rc := &RunContext{StartedAt: now, DeadlineAt: now.Add(50 * time.Millisecond), Budget: 50 * time.Millisecond}
	if rc.Exhausted() {
		t.Fatalf("budget should not be exhausted immediately")
	}
	if rc.Remaining() == 0 {
		t.Fatalf("expected remaining time before deadline")
	}

	spent := &RunContext{StartedAt: now.Add(-time.Second), DeadlineAt: now.Add(-time.Second)}
	if !spent.Exhausted() {
		t.Fatalf("a deadline in the past must read as exhausted")
	}
	if spent.Remaining() != 0 {
		t.Fatalf("remaining must clamp at zero")
	}
}

func TestEmitForwardsToSink(t *testing.T) {
	var got []string
	rc := &RunContext{sink: func(eventType string, data interface{}) {
		got = append(got, eventType)
	}}
	rc.Emit("alpha", 1)
	rc.Emit("beta", 2)

	events := rc.Events()
	if len(events) != 2 || events[0].Type != "alpha" || events[1].Type != "beta" {
		t.Fatalf("unexpected internal buffer: %+v", events)
	}
	if len(got) != 2 {
		t.Fatalf("expected sink to receive both events, got %v", got)
	}
	if events[0].Timestamp == 0 {
		t.Fatalf("events must be timestamped")
	}
}

func TestBlackboardKeys(t *testing.T) {
	b := NewBlackboard()
	if b.Rationale == nil || b.ProposedHubs == nil || b.SeedQueue == nil {
		t.Fatalf("contract fields must exist at creation")
	}
	b.Set("costEstimate", 42.0)
	v, ok := b.Get("costEstimate")
	if !ok || v.(float64) != 42.0 {
		t.Fatalf("plugin-defined key round trip failed: %v %v", v, ok)
	}
	b.AddRationale("seeded %d urls", 3)
	if len(b.Rationale) != 1 || b.Rationale[0] != "seeded 3 urls" {
		t.Fatalf("unexpected rationale: %v", b.Rationale)
	}
}
