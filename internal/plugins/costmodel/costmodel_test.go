package costmodel

import (
	"context"
	"errors"
	"testing"

	"github.com/hubscout/hubscout/internal/planner"
)

type fakeLatency struct {
	avg     float64
	samples int
	err     error
}

func (f *fakeLatency) HostLatency(ctx context.Context, host string) (float64, int, error) {
	return f.avg, f.samples, f.err
}

func newRun(db interface{}) *planner.RunContext {
	return &planner.RunContext{
		Options:    &planner.Target{SiteURL: "https://example.com", Host: "example.com"},
		Blackboard: planner.NewBlackboard(),
		DB:         db,
	}
}

func TestEstimateFromHistory(t *testing.T) {
	p := New()
	run := newRun(&fakeLatency{avg: 500, samples: 40})
	done, err := p.Tick(context.Background(), run)
	if err != nil || !done {
		t.Fatalf("expected single-tick completion, done=%v err=%v", done, err)
	}
	raw, ok := run.Blackboard.Get(BlackboardKey)
	if !ok {
		t.Fatalf("estimate missing from blackboard")
	}
	est := raw.(Estimate)
	if est.DefaultUsed {
		t.Fatalf("history was available, default must not be used")
	}
	if est.PerFetchMS != 500 || est.ProjectedMS != 500*50 {
		t.Fatalf("unexpected estimate: %+v", est)
	}
}

func TestFallsBackWithoutAdapter(t *testing.T) {
	p := New()
	run := newRun(nil)
	done, err := p.Tick(context.Background(), run)
	if err != nil || !done {
		t.Fatalf("expected completion, done=%v err=%v", done, err)
	}
	raw, _ := run.Blackboard.Get(BlackboardKey)
	est := raw.(Estimate)
	if !est.DefaultUsed || est.PerFetchMS != DefaultPerFetchMS {
		t.Fatalf("expected default estimate, got %+v", est)
	}
	if len(run.Blackboard.Rationale) != 1 {
		t.Fatalf("fallback must be explained, got %v", run.Blackboard.Rationale)
	}
}

func TestNoSamplesUsesDefault(t *testing.T) {
	p := New()
	run := newRun(&fakeLatency{avg: 0, samples: 0})
	_, err := p.Tick(context.Background(), run)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	raw, _ := run.Blackboard.Get(BlackboardKey)
	if est := raw.(Estimate); !est.DefaultUsed {
		t.Fatalf("zero samples must fall back to the default rate")
	}
}

func TestExpectedFetchesOverride(t *testing.T) {
	p := New()
	run := newRun(&fakeLatency{avg: 100, samples: 5})
	run.Options.Metadata = map[string]interface{}{"expected_fetches": 10}
	_, err := p.Tick(context.Background(), run)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	raw, _ := run.Blackboard.Get(BlackboardKey)
	if est := raw.(Estimate); est.Fetches != 10 || est.ProjectedMS != 1000 {
		t.Fatalf("override not honored: %+v", est)
	}
}

func TestAdapterErrorSurfaces(t *testing.T) {
	p := New()
	run := newRun(&fakeLatency{err: errors.New("db down")})
	if _, err := p.Tick(context.Background(), run); err == nil {
		t.Fatalf("expected adapter error to surface for host isolation")
	}
}
