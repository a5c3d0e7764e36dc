package planner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// fakePlugin records the order of its lifecycle calls through a shared
// trace slice and can be scripted to fail or to need several ticks.
type fakePlugin struct {
	id        string
	priority  int
	ticksLeft int
	tickErr   error
	initErr   error
	panicTick bool

	trace *[]string
}

func (f *fakePlugin) ID() string { return f.id }

func (f *fakePlugin) Priority() int { return f.priority }

func (f *fakePlugin) Init(ctx context.Context, run *RunContext) error {
	*f.trace = append(*f.trace, "init:"+f.id)
	return f.initErr
}

func (f *fakePlugin) Tick(ctx context.Context, run *RunContext) (bool, error) {
	*f.trace = append(*f.trace, "tick:"+f.id)
	if f.panicTick {
		panic("scripted panic")
	}
	if f.tickErr != nil {
		return false, f.tickErr
	}
	if f.ticksLeft > 0 {
		f.ticksLeft--
	}
	return f.ticksLeft == 0, nil
}

func (f *fakePlugin) Teardown(ctx context.Context, run *RunContext) error {
	*f.trace = append(*f.trace, "teardown:"+f.id)
	return nil
}

// prioritized wrapper is used where the test wants the default priority:
// it simply omits the Priority method.
type defaultPrioPlugin struct {
	id    string
	trace *[]string
}

func (d *defaultPrioPlugin) ID() string { return d.id }

func (d *defaultPrioPlugin) Tick(ctx context.Context, run *RunContext) (bool, error) {
	*d.trace = append(*d.trace, "tick:"+d.id)
	return true, nil
}

func firstTicks(trace []string) []string {
	var out []string
	for _, entry := range trace {
		if strings.HasPrefix(entry, "tick:") {
			out = append(out, entry)
		}
	}
	return out
}

func TestNewHostRejectsEmptyPluginList(t *testing.T) {
	if _, err := NewHost(nil, HostOptions{}); err == nil {
		t.Fatalf("expected configuration error for empty plugin list")
	}
}

func TestHigherPriorityTicksFirst(t *testing.T) {
	var trace []string
	a := &fakePlugin{id: "A", priority: 10, ticksLeft: 1, trace: &trace}
	b := &fakePlugin{id: "B", priority: 90, ticksLeft: 1, trace: &trace}
	host, err := NewHost([]Plugin{a, b}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	host.Run(context.Background(), &Target{SiteURL: "https://example.com"})

	ticks := firstTicks(trace)
	if len(ticks) != 2 || ticks[0] != "tick:B" || ticks[1] != "tick:A" {
		t.Fatalf("expected B then A, got %v", ticks)
	}
}

func TestEqualPriorityKeepsOriginalOrder(t *testing.T) {
	var trace []string
	a := &defaultPrioPlugin{id: "A", trace: &trace}
	b := &defaultPrioPlugin{id: "B", trace: &trace}
	host, err := NewHost([]Plugin{a, b}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	host.Run(context.Background(), nil)

	ticks := firstTicks(trace)
	if len(ticks) != 2 || ticks[0] != "tick:A" || ticks[1] != "tick:B" {
		t.Fatalf("expected stable order A then B, got %v", ticks)
	}
}

func TestFailingPluginDoesNotBlockOthers(t *testing.T) {
	var trace []string
	bad := &fakePlugin{id: "bad", priority: 90, tickErr: errors.New("boom"), trace: &trace}
	good := &fakePlugin{id: "good", priority: 10, ticksLeft: 2, trace: &trace}
	host, err := NewHost([]Plugin{bad, good}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)

	goodTicks := 0
	badTicks := 0
	for _, entry := range trace {
		switch entry {
		case "tick:good":
			goodTicks++
		case "tick:bad":
			badTicks++
		}
	}
	if badTicks != 1 {
		t.Fatalf("throwing plugin should be marked done after one tick, got %d", badTicks)
	}
	if goodTicks != 2 {
		t.Fatalf("expected the healthy plugin to run to completion, got %d ticks", goodTicks)
	}
	found := false
	for _, line := range res.Blackboard.Rationale {
		if strings.Contains(line, "bad") && strings.Contains(line, "tick") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a rationale entry naming the failed plugin, got %v", res.Blackboard.Rationale)
	}
}

func TestPanickingPluginIsIsolated(t *testing.T) {
	var trace []string
	bad := &fakePlugin{id: "bad", priority: 90, panicTick: true, trace: &trace}
	good := &fakePlugin{id: "good", priority: 10, ticksLeft: 1, trace: &trace}
	host, err := NewHost([]Plugin{bad, good}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)
	if res == nil {
		t.Fatalf("run must always return a result")
	}
	for _, entry := range trace {
		if entry == "tick:good" {
			return
		}
	}
	t.Fatalf("healthy plugin never ticked after panic in sibling: %v", trace)
}

func TestRoundCapStopsNonTerminatingPlugin(t *testing.T) {
	var trace []string
	// ticksLeft never reaches zero because Tick keeps returning false.
	stuck := &fakePlugin{id: "stuck", ticksLeft: -1, trace: &trace}
	budget := 10 * time.Minute
	host, err := NewHost([]Plugin{stuck}, HostOptions{Budget: &budget})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)

	ticks := len(firstTicks(trace))
	if ticks != DefaultMaxRounds {
		t.Fatalf("expected exactly %d ticks, got %d", DefaultMaxRounds, ticks)
	}
	found := false
	for _, line := range res.Blackboard.Rationale {
		if strings.Contains(line, "loop limit") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rationale mentioning the loop limit, got %v", res.Blackboard.Rationale)
	}
}

func TestZeroBudgetSkipsTickPhase(t *testing.T) {
	var trace []string
	a := &fakePlugin{id: "A", ticksLeft: 1, trace: &trace}
	b := &fakePlugin{id: "B", ticksLeft: 1, trace: &trace}
	zero := time.Duration(0)
	host, err := NewHost([]Plugin{a, b}, HostOptions{Budget: &zero})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)

	inits, ticks, teardowns := 0, 0, 0
	for _, entry := range trace {
		switch {
		case strings.HasPrefix(entry, "init:"):
			inits++
		case strings.HasPrefix(entry, "tick:"):
			ticks++
		case strings.HasPrefix(entry, "teardown:"):
			teardowns++
		}
	}
	if inits != 2 || teardowns != 2 {
		t.Fatalf("expected init and teardown on all plugins, got init=%d teardown=%d", inits, teardowns)
	}
	if ticks != 0 {
		t.Fatalf("expected zero ticks with zero budget, got %d", ticks)
	}
	if !res.BudgetExceeded {
		t.Fatalf("expected BudgetExceeded with zero budget")
	}
}

func TestFailedInitStillTicks(t *testing.T) {
	var trace []string
	p := &fakePlugin{id: "flaky", ticksLeft: 1, initErr: errors.New("init boom"), trace: &trace}
	host, err := NewHost([]Plugin{p}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)

	if len(firstTicks(trace)) != 1 {
		t.Fatalf("a failed init must not exclude the plugin from ticking: %v", trace)
	}
	found := false
	for _, line := range res.Blackboard.Rationale {
		if strings.Contains(line, "flaky") && strings.Contains(line, "init") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected rationale naming the failed init, got %v", res.Blackboard.Rationale)
	}
}

func TestTeardownRunsForFailedPlugins(t *testing.T) {
	var trace []string
	bad := &fakePlugin{id: "bad", tickErr: errors.New("boom"), trace: &trace}
	host, err := NewHost([]Plugin{bad}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	host.Run(context.Background(), nil)

	for _, entry := range trace {
		if entry == "teardown:bad" {
			return
		}
	}
	t.Fatalf("teardown must run even for plugins that failed, trace %v", trace)
}

func TestTelemetrySinkFailureIsSwallowed(t *testing.T) {
	var trace []string
	p := &fakePlugin{id: "emitter", ticksLeft: 1, trace: &trace}
	host, err := NewHost([]Plugin{p}, HostOptions{
		Sink: func(eventType string, data interface{}) {
			panic("sink down")
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), nil)
	if res == nil {
		t.Fatalf("run must survive a panicking sink")
	}
	if len(res.TelemetryEvents) == 0 {
		t.Fatalf("internal telemetry buffer must still be populated")
	}
}

func TestRunResultShape(t *testing.T) {
	var trace []string
	p := &fakePlugin{id: "one", ticksLeft: 1, trace: &trace}
	host, err := NewHost([]Plugin{p}, HostOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res := host.Run(context.Background(), &Target{SiteURL: "https://example.com"})

	if res.Blackboard == nil {
		t.Fatalf("blackboard missing from result")
	}
	if res.StatusReason != "planning completed within budget" {
		t.Fatalf("unexpected status reason: %q", res.StatusReason)
	}
	if res.BudgetExceeded {
		t.Fatalf("run should complete inside the default budget")
	}
	for _, ev := range res.TelemetryEvents {
		if ev.Timestamp == 0 {
			t.Fatalf("telemetry events must carry timestamps")
		}
	}
}
