package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultBudget bounds a planning run when the caller does not set one.
const DefaultBudget = 3500 * time.Millisecond

// DefaultMaxRounds caps the tick loop regardless of budget, so a plugin
// that never finishes cannot spin forever.
const DefaultMaxRounds = 100

var hostTracer trace.Tracer = otel.Tracer("hubscout/internal/planner")

// HostOptions configures a Host. Nil or zero values fall back to
// defaults; an explicit zero Budget is honored (the run performs no
// ticks).
type HostOptions struct {
	Budget    *time.Duration
	MaxRounds int
	Logger    Logger
	Sink      EmitFunc
	Fetch     FetchFunc
	DB        interface{}
}

// Host runs a fixed set of plugins cooperatively against one target and
// collects their shared blackboard output. Scheduling is strictly
// single-threaded: exactly one plugin call executes at any instant, so
// the blackboard needs no locking.
type Host struct {
	plugins   []Plugin
	budget    time.Duration
	maxRounds int
	logger    Logger
	sink      EmitFunc
	fetch     FetchFunc
	db        interface{}
}

// RunResult is what a completed planning run hands back. The host never
// fails a run; degraded completion shows up in StatusReason and the
// rationale, not as an error.
type RunResult struct {
	Blackboard      *Blackboard
	TelemetryEvents []TelemetryEvent
	Elapsed         time.Duration
	BudgetExceeded  bool
	StatusReason    string
}

// NewHost validates the plugin list and fixes the scheduling order:
// descending priority, original order preserved on ties. The order is a
// contract; deterministic tests depend on it.
func NewHost(plugins []Plugin, opts HostOptions) (*Host, error) {
	if len(plugins) == 0 {
		return nil, fmt.Errorf("planner host requires at least one plugin")
	}
	for i, p := range plugins {
		if p == nil {
			return nil, fmt.Errorf("planner host: plugin at index %d is nil", i)
		}
		if p.ID() == "" {
			return nil, fmt.Errorf("planner host: plugin at index %d has empty id", i)
		}
	}
	ordered := make([]Plugin, len(plugins))
	copy(ordered, plugins)
	sort.SliceStable(ordered, func(i, j int) bool {
		return priorityOf(ordered[i]) > priorityOf(ordered[j])
	})

	h := &Host{
		plugins:   ordered,
		budget:    DefaultBudget,
		maxRounds: opts.MaxRounds,
		logger:    opts.Logger,
		sink:      opts.Sink,
		fetch:     opts.Fetch,
		db:        opts.DB,
	}
	if opts.Budget != nil {
		h.budget = *opts.Budget
		if h.budget < 0 {
			h.budget = 0
		}
	}
	if h.maxRounds <= 0 {
		h.maxRounds = DefaultMaxRounds
	}
	return h, nil
}

// Plugins returns the scheduling order the host settled on.
func (h *Host) Plugins() []Plugin {
	out := make([]Plugin, len(h.plugins))
	copy(out, h.plugins)
	return out
}

// Run executes one planning session: init every plugin, tick them in
// rounds until all are done or the budget or round cap is hit, then tear
// every plugin down. No plugin failure in any phase aborts the run, and
// Run itself never panics out.
func (h *Host) Run(ctx context.Context, target *Target) *RunResult {
	ctx, span := hostTracer.Start(ctx, "planner.run")
	defer span.End()

	started := time.Now()
	rc := &RunContext{
		Options:    target,
		Blackboard: NewBlackboard(),
		Fetch:      h.fetch,
		DB:         h.db,
		Logger:     h.logger,
		Budget:     h.budget,
		StartedAt:  started,
		DeadlineAt: started.Add(h.budget),
	}
	rc.sink = h.sink

	rc.Emit("planner:run_started", map[string]interface{}{
		"plugins":   len(h.plugins),
		"budget_ms": h.budget.Milliseconds(),
	})

	h.initAll(ctx, rc)
	h.tickLoop(ctx, rc)
	h.teardownAll(ctx, rc)

	elapsed := time.Since(started)
	exceeded := elapsed >= h.budget
	reason := "planning completed within budget"
	if exceeded {
		reason = "planning completed with budget exhausted"
	}
	rc.Emit("planner:run_completed", map[string]interface{}{
		"elapsed_ms":      elapsed.Milliseconds(),
		"budget_exceeded": exceeded,
		"seeds":           len(rc.Blackboard.SeedQueue),
		"hubs":            len(rc.Blackboard.ProposedHubs),
	})
	span.SetAttributes(
		attribute.Int64("planner.elapsed_ms", elapsed.Milliseconds()),
		attribute.Bool("planner.budget_exceeded", exceeded),
	)

	return &RunResult{
		Blackboard:      rc.Blackboard,
		TelemetryEvents: rc.Events(),
		Elapsed:         elapsed,
		BudgetExceeded:  exceeded,
		StatusReason:    reason,
	}
}

// initAll gives every plugin its per-run setup. A failed init is logged
// and noted but does not exclude the plugin from ticking; if it keeps
// failing, the tick phase marks it done there.
func (h *Host) initAll(ctx context.Context, rc *RunContext) {
	for _, p := range h.plugins {
		init, ok := p.(Initializer)
		if !ok {
			continue
		}
		h.isolate(rc, p.ID(), "init", func() error {
			return init.Init(ctx, rc)
		})
	}
}

// tickLoop is the cooperative scheduler. Each round visits every not-done
// plugin in priority order; the budget is checked before the round starts
// and again after every individual tick, so at most one tick can overrun
// the deadline per round.
func (h *Host) tickLoop(ctx context.Context, rc *RunContext) {
	done := make(map[string]bool, len(h.plugins))
	for round := 1; round <= h.maxRounds; round++ {
		if rc.Exhausted() {
			rc.Blackboard.AddRationale(
				"planning budget of %dms exhausted after %d round(s)",
				h.budget.Milliseconds(), round-1)
			return
		}
		for _, p := range h.plugins {
			if done[p.ID()] {
				continue
			}
			var finished bool
			err := h.isolate(rc, p.ID(), "tick", func() error {
				var tickErr error
				finished, tickErr = p.Tick(ctx, rc)
				return tickErr
			})
			if err != nil {
				// A throwing plugin can never un-stick the loop.
				done[p.ID()] = true
			} else if finished {
				done[p.ID()] = true
			}
			if rc.Exhausted() {
				rc.Blackboard.AddRationale(
					"planning budget of %dms exhausted during round %d",
					h.budget.Milliseconds(), round)
				return
			}
		}
		all := true
		for _, p := range h.plugins {
			if !done[p.ID()] {
				all = false
				break
			}
		}
		if all {
			return
		}
	}
	rc.Blackboard.AddRationale(
		"planning stopped at the %d-round loop limit with plugins still pending",
		h.maxRounds)
	h.warnf("tick loop hit the %d-round cap", h.maxRounds)
}

// teardownAll runs every plugin's teardown in priority order, done or
// not, failed earlier or not. A teardown failure never interrupts the
// remaining teardown calls.
func (h *Host) teardownAll(ctx context.Context, rc *RunContext) {
	for _, p := range h.plugins {
		fin, ok := p.(Finalizer)
		if !ok {
			continue
		}
		h.isolate(rc, p.ID(), "teardown", func() error {
			return fin.Teardown(ctx, rc)
		})
	}
}

// isolate is the single place plugin failures are absorbed: errors and
// panics alike are logged, noted on the rationale, emitted as telemetry,
// and returned for bookkeeping. Nothing propagates.
func (h *Host) isolate(rc *RunContext, pluginID, phase string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			h.warnf("plugin %s failed during %s: %v", pluginID, phase, err)
			rc.Blackboard.AddRationale("plugin %s failed during %s: %v", pluginID, phase, err)
			rc.Emit("planner:plugin_failed", map[string]interface{}{
				"plugin": pluginID,
				"phase":  phase,
				"error":  err.Error(),
			})
		}
	}()
	return fn()
}

func (h *Host) warnf(format string, args ...interface{}) {
	if h.logger != nil {
		h.logger.Warnf(format, args...)
	}
}
