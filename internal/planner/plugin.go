package planner

import "context"

// DefaultPriority is assumed for plugins that do not declare one.
const DefaultPriority = 50

// Plugin is one reasoning unit the host schedules cooperatively. Tick is
// the only mandatory method: it performs an increment of work and returns
// done=true once the plugin is finished for this run. Tick may suspend on
// I/O; nothing else runs while it does.
//
// Plugins are long-lived across runs and must not retain run-scoped
// state on themselves; per-run state belongs on the blackboard.
type Plugin interface {
	ID() string
	Tick(ctx context.Context, run *RunContext) (done bool, err error)
}

// Initializer is implemented by plugins that need per-run setup. Called
// once before the first tick, in priority order.
type Initializer interface {
	Init(ctx context.Context, run *RunContext) error
}

// Finalizer is implemented by plugins that need per-run cleanup. Called
// once after the tick phase, unconditionally.
type Finalizer interface {
	Teardown(ctx context.Context, run *RunContext) error
}

// Prioritized lets a plugin claim a scheduling priority; higher runs
// earlier. Plugins without it get DefaultPriority.
type Prioritized interface {
	Priority() int
}

func priorityOf(p Plugin) int {
	if pr, ok := p.(Prioritized); ok {
		return pr.Priority()
	}
	return DefaultPriority
}
