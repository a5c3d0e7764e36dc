package planner

import (
	"context"
	"fmt"
	"time"
)

// Target carries caller-supplied configuration for one planning run. The
// host passes it through to plugins untouched; only plugins interpret it.
type Target struct {
	SiteURL  string
	Host     string
	Depth    int
	Metadata map[string]interface{}
}

// FetchFunc fetches a page body. Concrete fetching lives outside the
// planning core; plugins receive whatever the caller injected.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// EmitFunc forwards a telemetry event to an external sink.
type EmitFunc func(eventType string, data interface{})

// Logger is the minimal logging surface the planning core needs. A nil
// Logger is always safe; every call site guards against it.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// TelemetryEvent is one captured emission. Immutable once appended.
type TelemetryEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"` // epoch millis
}

// HubProposal is a candidate hub page a plugin wants crawled.
type HubProposal struct {
	URL        string                 `json:"url"`
	Source     string                 `json:"source"`
	Kind       string                 `json:"kind,omitempty"`
	Confidence float64                `json:"confidence"`
	Reason     string                 `json:"reason"`
	Priority   int                    `json:"priority"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// Seed is a candidate URL for the downstream fetch queue.
type Seed struct {
	URL    string                 `json:"url"`
	Source string                 `json:"source,omitempty"`
	Reason string                 `json:"reason,omitempty"`
	Depth  int                    `json:"depth,omitempty"`
	Meta   map[string]interface{} `json:"meta,omitempty"`
}

// Blackboard is the shared scratch space every plugin reads and writes
// during one run. Access is strictly sequential (see RunContext), so no
// synchronization is used. Plugins must not assume the board is unchanged
// between their own successive ticks; other plugins run in between.
type Blackboard struct {
	Rationale    []string               `json:"rationale"`
	ProposedHubs []HubProposal          `json:"proposed_hubs"`
	SeedQueue    []Seed                 `json:"seed_queue"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

// NewBlackboard returns an empty board with all three contract fields
// initialized.
func NewBlackboard() *Blackboard {
	return &Blackboard{
		Rationale:    []string{},
		ProposedHubs: []HubProposal{},
		SeedQueue:    []Seed{},
		Extra:        map[string]interface{}{},
	}
}

// AddRationale appends one human-readable line to the decision trail.
// Entries are append-only; nothing ever rewrites them.
func (b *Blackboard) AddRationale(format string, args ...interface{}) {
	b.Rationale = append(b.Rationale, fmt.Sprintf(format, args...))
}

// ProposeHub appends a hub proposal. Plugins append, never remove.
func (b *Blackboard) ProposeHub(h HubProposal) {
	b.ProposedHubs = append(b.ProposedHubs, h)
}

// AddSeed appends a seed to the queue for downstream fusion.
func (b *Blackboard) AddSeed(s Seed) {
	b.SeedQueue = append(b.SeedQueue, s)
}

// Set stores a plugin-defined key. Get returns it with a presence flag.
func (b *Blackboard) Set(key string, value interface{}) {
	if b.Extra == nil {
		b.Extra = map[string]interface{}{}
	}
	b.Extra[key] = value
}

func (b *Blackboard) Get(key string) (interface{}, bool) {
	v, ok := b.Extra[key]
	return v, ok
}

// RunContext is the per-run state handed to every plugin call. It is
// created once per Host.Run, owned by the host for the duration of the
// run, and discarded afterwards. The deadline is computed exactly once at
// creation and never moves.
type RunContext struct {
	Options    *Target
	Blackboard *Blackboard

	// Passive collaborators, passed through verbatim.
	Fetch  FetchFunc
	DB     interface{}
	Logger Logger

	Budget     time.Duration
	StartedAt  time.Time
	DeadlineAt time.Time

	events []TelemetryEvent
	sink   EmitFunc
}

// Exhausted reports whether the budget is spent. A zero budget is
// exhausted from the first check.
func (rc *RunContext) Exhausted() bool {
	return !time.Now().Before(rc.DeadlineAt)
}

// Remaining returns the time left before the deadline, never negative.
func (rc *RunContext) Remaining() time.Duration {
	d := time.Until(rc.DeadlineAt)
	if d < 0 {
		return 0
	}
	return d
}

// Emit records a telemetry event and forwards it to the external sink
// when one was supplied. Sink failures are swallowed; a broken sink must
// never take down the plugin that emitted.
func (rc *RunContext) Emit(eventType string, data interface{}) {
	rc.events = append(rc.events, TelemetryEvent{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if rc.sink == nil {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil && rc.Logger != nil {
				rc.Logger.Warnf("telemetry sink failed for %s: %v", eventType, r)
			}
		}()
		rc.sink(eventType, data)
	}()
}

// Events returns the events captured so far, in emission order.
func (rc *RunContext) Events() []TelemetryEvent {
	return rc.events
}
