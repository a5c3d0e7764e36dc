// Package costmodel estimates what executing the emerging plan will
// cost in wall-clock terms, from historical per-host fetch latency. It
// runs at high priority so its estimate sits on the blackboard before
// lower-priority plugins decide how aggressive to be.
package costmodel

import (
	"context"
	"fmt"

	"github.com/hubscout/hubscout/internal/planner"
)

// BlackboardKey is where the estimate lands; downstream consumers and
// the fusion caller read it from there.
const BlackboardKey = "costEstimate"

// DefaultPerFetchMS is assumed when no telemetry history exists.
const DefaultPerFetchMS = 350.0

// LatencySource is what this plugin needs from the run's db adapter.
// *store.Store satisfies it.
type LatencySource interface {
	HostLatency(ctx context.Context, host string) (avgMS float64, samples int, err error)
}

// Estimate is the cost record written onto the blackboard.
type Estimate struct {
	PerFetchMS  float64 `json:"per_fetch_ms"`
	ProjectedMS float64 `json:"projected_ms"`
	Fetches     int     `json:"fetches"`
	Samples     int     `json:"samples"`
	DefaultUsed bool    `json:"default_used"`
}

type Plugin struct {
	expectedFetches int
}

func New() *Plugin {
	return &Plugin{expectedFetches: 50}
}

func (p *Plugin) ID() string { return "costmodel" }

func (p *Plugin) Priority() int { return 80 }

func (p *Plugin) Tick(ctx context.Context, run *planner.RunContext) (bool, error) {
	host := ""
	if run.Options != nil {
		host = run.Options.Host
	}
	fetches := p.expectedFetches
	if run.Options != nil {
		if v, ok := run.Options.Metadata["expected_fetches"].(int); ok && v > 0 {
			fetches = v
		}
	}

	est := Estimate{PerFetchMS: DefaultPerFetchMS, Fetches: fetches, DefaultUsed: true}
	if src, ok := run.DB.(LatencySource); ok && src != nil && host != "" {
		avg, samples, err := src.HostLatency(ctx, host)
		if err != nil {
			return false, fmt.Errorf("querying latency history for %s: %w", host, err)
		}
		if samples > 0 {
			est.PerFetchMS = avg
			est.Samples = samples
			est.DefaultUsed = false
		}
	}
	est.ProjectedMS = est.PerFetchMS * float64(fetches)

	run.Blackboard.Set(BlackboardKey, est)
	if est.DefaultUsed {
		run.Blackboard.AddRationale(
			"costmodel: no latency history, assuming %.0fms per fetch (%d fetches, %.0fms projected)",
			est.PerFetchMS, fetches, est.ProjectedMS)
	} else {
		run.Blackboard.AddRationale(
			"costmodel: %d samples average %.0fms per fetch, %.0fms projected for %d fetches",
			est.Samples, est.PerFetchMS, est.ProjectedMS, fetches)
	}
	run.Emit("costmodel:estimate", est)
	return true, nil
}
