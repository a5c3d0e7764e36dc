// Package hubgraph proposes hubs from the site's observed link graph:
// pages that many crawled pages point at are likely section indexes
// worth revisiting. The plugin works in phases across ticks so loading
// history never starves other plugins of a whole round.
package hubgraph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hubscout/hubscout/internal/planner"
	"github.com/hubscout/hubscout/internal/store"
)

// EdgeSource is what this plugin needs from the run's db adapter.
// *store.Store satisfies it.
type EdgeSource interface {
	CrawlEdges(ctx context.Context, host string, limit int) ([]store.CrawlEdge, error)
}

// Blackboard keys this plugin owns.
const (
	keyEdges = "hubgraph:edges"
	keyPhase = "hubgraph:phase"
)

const (
	phaseLoad    = "load"
	phasePropose = "propose"
)

// Plugin scores in-link degree over recent crawl edges.
type Plugin struct {
	edgeLimit int
	topK      int
	minDegree int
}

func New() *Plugin {
	return &Plugin{edgeLimit: 500, topK: 10, minDegree: 2}
}

func (p *Plugin) ID() string { return "hubgraph" }

func (p *Plugin) Priority() int { return 70 }

func (p *Plugin) Init(ctx context.Context, run *planner.RunContext) error {
	run.Blackboard.Set(keyPhase, phaseLoad)
	return nil
}

func (p *Plugin) Tick(ctx context.Context, run *planner.RunContext) (bool, error) {
	phase, _ := run.Blackboard.Get(keyPhase)
	switch phase {
	case phasePropose:
		return true, p.propose(run)
	default:
		return p.load(ctx, run)
	}
}

func (p *Plugin) Teardown(ctx context.Context, run *planner.RunContext) error {
	delete(run.Blackboard.Extra, keyEdges)
	delete(run.Blackboard.Extra, keyPhase)
	return nil
}

// load pulls recent link edges for the target host. Without an adapter
// or a host there is nothing to reason over and the plugin bows out.
func (p *Plugin) load(ctx context.Context, run *planner.RunContext) (bool, error) {
	src, ok := run.DB.(EdgeSource)
	if !ok || src == nil {
		run.Blackboard.AddRationale("hubgraph: no crawl-edge adapter available, skipping graph reasoning")
		return true, nil
	}
	host := targetHost(run.Options)
	if host == "" {
		run.Blackboard.AddRationale("hubgraph: target host unknown, skipping graph reasoning")
		return true, nil
	}
	edges, err := src.CrawlEdges(ctx, host, p.edgeLimit)
	if err != nil {
		return false, fmt.Errorf("loading crawl edges for %s: %w", host, err)
	}
	if len(edges) == 0 {
		run.Blackboard.AddRationale("hubgraph: no crawl history for %s yet", host)
		return true, nil
	}
	run.Blackboard.Set(keyEdges, edges)
	run.Blackboard.Set(keyPhase, phasePropose)
	return false, nil
}

// propose ranks pages by in-link degree and promotes the strongest as
// hub proposals, seeding the very best directly.
func (p *Plugin) propose(run *planner.RunContext) error {
	raw, _ := run.Blackboard.Get(keyEdges)
	edges, _ := raw.([]store.CrawlEdge)

	degree := map[string]int{}
	for _, e := range edges {
		degree[e.ToURL]++
	}
	type scored struct {
		url string
		deg int
	}
	var ranked []scored
	for u, d := range degree {
		if d >= p.minDegree {
			ranked = append(ranked, scored{url: u, deg: d})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].deg != ranked[j].deg {
			return ranked[i].deg > ranked[j].deg
		}
		return ranked[i].url < ranked[j].url
	})
	if len(ranked) > p.topK {
		ranked = ranked[:p.topK]
	}

	for i, hub := range ranked {
		confidence := 0.3 + 0.05*float64(hub.deg)
		if confidence > 0.8 {
			confidence = 0.8
		}
		run.Blackboard.ProposeHub(planner.HubProposal{
			URL:        hub.url,
			Source:     p.ID(),
			Kind:       "graph-hub",
			Confidence: confidence,
			Reason:     fmt.Sprintf("%d in-links in recent crawl history", hub.deg),
			Priority:   60 - i,
		})
		if i < 3 {
			run.Blackboard.AddSeed(planner.Seed{
				URL:    hub.url,
				Source: p.ID(),
				Reason: "top in-degree hub",
			})
		}
	}
	run.Blackboard.AddRationale("hubgraph ranked %d hub candidates from %d observed edges", len(ranked), len(edges))
	run.Emit("hubgraph:completed", map[string]interface{}{"hubs": len(ranked), "edges": len(edges)})
	return nil
}

func targetHost(t *planner.Target) string {
	if t == nil {
		return ""
	}
	if t.Host != "" {
		return t.Host
	}
	host := t.SiteURL
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	return host
}
