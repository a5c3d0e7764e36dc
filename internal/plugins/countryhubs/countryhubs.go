// Package countryhubs predicts country-section hub pages for a target
// site from a built-in gazetteer. News and directory sites commonly
// expose per-country sections at predictable paths; proposing them is
// cheap and needs no crawl history.
package countryhubs

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubscout/hubscout/internal/planner"
)

// Country is one gazetteer entry.
type Country struct {
	Name string
	ISO2 string
	TLD  string
}

var gazetteer = []Country{
	{"Argentina", "AR", "ar"},
	{"Australia", "AU", "au"},
	{"Austria", "AT", "at"},
	{"Belgium", "BE", "be"},
	{"Brazil", "BR", "br"},
	{"Canada", "CA", "ca"},
	{"Chile", "CL", "cl"},
	{"China", "CN", "cn"},
	{"Colombia", "CO", "co"},
	{"Czechia", "CZ", "cz"},
	{"Denmark", "DK", "dk"},
	{"Egypt", "EG", "eg"},
	{"Finland", "FI", "fi"},
	{"France", "FR", "fr"},
	{"Germany", "DE", "de"},
	{"Greece", "GR", "gr"},
	{"India", "IN", "in"},
	{"Indonesia", "ID", "id"},
	{"Ireland", "IE", "ie"},
	{"Israel", "IL", "il"},
	{"Italy", "IT", "it"},
	{"Japan", "JP", "jp"},
	{"Kenya", "KE", "ke"},
	{"Mexico", "MX", "mx"},
	{"Netherlands", "NL", "nl"},
	{"New Zealand", "NZ", "nz"},
	{"Nigeria", "NG", "ng"},
	{"Norway", "NO", "no"},
	{"Poland", "PL", "pl"},
	{"Portugal", "PT", "pt"},
	{"South Africa", "ZA", "za"},
	{"South Korea", "KR", "kr"},
	{"Spain", "ES", "es"},
	{"Sweden", "SE", "se"},
	{"Switzerland", "CH", "ch"},
	{"Turkey", "TR", "tr"},
	{"United Kingdom", "GB", "uk"},
	{"United States", "US", "us"},
}

// Blackboard keys this plugin owns.
const (
	keyCursor = "countryhubs:cursor"
	keyCount  = "countryhubs:count"
)

// Plugin proposes country hubs in batches, one batch per tick, so it
// cooperates with other plugins instead of monopolizing a round.
type Plugin struct {
	batch int
}

func New() *Plugin {
	return &Plugin{batch: 8}
}

func (p *Plugin) ID() string { return "countryhubs" }

func (p *Plugin) Priority() int { return 40 }

func (p *Plugin) Init(ctx context.Context, run *planner.RunContext) error {
	run.Blackboard.Set(keyCursor, 0)
	run.Blackboard.Set(keyCount, 0)
	return nil
}

func (p *Plugin) Tick(ctx context.Context, run *planner.RunContext) (bool, error) {
	base := siteBase(run.Options)
	if base == "" {
		run.Blackboard.AddRationale("countryhubs: no target site configured, nothing to propose")
		return true, nil
	}
	cursor := intKey(run.Blackboard, keyCursor)
	count := intKey(run.Blackboard, keyCount)
	siteTLD := tldOf(base)

	end := cursor + p.batch
	if end > len(gazetteer) {
		end = len(gazetteer)
	}
	for _, c := range gazetteer[cursor:end] {
		confidence := 0.35
		if c.TLD == siteTLD {
			confidence = 0.55
		}
		run.Blackboard.ProposeHub(planner.HubProposal{
			URL:        base + "/" + strings.ToLower(c.ISO2),
			Source:     p.ID(),
			Kind:       "country-hub",
			Confidence: confidence,
			Reason:     fmt.Sprintf("gazetteer entry %s (%s)", c.Name, c.ISO2),
			Priority:   30,
		})
		run.Blackboard.ProposeHub(planner.HubProposal{
			URL:        base + "/world/" + slug(c.Name),
			Source:     p.ID(),
			Kind:       "country-hub",
			Confidence: confidence * 0.8,
			Reason:     fmt.Sprintf("world-section candidate for %s", c.Name),
			Priority:   20,
		})
		count += 2
	}
	run.Blackboard.Set(keyCursor, end)
	run.Blackboard.Set(keyCount, count)

	if end < len(gazetteer) {
		return false, nil
	}
	run.Blackboard.AddRationale("countryhubs proposed %d country hub candidates from %d gazetteer entries", count, len(gazetteer))
	run.Emit("countryhubs:completed", map[string]interface{}{"proposals": count})
	return true, nil
}

func (p *Plugin) Teardown(ctx context.Context, run *planner.RunContext) error {
	// Scratch keys are run-scoped; drop them so downstream consumers of
	// the blackboard only see the contract fields and real outputs.
	delete(run.Blackboard.Extra, keyCursor)
	delete(run.Blackboard.Extra, keyCount)
	return nil
}

// Gazetteer exposes the built-in country list for callers that want to
// surface it (e.g. docs or a UI picker).
func Gazetteer() []Country {
	out := make([]Country, len(gazetteer))
	copy(out, gazetteer)
	return out
}

func siteBase(t *planner.Target) string {
	if t == nil || t.SiteURL == "" {
		return ""
	}
	return strings.TrimRight(t.SiteURL, "/")
}

func tldOf(base string) string {
	host := base
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	if i := strings.LastIndex(host, "."); i >= 0 {
		return host[i+1:]
	}
	return ""
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

func intKey(b *planner.Blackboard, key string) int {
	if v, ok := b.Get(key); ok {
		if n, ok := v.(int); ok {
			return n
		}
	}
	return 0
}
