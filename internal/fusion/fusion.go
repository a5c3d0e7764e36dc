package fusion

import (
	"math"
	"net/url"

	"github.com/hubscout/hubscout/internal/planner"
	"github.com/hubscout/hubscout/internal/policy"
)

// Seed source tags applied during fusion. The primary plan historically
// comes from the microprolog reasoner, and the tag survives as the wire
// name downstream consumers key on.
const (
	SourceMicroprolog = "microprolog"
	SourceAlternative = "alternative"
)

// DefaultFloor is the share of the seed budget reserved for the primary
// plan; DefaultMaxSeeds bounds the fused queue.
const (
	DefaultFloor    = 0.2
	DefaultMaxSeeds = 200
)

// Plan is one proposal source: a seed queue, hub proposals and whatever
// descriptive fields the producer attached. Fuse never mutates its
// inputs.
type Plan struct {
	Strategy     string                 `json:"strategy,omitempty"`
	SeedQueue    []planner.Seed         `json:"seed_queue"`
	ProposedHubs []planner.HubProposal  `json:"proposed_hubs"`
	Fused        bool                   `json:"fused,omitempty"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
}

// Input bundles everything one fusion pass needs. Primary is the
// microprolog plan; Alternatives are competing sources in arrival order.
type Input struct {
	Primary      *Plan
	Alternatives []*Plan
	Validator    *policy.Verdict
	Floor        float64 // 0 means DefaultFloor
	MaxSeeds     int     // 0 means DefaultMaxSeeds
}

// Stats describes what each source contributed. AltSources counts the
// alternative plan lists that were supplied, contributing or not.
type Stats struct {
	MicroSeeds int `json:"micro_seeds"`
	TotalSeeds int `json:"total_seeds"`
	AltSources int `json:"alt_sources"`
	Hubs       int `json:"hubs"`
}

// Result is a fused plan plus contribution stats and a bounded
// confidence heuristic.
type Result struct {
	Plan       *Plan   `json:"plan"`
	Stats      Stats   `json:"stats"`
	Confidence float64 `json:"confidence"`
}

// Fuse merges the primary plan with any alternative plans into one
// bounded, deduplicated plan. A quota of floor*maxSeeds seeds is reserved
// for the primary source unless the validator carries the trap-risk
// marker, which vetoes every primary seed outright. Alternatives are
// interleaved round-robin until the seed cap is reached. Hubs are
// deduplicated against each other and against the chosen seeds; no quota
// applies to them.
//
// Fuse returns nil only when there is neither a primary plan nor any
// alternative; it never fails otherwise.
func Fuse(in Input) *Result {
	if in.Primary == nil && len(in.Alternatives) == 0 {
		return nil
	}
	floor := in.Floor
	if floor == 0 {
		floor = DefaultFloor
	}
	maxSeeds := in.MaxSeeds
	if maxSeeds == 0 {
		maxSeeds = DefaultMaxSeeds
	}

	used := map[string]struct{}{}
	seeds := []planner.Seed{}
	microQuota := int(math.Floor(float64(maxSeeds) * floor))
	microSeeds := 0

	vetoed := in.Validator != nil && in.Validator.Has(policy.ReasonTrapRiskHigh)
	if in.Primary != nil && !vetoed {
		for _, seed := range in.Primary.SeedQueue {
			if microSeeds >= microQuota || len(seeds) >= maxSeeds {
				break
			}
			key := canonicalURL(seed.URL)
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
			tagged := seed
			tagged.Source = SourceMicroprolog
			seeds = append(seeds, tagged)
			microSeeds++
		}
	}

	// Round-robin: one candidate from each alternative list per pass,
	// skipping duplicates and exhausted lists.
	cursors := make([]int, len(in.Alternatives))
	for len(seeds) < maxSeeds {
		advanced := false
		for i, alt := range in.Alternatives {
			if len(seeds) >= maxSeeds {
				break
			}
			if alt == nil || cursors[i] >= len(alt.SeedQueue) {
				continue
			}
			seed := alt.SeedQueue[cursors[i]]
			cursors[i]++
			advanced = true
			key := canonicalURL(seed.URL)
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
			tagged := seed
			tagged.Source = SourceAlternative
			seeds = append(seeds, tagged)
		}
		if !advanced {
			break
		}
	}

	// Hub fusion shares the dedup set with seeds: a URL already chosen
	// as a seed never reappears as a hub.
	hubs := []planner.HubProposal{}
	appendHubs := func(plan *Plan) {
		if plan == nil {
			return
		}
		for _, hub := range plan.ProposedHubs {
			key := canonicalURL(hub.URL)
			if _, dup := used[key]; dup {
				continue
			}
			used[key] = struct{}{}
			hubs = append(hubs, hub)
		}
	}
	appendHubs(in.Primary)
	for _, alt := range in.Alternatives {
		appendHubs(alt)
	}

	var base *Plan
	if len(in.Alternatives) > 0 {
		base = in.Alternatives[0]
	}
	fused := mergePlans(base, in.Primary)
	fused.Fused = true
	fused.SeedQueue = seeds
	fused.ProposedHubs = hubs

	stats := Stats{
		MicroSeeds: microSeeds,
		TotalSeeds: len(seeds),
		AltSources: len(in.Alternatives),
		Hubs:       len(hubs),
	}
	confidence := 0.55 + math.Min(0.15, float64(microSeeds)*0.01)

	return &Result{Plan: fused, Stats: stats, Confidence: confidence}
}

// canonicalURL strips the fragment and re-serializes; an unparsable URL
// falls back to the raw string so it still participates in dedup.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	return u.String()
}

// mergePlans shallow-merges the descriptive fields of the first
// alternative and the primary plan, primary winning on collision. Seed
// queues and hubs are set by the caller afterwards.
func mergePlans(base, primary *Plan) *Plan {
	out := &Plan{}
	copyFields := func(src *Plan) {
		if src == nil {
			return
		}
		if src.Strategy != "" {
			out.Strategy = src.Strategy
		}
		for k, v := range src.Meta {
			if out.Meta == nil {
				out.Meta = map[string]interface{}{}
			}
			out.Meta[k] = v
		}
	}
	copyFields(base)
	copyFields(primary)
	return out
}
