package server

import (
	"context"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/hubscout/hubscout/config"
	"github.com/hubscout/hubscout/internal/decision"
	"github.com/hubscout/hubscout/internal/fusion"
	"github.com/hubscout/hubscout/internal/planner"
	"github.com/hubscout/hubscout/internal/plugins/costmodel"
	"github.com/hubscout/hubscout/internal/plugins/countryhubs"
	"github.com/hubscout/hubscout/internal/plugins/hubgraph"
	"github.com/hubscout/hubscout/internal/policy"
	"github.com/hubscout/hubscout/internal/store"
	"github.com/hubscout/hubscout/internal/telemetry"
)

// PlannerService wires the cooperative host, the validator, plan fusion
// and the decision log into one entry point both the API and the
// scheduler call.
type PlannerService struct {
	cfg       *config.Config
	store     *store.Store
	metrics   *telemetry.Metrics
	broker    *telemetry.Broker
	decisions *decision.Logger
	validator *policy.Validator
	plugins   []planner.Plugin
	logger    *log.Logger
}

// PlanOutcome is the full result of one planning pass.
type PlanOutcome struct {
	RunID          string                   `json:"run_id"`
	Target         string                   `json:"target"`
	ElapsedMS      int64                    `json:"elapsed_ms"`
	BudgetExceeded bool                     `json:"budget_exceeded"`
	StatusReason   string                   `json:"status_reason"`
	Rationale      []string                 `json:"rationale"`
	Verdict        policy.Verdict           `json:"verdict"`
	Plan           *fusion.Plan             `json:"plan"`
	Stats          fusion.Stats             `json:"stats"`
	Confidence     float64                  `json:"confidence"`
	DecisionID     string                   `json:"decision_id"`
	Telemetry      []planner.TelemetryEvent `json:"telemetry,omitempty"`
}

// NewPlannerService builds the service. st may be nil; history-backed
// plugins then skip gracefully and nothing is persisted.
func NewPlannerService(cfg *config.Config, st *store.Store, metrics *telemetry.Metrics, broker *telemetry.Broker, logger *log.Logger) (*PlannerService, error) {
	validator, err := policy.NewValidator(cfg.Policy)
	if err != nil {
		return nil, err
	}
	svc := &PlannerService{
		cfg:       cfg,
		store:     st,
		metrics:   metrics,
		broker:    broker,
		validator: validator,
		plugins: []planner.Plugin{
			costmodel.New(),
			hubgraph.New(),
			countryhubs.New(),
		},
		logger: logger,
	}
	svc.decisions = decision.NewLogger(svc.sink(), planner.StdLogger{L: logger})
	return svc, nil
}

// Decisions exposes the arbitration log to the HTTP layer.
func (s *PlannerService) Decisions() *decision.Logger {
	return s.decisions
}

// Broker exposes the live event stream to the HTTP layer.
func (s *PlannerService) Broker() *telemetry.Broker {
	return s.broker
}

func (s *PlannerService) sink() planner.EmitFunc {
	var sinks []planner.EmitFunc
	if s.metrics != nil {
		sinks = append(sinks, s.metrics.Sink())
	}
	if s.broker != nil {
		sinks = append(sinks, s.broker.Sink())
	}
	return telemetry.MultiSink(sinks...)
}

// PlanSite runs one full planning pass for a site: cooperative host,
// safety verdict, fusion against the baseline plan, decision logging
// and best-effort persistence.
func (s *PlannerService) PlanSite(ctx context.Context, siteURL string, budgetMS int64) (*PlanOutcome, error) {
	target := &planner.Target{
		SiteURL: strings.TrimRight(siteURL, "/"),
		Host:    hostOf(siteURL),
	}

	opts := planner.HostOptions{
		MaxRounds: s.cfg.Planner.MaxRounds,
		Logger:    planner.StdLogger{L: s.logger},
		Sink:      s.sink(),
		DB:        s.dbAdapter(),
	}
	if budgetMS > 0 {
		d := time.Duration(budgetMS) * time.Millisecond
		opts.Budget = &d
	} else if b := s.cfg.Planner.Budget(); b != nil {
		opts.Budget = b
	}

	host, err := planner.NewHost(s.plugins, opts)
	if err != nil {
		return nil, err
	}
	res := host.Run(ctx, target)

	primary := &fusion.Plan{
		Strategy:     "reasoned",
		SeedQueue:    res.Blackboard.SeedQueue,
		ProposedHubs: res.Blackboard.ProposedHubs,
		Meta:         map[string]interface{}{"origin": "planner-host"},
	}
	if est, ok := res.Blackboard.Get(costmodel.BlackboardKey); ok {
		primary.Meta["cost_estimate"] = est
	}
	verdict := s.validator.Evaluate(primary.SeedQueue)

	fused := fusion.Fuse(fusion.Input{
		Primary:      primary,
		Alternatives: []*fusion.Plan{baselinePlan(target.SiteURL)},
		Validator:    &verdict,
		Floor:        s.cfg.Planner.Floor,
		MaxSeeds:     s.cfg.Planner.MaxSeeds,
	})

	outcome := &PlanOutcome{
		Target:         target.SiteURL,
		ElapsedMS:      res.Elapsed.Milliseconds(),
		BudgetExceeded: res.BudgetExceeded,
		StatusReason:   res.StatusReason,
		Rationale:      res.Blackboard.Rationale,
		Verdict:        verdict,
		Telemetry:      res.TelemetryEvents,
	}
	if fused != nil {
		outcome.Plan = fused.Plan
		outcome.Stats = fused.Stats
		outcome.Confidence = fused.Confidence
		s.sink()("fusion:completed", map[string]interface{}{
			"seeds": fused.Stats.TotalSeeds,
			"hubs":  fused.Stats.Hubs,
		})
	}

	action := "accept"
	if verdict.Has(policy.ReasonTrapRiskHigh) {
		action = "veto_primary"
	}
	rec := s.decisions.Log(decision.Record{
		Kind:      "fusion",
		Action:    action,
		Rationale: res.StatusReason,
		Details: map[string]interface{}{
			"target":     target.SiteURL,
			"stats":      outcome.Stats,
			"confidence": outcome.Confidence,
		},
	})
	outcome.DecisionID = rec.ID

	s.persist(ctx, outcome, rec, verdict.Reasons)
	return outcome, nil
}

// persist is best effort: planning output is useful even when the
// store is down, so failures are logged and swallowed.
func (s *PlannerService) persist(ctx context.Context, outcome *PlanOutcome, rec decision.Record, reasons []string) {
	if s.store == nil {
		return
	}
	runID, err := s.store.SaveRun(ctx, store.RunRecord{
		Target:         outcome.Target,
		ElapsedMS:      outcome.ElapsedMS,
		BudgetExceeded: outcome.BudgetExceeded,
		StatusReason:   outcome.StatusReason,
		Seeds:          outcome.Stats.TotalSeeds,
		Hubs:           outcome.Stats.Hubs,
		Confidence:     outcome.Confidence,
	})
	if err != nil {
		s.logger.Printf("warn: saving planning run failed: %v", err)
		return
	}
	outcome.RunID = runID
	if err := s.store.SaveDecision(ctx, runID, rec, reasons); err != nil {
		s.logger.Printf("warn: saving decision failed: %v", err)
	}
}

// dbAdapter hands the store to plugins, avoiding a typed nil interface
// when no store is configured.
func (s *PlannerService) dbAdapter() interface{} {
	if s.store == nil {
		return nil
	}
	return s.store
}

// baselinePlan is the zero-knowledge alternative: well-known entry
// points most sites expose. It competes with the reasoned plan during
// fusion rather than replacing it.
func baselinePlan(base string) *fusion.Plan {
	paths := []string{"", "/news", "/archive", "/sitemap.xml", "/index.html"}
	p := &fusion.Plan{
		Strategy: "baseline",
		Meta:     map[string]interface{}{"origin": "baseline"},
	}
	for _, path := range paths {
		p.SeedQueue = append(p.SeedQueue, planner.Seed{
			URL:    base + path,
			Reason: "well-known entry point",
		})
	}
	return p
}

func hostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return strings.TrimPrefix(u.Host, "www.")
	}
	return ""
}
