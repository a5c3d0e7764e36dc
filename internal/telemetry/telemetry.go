// Package telemetry exports planner activity as Prometheus metrics and
// fans live events out to streaming subscribers. Both surfaces plug into
// the host through its emit sink.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hubscout/hubscout/internal/planner"
)

// Metrics holds the planner's Prometheus collectors.
type Metrics struct {
	RunsStarted    prometheus.Counter
	RunsCompleted  *prometheus.CounterVec
	PluginFailures *prometheus.CounterVec
	RunDuration    prometheus.Histogram
	FusedSeeds     prometheus.Histogram
}

// NewMetrics registers the planner collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "hubscout",
			Name:      "planner_runs_started_total",
			Help:      "Planning runs started.",
		}),
		RunsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hubscout",
			Name:      "planner_runs_completed_total",
			Help:      "Planning runs completed, by budget outcome.",
		}, []string{"outcome"}),
		PluginFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hubscout",
			Name:      "planner_plugin_failures_total",
			Help:      "Isolated plugin failures, by plugin and phase.",
		}, []string{"plugin", "phase"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hubscout",
			Name:      "planner_run_duration_ms",
			Help:      "Wall-clock duration of planning runs in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2000, 3500, 5000, 10000},
		}),
		FusedSeeds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hubscout",
			Name:      "planner_fused_seeds",
			Help:      "Seeds per fused plan.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 200},
		}),
	}
}

// Sink adapts the metrics to the host's emit hook.
func (m *Metrics) Sink() planner.EmitFunc {
	return func(eventType string, data interface{}) {
		fields, _ := data.(map[string]interface{})
		switch eventType {
		case "planner:run_started":
			m.RunsStarted.Inc()
		case "planner:run_completed":
			outcome := "ok"
			if b, _ := fields["budget_exceeded"].(bool); b {
				outcome = "budget_exceeded"
			}
			m.RunsCompleted.WithLabelValues(outcome).Inc()
			if ms, ok := fields["elapsed_ms"].(int64); ok {
				m.RunDuration.Observe(float64(ms))
			}
		case "planner:plugin_failed":
			plugin, _ := fields["plugin"].(string)
			phase, _ := fields["phase"].(string)
			m.PluginFailures.WithLabelValues(plugin, phase).Inc()
		case "fusion:completed":
			if seeds, ok := fields["seeds"].(int); ok {
				m.FusedSeeds.Observe(float64(seeds))
			}
		}
	}
}

// Broker fans events out to SSE subscribers. Slow subscribers drop
// events rather than block the planning thread.
type Broker struct {
	mu   sync.Mutex
	subs map[chan planner.TelemetryEvent]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: map[chan planner.TelemetryEvent]struct{}{}}
}

// Subscribe returns a buffered event channel and a cancel function that
// must be called when the subscriber goes away.
func (b *Broker) Subscribe() (<-chan planner.TelemetryEvent, func()) {
	ch := make(chan planner.TelemetryEvent, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Broker) Publish(ev planner.TelemetryEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Sink adapts the broker to the host's emit hook.
func (b *Broker) Sink() planner.EmitFunc {
	return func(eventType string, data interface{}) {
		b.Publish(planner.TelemetryEvent{Type: eventType, Data: data})
	}
}

// MultiSink forwards each emission to every sink in order.
func MultiSink(sinks ...planner.EmitFunc) planner.EmitFunc {
	return func(eventType string, data interface{}) {
		for _, s := range sinks {
			if s != nil {
				s(eventType, data)
			}
		}
	}
}
