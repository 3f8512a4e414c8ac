package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the orchestrator's Prometheus metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	ParticipantsSpawned    prometheus.Counter
	SpawnFailures          prometheus.Counter
	ParticipantsTerminated prometheus.Counter
	PeersReady             prometheus.Counter
	AssemblyDuration       prometheus.Histogram
	ScenarioState          *prometheus.GaugeVec
}

// NewCollector registers the orchestrator metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	spawned, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dfl_participants_spawned_total",
		Help: "Participant processes the launcher accepted.",
	}), "dfl_participants_spawned_total")
	if err != nil {
		return nil, err
	}
	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dfl_spawn_failures_total",
		Help: "Participant launches the launcher rejected.",
	}), "dfl_spawn_failures_total")
	if err != nil {
		return nil, err
	}
	terminated, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dfl_participants_terminated_total",
		Help: "Participant processes killed during shutdown.",
	}), "dfl_participants_terminated_total")
	if err != nil {
		return nil, err
	}
	ready, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dfl_peers_ready_total",
		Help: "Peers observed accepting connections before the start node launched.",
	}), "dfl_peers_ready_total")
	if err != nil {
		return nil, err
	}

	assembly := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dfl_assembly_duration_seconds",
		Help:    "Time spent loading, generating and assembling a scenario.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})
	if err := reg.Register(assembly); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(prometheus.Histogram)
		if !ok {
			return nil, fmt.Errorf("collector dfl_assembly_duration_seconds already registered with incompatible type")
		}
		assembly = existing
	}

	state, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dfl_scenario_state",
		Help: "1 for the current state of the orchestration run, 0 otherwise.",
	}, []string{"state"}), "dfl_scenario_state")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:               gatherer,
		ParticipantsSpawned:    spawned,
		SpawnFailures:          failures,
		ParticipantsTerminated: terminated,
		PeersReady:             ready,
		AssemblyDuration:       assembly,
		ScenarioState:          state,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSpawn(err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.SpawnFailures.Inc()
		return
	}
	c.ParticipantsSpawned.Inc()
}

func (c *Collector) RecordTerminated(count int) {
	if c == nil || count <= 0 {
		return
	}
	c.ParticipantsTerminated.Add(float64(count))
}

func (c *Collector) RecordPeerReady() {
	if c == nil {
		return
	}
	c.PeersReady.Inc()
}

func (c *Collector) ObserveAssembly(duration time.Duration) {
	if c == nil {
		return
	}
	c.AssemblyDuration.Observe(duration.Seconds())
}

// SetState marks current as the active state among all known states.
func (c *Collector) SetState(current string, all []string) {
	if c == nil {
		return
	}
	for _, state := range all {
		value := 0.0
		if state == current {
			value = 1
		}
		c.ScenarioState.WithLabelValues(state).Set(value)
	}
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
