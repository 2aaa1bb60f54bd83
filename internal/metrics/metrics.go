// Package metrics exposes valve controller counters and gauges to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HeitererGarten/fao56-pump-control/internal/logic"
)

// Command results used as the "result" label.
const (
	ResultAccepted   = "accepted"
	ResultMalformed  = "malformed"
	ResultWrongID    = "wrong_device"
	ResultOutOfRange = "out_of_range"
	ResultUnmatched  = "unmatched"
)

// Collector owns the controller's metrics. A nil *Collector is valid and
// records nothing.
type Collector struct {
	registry    *prometheus.Registry
	commands    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	pumpActive  prometheus.Gauge
	remaining   prometheus.Gauge
	allowed     prometheus.Gauge
	phase       *prometheus.GaugeVec
}

// New creates a Collector registered on its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "commands_total",
			Help:      "Inbound commands by signal and result.",
		}, []string{"signal", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "transitions_total",
			Help:      "State transitions by outcome.",
		}, []string{"outcome", "from", "to"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pump",
			Name:      "status_publishes_total",
			Help:      "Status publish attempts by result.",
		}, []string{"result"}),
		pumpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pump",
			Name:      "active",
			Help:      "1 while the relay is energized.",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pump",
			Name:      "remaining_seconds",
			Help:      "Time left in the current run.",
		}),
		allowed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pump",
			Name:      "irrigation_allowed",
			Help:      "1 while the time window permits operation.",
		}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pump",
			Name:      "phase",
			Help:      "1 for the current controller phase, 0 otherwise.",
		}, []string{"phase"}),
	}

	c.registry.MustRegister(
		c.commands,
		c.transitions,
		c.publishes,
		c.pumpActive,
		c.remaining,
		c.allowed,
		c.phase,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Command counts one inbound command.
func (c *Collector) Command(signal, result string) {
	if c == nil {
		return
	}
	if signal == "" {
		signal = "unknown"
	}
	c.commands.WithLabelValues(signal, result).Inc()
}

// Transition counts one state transition.
func (c *Collector) Transition(r logic.Result) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(r.Outcome), r.From.String(), r.To.String()).Inc()
}

// Publish counts one status publish attempt.
func (c *Collector) Publish(err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.publishes.WithLabelValues(result).Inc()
}

// Observe sets the gauges from the current state.
func (c *Collector) Observe(s logic.State, allowed bool) {
	if c == nil {
		return
	}
	c.pumpActive.Set(boolToFloat(s.PumpActive))
	c.remaining.Set(float64(s.RemainingMs) / 1000)
	c.allowed.Set(boolToFloat(allowed))
	for _, p := range []logic.Phase{logic.PhaseIdle, logic.PhaseIrrigating, logic.PhaseEmergencyHalt, logic.PhaseFault} {
		c.phase.WithLabelValues(p.String()).Set(boolToFloat(p == s.Phase))
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
