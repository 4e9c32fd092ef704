package control

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Handler outcomes recorded by Metrics.
const (
	ResultOK       = "ok"
	ResultFailed   = "failed"
	ResultDisabled = "disabled"
)

// Metrics counts controller activity.
type Metrics struct {
	actions  *prometheus.CounterVec
	events   *prometheus.CounterVec
	bindings prometheus.Gauge
}

// NewMetrics creates the controller collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "control",
			Name:      "actions_total",
			Help:      "Handler invocations by action and outcome.",
		}, []string{"action", "result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "control",
			Name:      "events_total",
			Help:      "Incoming events by protocol and outcome.",
		}, []string{"protocol", "result"}),
		bindings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cuecontrol",
			Subsystem: "control",
			Name:      "bindings",
			Help:      "Bindings currently loaded.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.actions, m.events, m.bindings)
	}
	return m
}

func (m *Metrics) recordAction(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}

func (m *Metrics) recordEvent(protocol, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(protocol, result).Inc()
}

func (m *Metrics) setBindings(n int) {
	if m == nil {
		return
	}
	m.bindings.Set(float64(n))
}
