package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Dispatch outcomes recorded by Metrics.
const (
	ResultMatched   = "matched"
	ResultUnmatched = "unmatched"
	ResultMalformed = "malformed"

	ResultRegistered = "registered"
	ResultConflict   = "conflict"
	ResultInvalid    = "invalid"
)

// Metrics collects dispatcher statistics as Prometheus collectors.
type Metrics struct {
	dispatches    *prometheus.CounterVec
	registrations *prometheus.CounterVec
	evictions     prometheus.Counter
	releases      prometheus.Counter
}

// NewMetrics creates the dispatcher collectors and registers them on reg.
// A nil reg leaves the collectors unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Incoming messages by identifier and outcome.",
		}, []string{"identifier", "result"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "dispatch",
			Name:      "registrations_total",
			Help:      "Handler registrations by outcome.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "dispatch",
			Name:      "evictions_total",
			Help:      "Handlers dropped after being garbage collected.",
		}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Subsystem: "dispatch",
			Name:      "releases_total",
			Help:      "Registrations released explicitly.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.dispatches, m.registrations, m.evictions, m.releases)
	}
	return m
}

// RecordDispatch counts one incoming message.
func (m *Metrics) RecordDispatch(id Identifier, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(string(id), result).Inc()
}

// RecordRegistration counts one registration attempt.
func (m *Metrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// RecordEviction counts one garbage-collection eviction.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

// RecordRelease counts one explicit release.
func (m *Metrics) RecordRelease() {
	if m == nil {
		return
	}
	m.releases.Inc()
}
