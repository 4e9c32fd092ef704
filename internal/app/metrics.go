package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Reload results.
const (
	reloadOK     = "ok"
	reloadFailed = "failed"
)

// newRegistry creates the process registry with the Go runtime collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// appMetrics holds application level metrics.
type appMetrics struct {
	reloads *prometheus.CounterVec
	info    *prometheus.GaugeVec
}

func newAppMetrics(reg prometheus.Registerer, version string) *appMetrics {
	m := &appMetrics{
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cuecontrol",
			Name:      "config_reloads_total",
			Help:      "Configuration reloads by result.",
		}, []string{"result"}),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cuecontrol",
			Name:      "build_info",
			Help:      "Always 1, labelled with the running version.",
		}, []string{"version"}),
	}
	reg.MustRegister(m.reloads, m.info)
	m.info.WithLabelValues(version).Set(1)
	return m
}
