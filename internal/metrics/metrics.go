// Package metrics exposes command, ERLC and refresher metrics over HTTP.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "warden"

// Metrics owns the collectors and the registry they are exported from.
type Metrics struct {
	Registry *prometheus.Registry

	commands   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	erlc       *prometheus.CounterVec
	refreshers prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Dispatched commands by name, kind and outcome.",
		}, []string{"command", "kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Time spent running a command handler.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		erlc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "erlc_requests_total",
			Help:      "ERLC API requests by endpoint and status code; 0 means no response.",
		}, []string{"endpoint", "status"}),
		refreshers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "erlc_refreshers_active",
			Help:      "Status notices currently being refreshed.",
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.commands, m.duration, m.erlc, m.refreshers,
	)
	return m
}

// ObserveCommand records one dispatched command.
func (m *Metrics) ObserveCommand(name, kind, outcome string, took time.Duration) {
	m.commands.WithLabelValues(name, kind, outcome).Inc()
	if took > 0 {
		m.duration.WithLabelValues(kind).Observe(took.Seconds())
	}
}

// ObserveERLC records one ERLC API call.
func (m *Metrics) ObserveERLC(endpoint string, status int) {
	m.erlc.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// Refreshers is the active-refresher gauge.
func (m *Metrics) Refreshers() prometheus.Gauge { return m.refreshers }
