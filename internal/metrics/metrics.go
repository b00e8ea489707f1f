package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/EternisAI/silo-runners/internal/agents"
	"github.com/EternisAI/silo-runners/internal/ledger"
	"github.com/EternisAI/silo-runners/internal/platform"
	"github.com/EternisAI/silo-runners/internal/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "silo_runners"

type Metrics struct {
	registry *prometheus.Registry

	ProvisionDuration *prometheus.HistogramVec
	ProvisionTotal    *prometheus.CounterVec
	DeprovisionTotal  *prometheus.CounterVec

	PlatformCallDuration *prometheus.HistogramVec

	CycleTotal       *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CycleTransitions *prometheus.CounterVec
	LastCycleSuccess prometheus.Gauge
}

// New registers every collector on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ProvisionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provision_duration_seconds",
			Help:      "Latency of provision requests, including the platform call.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"mode", "outcome"}),

		ProvisionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provision_total",
			Help:      "Provision requests by issuance mode and outcome.",
		}, []string{"mode", "outcome"}),

		DeprovisionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deprovision_total",
			Help:      "Deprovision requests by outcome.",
		}, []string{"outcome"}),

		PlatformCallDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "platform_call_duration_seconds",
			Help:      "Latency of upstream platform calls including retries.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op", "result"}),

		CycleTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_cycles_total",
			Help:      "Reconciliation cycles by result.",
		}, []string{"result"}),

		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_cycle_duration_seconds",
			Help:      "Duration of reconciliation cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		CycleTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_transitions_total",
			Help:      "Agent transitions planned by reconciliation, by kind.",
		}, []string{"kind"}),

		LastCycleSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful reconciliation cycle.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveProvision(mode agents.IssuanceMode, outcome ledger.Outcome, d time.Duration) {
	m.ProvisionDuration.WithLabelValues(string(mode), string(outcome)).Observe(d.Seconds())
	m.ProvisionTotal.WithLabelValues(string(mode), string(outcome)).Inc()
}

func (m *Metrics) ObserveDeprovision(outcome ledger.Outcome) {
	m.DeprovisionTotal.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObservePlatformCall(op string, d time.Duration, err error) {
	m.PlatformCallDuration.WithLabelValues(op, platformResult(err)).Observe(d.Seconds())
}

func (m *Metrics) ObserveCycle(res *reconcile.Result, err error) {
	if err != nil {
		m.CycleTotal.WithLabelValues("error").Inc()
	} else {
		m.CycleTotal.WithLabelValues("success").Inc()
		m.LastCycleSuccess.SetToCurrentTime()
	}
	if res == nil {
		return
	}
	m.CycleDuration.Observe(res.Duration.Seconds())
	m.CycleTransitions.WithLabelValues("updated").Add(float64(res.Updated))
	m.CycleTransitions.WithLabelValues("deleted").Add(float64(res.Deleted))
	m.CycleTransitions.WithLabelValues("remediated").Add(float64(res.Remediated))
	m.CycleTransitions.WithLabelValues("skipped").Add(float64(res.Skipped))
	m.CycleTransitions.WithLabelValues("errors").Add(float64(res.Errors))
}

func platformResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, platform.ErrNotFound):
		return "not_found"
	case platform.IsTransient(err):
		return "transient"
	default:
		return "error"
	}
}
