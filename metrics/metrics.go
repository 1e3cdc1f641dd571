package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/megabridge/withdrawal-prover/types"
)

const (
	Namespace = "withdrawal_prover"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	StageDuration *prometheus.HistogramVec
	Outcomes      *prometheus.CounterVec
	RootVersions  *prometheus.CounterVec
	RPCErrors     *prometheus.CounterVec

	// EndpointErrors counts every failed call to a single MegaETH endpoint,
	// including the ones a fallback endpoint recovered from.
	EndpointErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	// Add Go module collectors
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())

	return &Metrics{
		StageDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "stage_duration_seconds",
				Help:      "time spent in each proving stage",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		Outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "outcomes_total",
				Help:      "proving attempts by final status",
			},
			[]string{"status"},
		),
		RootVersions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "root_version_matches_total",
				Help:      "verified output roots by version",
			},
			[]string{"version"},
		),
		RPCErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rpc_errors_total",
				Help:      "proving attempts that failed on a remote call, by method and kind",
			},
			[]string{"method", "kind"},
		),
		EndpointErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "endpoint_errors_total",
				Help:      "failed calls to individual MegaETH endpoints by method and kind",
			},
			[]string{"method", "kind"},
		),
		registry: reg,
	}
}

func (m *Metrics) ObserveStage(stage types.Stage, started time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(started).Seconds())
}

func (m *Metrics) RecordOutcome(status types.ProveStatus) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) RecordRootVersion(version types.RootVersion) {
	if m == nil {
		return
	}
	m.RootVersions.WithLabelValues(version.String()).Inc()
}

// RecordError counts err when it is a classified RPC failure.
func (m *Metrics) RecordError(err error) {
	if m == nil {
		return
	}
	var rpcErr *types.RPCError
	if errors.As(err, &rpcErr) {
		m.RPCErrors.WithLabelValues(rpcErr.Method, rpcErr.Kind.Error()).Inc()
	}
}

// RecordEndpointError counts a single endpoint's classified failure.
func (m *Metrics) RecordEndpointError(err error) {
	if m == nil {
		return
	}
	var rpcErr *types.RPCError
	if errors.As(err, &rpcErr) {
		m.EndpointErrors.WithLabelValues(rpcErr.Method, rpcErr.Kind.Error()).Inc()
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
