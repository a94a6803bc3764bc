package client

import (
	"github.com/prometheus/client_golang/prometheus"

	util_metrics "github.com/grafana/cqlclient/pkg/util/metrics"
)

const (
	modeSync  = "sync"
	modeAsync = "async"

	statusSuccess = "success"
	statusError   = "error"
	statusPending = "pending"
)

// metrics are shared by every session registered with the same registerer.
type metrics struct {
	inFlight        prometheus.Gauge
	requests        *prometheus.CounterVec
	lateCompletions prometheus.Counter
	callbackPanics  prometheus.Counter
	connectDuration *prometheus.HistogramVec
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		inFlight: util_metrics.MustRegisterOrGet(r, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cqlclient",
			Name:      "inflight_requests",
			Help:      "Requests dispatched by the session that have not completed yet.",
		})),
		requests: util_metrics.MustRegisterOrGet(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlclient",
			Name:      "requests_total",
			Help:      "Requests executed by the session, by execution mode and outcome.",
		}, []string{"mode", "status"})),
		lateCompletions: util_metrics.MustRegisterOrGet(r, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cqlclient",
			Name:      "late_completions_total",
			Help:      "Synchronous requests that completed after their caller stopped waiting.",
		})),
		callbackPanics: util_metrics.MustRegisterOrGet(r, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cqlclient",
			Name:      "callback_panics_total",
			Help:      "Asynchronous completion callbacks that panicked.",
		})),
		connectDuration: util_metrics.MustRegisterOrGet(r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqlclient",
			Name:      "connect_duration_seconds",
			Help:      "Time spent connecting to the cluster.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"})),
	}
}

func (m *metrics) observeResult(mode string, r *Result) {
	status := statusSuccess
	switch {
	case r.Pending():
		status = statusPending
	case r.IsError():
		status = statusError
	}
	m.requests.WithLabelValues(mode, status).Inc()
}
