package cluster

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gocql/gocql"
	"github.com/prometheus/client_golang/prometheus"

	util_metrics "github.com/grafana/cqlclient/pkg/util/metrics"
)

// observer records gocql query and connect attempts.
type observer struct {
	queryDuration   *prometheus.HistogramVec
	connectAttempts *prometheus.CounterVec
	logger          log.Logger
}

func newObserver(r prometheus.Registerer, logger log.Logger) *observer {
	return &observer{
		queryDuration: util_metrics.MustRegisterOrGet(r, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cqlclient",
			Subsystem: "cluster",
			Name:      "query_duration_seconds",
			Help:      "Time spent in individual query attempts, per host.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}, []string{"host", "status"})),
		connectAttempts: util_metrics.MustRegisterOrGet(r, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cqlclient",
			Subsystem: "cluster",
			Name:      "connect_attempts_total",
			Help:      "Connection attempts to cluster hosts.",
		}, []string{"host", "status"})),
		logger: logger,
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func hostOf(h *gocql.HostInfo) string {
	if h == nil {
		return "unknown"
	}
	return h.ConnectAddress().String()
}

func (o *observer) ObserveQuery(_ context.Context, q gocql.ObservedQuery) {
	host := hostOf(q.Host)
	o.queryDuration.WithLabelValues(host, statusOf(q.Err)).Observe(q.End.Sub(q.Start).Seconds())
	if q.Err != nil {
		level.Debug(o.logger).Log("msg", "query attempt failed", "host", host, "keyspace", q.Keyspace, "statement", q.Statement, "err", q.Err)
	}
}

func (o *observer) ObserveConnect(c gocql.ObservedConnect) {
	host := hostOf(c.Host)
	o.connectAttempts.WithLabelValues(host, statusOf(c.Err)).Inc()
	if c.Err != nil {
		level.Warn(o.logger).Log("msg", "connect attempt failed", "host", host, "duration", c.End.Sub(c.Start), "err", c.Err)
	}
}
