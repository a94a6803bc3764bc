package client

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/grafana/cqlclient/pkg/driver"
	"github.com/grafana/cqlclient/pkg/driver/drivertest"
)

func TestCallbackBridge_CompletesOnce(t *testing.T) {
	s := New(newCluster(t), drivertest.NewEngine(), prometheus.NewRegistry(), nil)
	s.begin()

	var calls int
	b := newCallbackBridge(s, func(r *Result) {
		calls++
		require.Equal(t, 1, r.RowCount())
	})

	f := driver.NewFuture[*driver.Rows]()
	f.Resolve(userRows(), nil)
	b.complete(f)
	b.complete(f)

	require.Equal(t, 1, calls)
	require.Equal(t, int64(0), s.InFlight())
	require.Equal(t, 0.0, testutil.ToFloat64(s.metrics.inFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(s.metrics.requests.WithLabelValues(modeAsync, statusSuccess)))
	require.True(t, f.Freed())
}
