package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.ReconnectAttempted()
	m.ReconnectAttempted()
	m.Reconnected()
	m.SetConnected(true)
	m.EventConsumed("ORDER_MATCHED", "ack", time.Millisecond)
	m.EventConsumed("", "dropped", 0)
	m.EventPublished("order.matched", nil)
	m.EventPublished("order.matched", errors.New("nack"))
	m.PeerCall("lookup_driver", "not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reconnectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumed.WithLabelValues("ORDER_MATCHED", "ack")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.consumed.WithLabelValues("unknown", "dropped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("order.matched", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.peerCalls.WithLabelValues("lookup_driver", "not_found")))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.connected))
}

func TestNewTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	require.NoError(t, err)
	second, err := New(reg)
	require.NoError(t, err)

	first.Reconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.reconnects))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ReconnectAttempted()
		m.SetConnected(true)
		m.EventConsumed("X", "ack", time.Second)
		m.PeerCall("op", "found")
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.Reconnected()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "broker_reconnects_total 1")
}
