package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndServe(t *testing.T) {
	registry := NewRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "test",
		Name:      "events_total",
		Help:      "Test counter",
	})
	require.NoError(t, registry.Register("bus", "events", counter))
	counter.Add(3)

	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "feed_watchdog_test_events_total 3")
}

func TestRegisterDuplicateFails(t *testing.T) {
	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total"})

	require.NoError(t, registry.Register("svc", "dup", counter))
	assert.Error(t, registry.Register("svc", "dup", counter))
}

func TestUnregister(t *testing.T) {
	registry := NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "gone_total"})

	require.NoError(t, registry.Register("svc", "gone", counter))
	assert.True(t, registry.Unregister("svc", "gone"))
	assert.False(t, registry.Unregister("svc", "gone"))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var registry *Registry

	assert.NoError(t, registry.Register("svc", "x", prometheus.NewCounter(prometheus.CounterOpts{Name: "x_total"})))
	assert.False(t, registry.Unregister("svc", "x"))
	assert.NotNil(t, registry.Handler())
}
