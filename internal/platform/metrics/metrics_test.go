package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestObservePass(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePass("lifecycle", 12, 1, 30*time.Millisecond)
	m.ObservePass("lifecycle", 3, 0, 10*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, `petguild_scheduler_passes_total{job="lifecycle"} 2`)
	assert.Contains(t, body, `petguild_scheduler_entities_total{job="lifecycle"} 15`)
	assert.Contains(t, body, `petguild_scheduler_entity_failures_total{job="lifecycle"} 1`)
}

func TestObserveOperation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("feed", "")
	m.ObserveOperation("feed", "too-soon")

	body := scrape(t, m)
	assert.Contains(t, body, `petguild_engine_operations_total{operation="feed",outcome="ok"} 1`)
	assert.Contains(t, body, `petguild_engine_operations_total{operation="feed",outcome="rejected"} 1`)
	assert.Contains(t, body, `petguild_engine_rejections_total{reason="too-soon"} 1`)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.WSConnections.Set(3)

	assert.Contains(t, scrape(t, m), "petguild_ws_connections 3")
}
