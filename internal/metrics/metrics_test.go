package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilReceiverIsNoop(t *testing.T) {
	var m *PrometheusMetrics
	assert.NotPanics(t, func() {
		m.RecordIndexerPoll("success", time.Second)
		m.RecordEventIndexed("mint", 1)
		m.RecordWebhookAttempt("mint", "success")
		m.RecordScreeningDecision(true, "blacklist")
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	})

	var mgr *Manager
	assert.Nil(t, mgr.GetPrometheusMetrics())
}

func TestManagerRegistriesAreIndependent(t *testing.T) {
	a := NewManager()
	b := NewManager()

	a.GetPrometheusMetrics().RecordEventIndexed("burn", 77)
	a.GetPrometheusMetrics().RecordScreeningDecision(false, "external")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.GetPrometheusMetrics().EventsIndexedTotal.WithLabelValues("burn")))
	assert.Equal(t, 77.0, testutil.ToFloat64(a.GetPrometheusMetrics().LatestIndexedSlot))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.GetPrometheusMetrics().ScreeningDecisionsTotal.WithLabelValues("denied", "external")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.GetPrometheusMetrics().LatestIndexedSlot))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewManager()
	m.GetPrometheusMetrics().RecordWebhookDelivery("seize", "exhausted")
	m.UpdateSystemMetrics()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `sss_webhook_deliveries_total{event_type="seize",result="exhausted"} 1`)
	assert.Contains(t, body, "sss_goroutines")
	assert.Contains(t, body, "go_goroutines")
}
