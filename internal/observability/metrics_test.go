package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.AddIngested("enrolment", 10)
	m.AddIngested("enrolment", 5)
	m.AddSkipped("biometric", 2)
	m.AddSkipped("biometric", 0)
	m.AddUnresolved("district", 3)

	assert.Equal(t, 15.0, testutil.ToFloat64(m.RecordsIngested.WithLabelValues("enrolment")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsSkipped.WithLabelValues("biometric")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.UnresolvedNames.WithLabelValues("district")))
}

func TestGauges(t *testing.T) {
	m := New()
	m.SetAnomalies(map[string]int{"critical": 2, "warning": 1})
	m.SetAnomalies(map[string]int{"critical": 4})
	m.SetCoverage("district", 0.8)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Anomalies.WithLabelValues("critical")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Anomalies), "reset drops stale severities")
	assert.Equal(t, 0.8, testutil.ToFloat64(m.GeoCoverage.WithLabelValues("district")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AddIngested("enrolment", 1)
		m.ObserveStage("merge", time.Second)
		m.SetAnomalies(map[string]int{"normal": 1})
		m.SetCoverage("state", 1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveStage("merge", 20*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "region_insights_stage_duration_seconds")
}
