package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordersUpdateCounters(t *testing.T) {
	before := testutil.ToFloat64(tradesTotal.WithLabelValues("BTC-USD", "signal"))
	RecordTrade("BTC-USD", "signal")
	RecordTrade("BTC-USD", "signal")
	assert.Equal(t, before+2, testutil.ToFloat64(tradesTotal.WithLabelValues("BTC-USD", "signal")))

	before = testutil.ToFloat64(skippedSignals.WithLabelValues("unknown"))
	RecordSkippedSignal("")
	assert.Equal(t, before+1, testutil.ToFloat64(skippedSignals.WithLabelValues("unknown")))

	before = testutil.ToFloat64(barsProcessed.WithLabelValues("ETH-USD"))
	RecordBars("ETH-USD", 0)
	RecordBars("ETH-USD", 25)
	assert.Equal(t, before+25, testutil.ToFloat64(barsProcessed.WithLabelValues("ETH-USD")))

	RecordFinalEquity("s1", 10500)
	assert.Equal(t, 10500.0, testutil.ToFloat64(finalEquity.WithLabelValues("s1")))
}

func TestServerRoutes(t *testing.T) {
	RecordRun("completed", 150*time.Millisecond)
	RecordEvaluationError("s1")

	s := NewServer("127.0.0.1:0")
	require.NotNil(t, s)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cryptosim_runs_total{status="completed"}`))
	assert.True(t, strings.Contains(body, "cryptosim_run_duration_seconds_bucket"))
	assert.True(t, strings.Contains(body, `cryptosim_evaluation_errors_total{strategy="s1"}`))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	s.SetReady(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisabledServerIsNil(t *testing.T) {
	s := NewServer("")
	assert.Nil(t, s)
	s.SetReady(true)
	assert.NoError(t, s.Shutdown(context.Background()))
	_, open := <-s.Start()
	assert.False(t, open)
}
