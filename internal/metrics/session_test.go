package metrics_test

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/robohub-inference/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStateChange(t *testing.T) {
	before := metrics.GetSessionsInState("ready")
	metrics.RecordStateChange("", "ready")
	assert.Equal(t, before+1, metrics.GetSessionsInState("ready"))
	metrics.RecordStateChange("ready", "running")
	assert.Equal(t, before, metrics.GetSessionsInState("ready"))
	metrics.RecordStateChange("running", "")
}

func TestRecordInference(t *testing.T) {
	okBefore := metrics.GetCounterValue(metrics.InferenceTotal.WithLabelValues("act", "ok"))
	errBefore := metrics.GetCounterValue(metrics.InferenceTotal.WithLabelValues("act", "error"))

	metrics.RecordInference("act", 20*time.Millisecond, nil)
	metrics.RecordInference("act", time.Second, errors.New("boom"))

	assert.Equal(t, okBefore+1, metrics.GetCounterValue(metrics.InferenceTotal.WithLabelValues("act", "ok")))
	assert.Equal(t, errBefore+1, metrics.GetCounterValue(metrics.InferenceTotal.WithLabelValues("act", "error")))
}

func TestPromhttpExposure(t *testing.T) {
	metrics.RecordTickError(metrics.TickErrorSend)

	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `robohub_tick_errors_total{kind="send"}`))
}
