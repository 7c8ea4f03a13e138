package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveUpload(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveUpload(ResultUnique, 100, time.Millisecond)
	m.ObserveUpload(ResultDuplicate, 100, time.Millisecond)
	m.ObserveUpload(ResultFailed, 100, time.Millisecond)
	m.RaceLost()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(ResultUnique)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(ResultDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues(ResultFailed)))
	assert.Equal(t, 200.0, testutil.ToFloat64(m.bytesIngested))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.bytesDeduplicated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.raceLost))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveUpload(ResultUnique, 1, time.Second)
		m.RaceLost()
		m.ObserveDelete("deleted")
		m.ObserveRecompute(false)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/v1/files/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/files/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(
		m.requestCounter.WithLabelValues(http.MethodGet, "/api/v1/files/:id", "204")))
}
