// Package metrics holds the prometheus collectors for ingestion, deduplication
// and the HTTP surface. All recorders are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "filevault"

// Upload outcomes used as the result label
const (
	ResultUnique    = "unique"
	ResultDuplicate = "duplicate"
	ResultFailed    = "failed"
)

// Metrics 指标集合
type Metrics struct {
	uploads           *prometheus.CounterVec
	bytesIngested     prometheus.Counter
	bytesDeduplicated prometheus.Counter
	raceLost          prometheus.Counter
	uploadDuration    prometheus.Histogram
	deletes           *prometheus.CounterVec
	statsRecompute    *prometheus.CounterVec

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		uploads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Uploads by outcome (unique, duplicate, failed)",
		}, []string{"result"}),
		bytesIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_ingested_total",
			Help:      "Bytes received from clients, duplicates included",
		}),
		bytesDeduplicated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "bytes_deduplicated_total",
			Help:      "Bytes not stored because the content already existed",
		}),
		raceLost: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "race_lost_total",
			Help:      "Uploads that lost the owner race and were stored as duplicates",
		}),
		uploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "upload_duration_seconds",
			Help:      "Time from first byte spooled to record committed",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		deletes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "files",
			Name:      "deletes_total",
			Help:      "Delete requests by outcome",
		}, []string{"result"}),
		statsRecompute: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "recompute_total",
			Help:      "Statistics recomputations by outcome",
		}, []string{"result"}),
		requestCounter: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}, []string{"method", "path", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "path"}),
	}
}

// ObserveUpload records one finished upload
func (m *Metrics) ObserveUpload(result string, size int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
	if result == ResultFailed {
		return
	}
	m.bytesIngested.Add(float64(size))
	if result == ResultDuplicate {
		m.bytesDeduplicated.Add(float64(size))
	}
	m.uploadDuration.Observe(elapsed.Seconds())
}

// RaceLost counts an upload demoted to duplicate after a unique violation
func (m *Metrics) RaceLost() {
	if m == nil {
		return
	}
	m.raceLost.Inc()
}

// ObserveDelete records a delete outcome (deleted, conflict, not_found, failed)
func (m *Metrics) ObserveDelete(result string) {
	if m == nil {
		return
	}
	m.deletes.WithLabelValues(result).Inc()
}

// ObserveRecompute records a statistics recompute outcome
func (m *Metrics) ObserveRecompute(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.statsRecompute.WithLabelValues(result).Inc()
}

// Middleware 返回 Gin 中间件，按路由模板而非原始路径打标签
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.requestCounter.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
