// Package metrics Prometheus 指标
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 视图计算
	ViewRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripgazer_view_requests_total",
			Help: "Total number of trip view computations by result status",
		},
		[]string{"status"},
	)

	ViewDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tripgazer_view_duration_seconds",
			Help:    "Duration of trip view computations in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ViewSkippedTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripgazer_view_skipped_trips_total",
			Help: "Total number of malformed trip records skipped by the view",
		},
	)

	ViewStaleResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripgazer_view_stale_results_total",
			Help: "Total number of view results discarded because a newer request superseded them",
		},
	)

	ViewStateCorrupt = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tripgazer_viewstate_corrupt_total",
			Help: "Total number of corrupt persisted view state entries discarded",
		},
	)

	// HTTP API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripgazer_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripgazer_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// 数据库
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tripgazer_db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripgazer_db_query_errors_total",
			Help: "Total number of database query errors",
		},
		[]string{"operation"},
	)

	// 逆地理编码
	GeocodeResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tripgazer_geocode_resolved_total",
			Help: "Total number of trips processed by the geocode backfill",
		},
		[]string{"result"},
	)

	GeocodePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripgazer_geocode_pending",
			Help: "Number of trips waiting for reverse geocoding",
		},
	)

	// WebSocket
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tripgazer_ws_clients",
			Help: "Number of connected WebSocket clients",
		},
	)
)

// RecordView 记录一次视图计算
func RecordView(status string, duration time.Duration, skipped int) {
	ViewRequests.WithLabelValues(status).Inc()
	ViewDuration.Observe(duration.Seconds())
	if skipped > 0 {
		ViewSkippedTrips.Add(float64(skipped))
	}
}

// RecordStaleView 记录被丢弃的过期视图结果
func RecordStaleView() {
	ViewStaleResults.Inc()
}

// RecordCorruptViewState 记录被丢弃的损坏视图状态
func RecordCorruptViewState() {
	ViewStateCorrupt.Inc()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordGeocode 记录一次逆地理编码
func RecordGeocode(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	GeocodeResolved.WithLabelValues(result).Inc()
}
