package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail", Name: "rides_created_total", Help: "Total rides created"})
	RidesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail", Name: "rides_expired_total", Help: "Total rides expired with no driver"})
	DriversOnline     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hail", Name: "drivers_online", Help: "Number of online drivers"})

	AcceptAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "accept_attempts_total", Help: "Driver accept attempts by outcome"},
		[]string{"outcome"},
	)

	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "feed_events_total", Help: "Change feed events published"},
		[]string{"op"},
	)
	FeedDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hail", Name: "feed_dropped_total", Help: "Feed events dropped on slow subscribers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hail", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hail",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
