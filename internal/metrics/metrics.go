package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bandou_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_rate_limited_total",
			Help: "Requests rejected by the token bucket limiter",
		},
		[]string{"policy"},
	)

	// Domain
	RatingWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_rating_writes_total",
			Help: "Rating writes by kind (create, update, delete)",
		},
		[]string{"kind"},
	)

	ScoreRecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bandou_score_recompute_seconds",
			Help:    "Time spent recomputing a movie score inside the rating transaction",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	RecommendationsServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_recommendations_total",
			Help: "Recommendation responses by mode",
		},
		[]string{"mode"}, // anonymous, history, cold_start
	)

	// Outbound
	ImageCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_image_cache_total",
			Help: "Image proxy cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bandou_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	ScrapedMovies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_scraper_movies_total",
			Help: "Scraper outcomes per detail page",
		},
		[]string{"outcome"}, // inserted, skipped, failed
	)

	ActivityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bandou_activity_events_total",
			Help: "Activity events published or consumed",
		},
		[]string{"direction", "type", "result"},
	)
)

// RecordAPIRequest observes one finished HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
