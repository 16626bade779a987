// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrate_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrate_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RatingUpserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrate_rating_upserts_total",
			Help: "Rating upserts by media kind and outcome (created, updated, rejected, failed).",
		},
		[]string{"kind", "outcome"},
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelrate_recommendation_duration_seconds",
			Help:    "Time spent assembling a recommendation feed.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"mode"},
	)

	RecommendationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelrate_recommendation_fallbacks_total",
			Help: "Recommendation requests answered with the highlighted feed.",
		},
	)

	SeededItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrate_seeded_items_total",
			Help: "Rows written by the seeder by entity.",
		},
		[]string{"entity"},
	)

	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelrate_tmdb_requests_total",
			Help: "Requests sent to the metadata provider by outcome.",
		},
		[]string{"outcome"},
	)
)

// Middleware records request count and latency keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// RegisterPoolStats exports connection-pool gauges read from stats on every
// scrape. It registers on the default registry and must be called once.
func RegisterPoolStats(stats func() *pgxpool.Stat) {
	gauge := func(name, help string, read func(*pgxpool.Stat) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			s := stats()
			if s == nil {
				return 0
			}
			return read(s)
		})
	}
	prometheus.MustRegister(
		gauge("reelrate_db_pool_acquired_conns", "Connections currently checked out of the pool.",
			func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("reelrate_db_pool_idle_conns", "Idle connections held by the pool.",
			func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("reelrate_db_pool_total_conns", "Total connections held by the pool.",
			func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
	)
}
