package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wagerquiz",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wagerquiz",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	feedSignals = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagerquiz",
		Subsystem: "feed",
		Name:      "signals_total",
		Help:      "Room change signals received from the change channel.",
	})

	feedDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wagerquiz",
		Subsystem: "feed",
		Name:      "deliveries_total",
		Help:      "Room change messages queued on websocket connections.",
	})

	feedConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "wagerquiz",
		Subsystem: "feed",
		Name:      "connections",
		Help:      "Open room feed websockets.",
	})
)

// instrument records request counts and latency under the matched route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
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
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
