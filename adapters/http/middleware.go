package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/oagw/gateway/adapters/metrics"
)

// NewLoggingMiddleware logs each request at debug level, skipping health
// and metrics endpoints to keep the access log focused on gateway traffic.
func NewLoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if r.URL.Path == "/health" || r.URL.Path == "/health/live" || r.URL.Path == "/health/ready" || r.URL.Path == "/metrics" {
				return
			}
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware tracks in-flight proxy requests. Per-request outcome
// counters are recorded by app.DataPlane itself, which knows the tenant and
// alias; this middleware only covers what's visible at the transport edge.
func NewMetricsMiddleware(m *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, ProxyPathPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			m.ProxyRequestsInFlight.Inc()
			defer m.ProxyRequestsInFlight.Dec()
			next.ServeHTTP(w, r)
		})
	}
}
