package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/oagw/gateway/adapters/metrics"
)

// RouterConfig holds the handlers and feature toggles the top-level router
// mounts. Fields left nil/false are simply not mounted.
type RouterConfig struct {
	Metrics       *metrics.Collector
	EnableOpenAPI bool
	OpenAPIPath   string // default: docs/openapi.json
}

// NewRouter assembles the gateway's HTTP surface: health checks, optional
// Prometheus /metrics and Swagger UI, the Management REST API, and the
// catch-all Proxy endpoint.
func NewRouter(mgmt *ManagementHandler, proxy *ProxyHandler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.EnableOpenAPI {
		path := cfg.OpenAPIPath
		if path == "" {
			path = "docs/openapi.json"
		}
		r.Get("/.well-known/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			http.ServeFile(w, r, path)
		})
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/.well-known/openapi.json")))
	}

	mgmt.Routes(r)
	proxy.Routes(r)

	return r
}
