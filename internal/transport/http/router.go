// Package httptransport assembles the HTTP surface. Handlers stay thin and
// delegate to domain services; this package only decides which middleware
// guards which route.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medcred/internal/platform/metrics"
	platformmw "medcred/internal/platform/middleware"
	"medcred/pkg/platform/middleware/request"
	"medcred/pkg/platform/middleware/requesttime"
)

// Registrar mounts a handler's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Deps lists everything the router wires. Auth nil disables service token
// checks on protected routes.
type Deps struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Auth     func(http.Handler) http.Handler
	Health   map[string]HealthCheck

	// Public routes authenticate themselves (webhook signatures).
	Public []Registrar
	// PublicLimit throttles public routes when set.
	PublicLimit func(http.Handler) http.Handler
	// Protected routes require a service token.
	Protected []Registrar
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(chimw.Recoverer)
	r.Use(platformmw.Observe(d.Metrics, d.Logger))

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", healthHandler(d.Health))

	r.Group(func(pub chi.Router) {
		if d.PublicLimit != nil {
			pub.Use(d.PublicLimit)
		}
		for _, reg := range d.Public {
			reg.Register(pub)
		}
	})

	r.Group(func(pr chi.Router) {
		if d.Auth != nil {
			pr.Use(d.Auth)
		}
		for _, reg := range d.Protected {
			reg.Register(pr)
		}
	})
	return r
}
