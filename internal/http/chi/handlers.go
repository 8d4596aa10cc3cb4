package chi

import (
	"net/http"
	"time"

	"github.com/fleetgrid/webhooks/events"
	"github.com/fleetgrid/webhooks/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
)

// Handlers sets up the management API routes
func Handlers(service webhook.UseCase, router *webhook.Router, catalog *events.Catalog, metricsHandler http.Handler) *chi.Mux {
	logger := httplog.NewLogger("webhook-api", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		// endpoint registration (collaborator boundary for the admin UI)
		r.Post("/endpoints", postEndpoint(service).ServeHTTP)
		r.Get("/endpoints", getEndpoints(service).ServeHTTP)
		r.Get("/endpoints/{id}", getEndpoint(service).ServeHTTP)
		r.Put("/endpoints/{id}", putEndpoint(service).ServeHTTP)
		r.Delete("/endpoints/{id}", deleteEndpoint(service).ServeHTTP)

		// delivery history and operator actions
		r.Get("/endpoints/{id}/deliveries", getDeliveries(service).ServeHTTP)
		r.Post("/endpoints/{id}/test", postTestDelivery(service).ServeHTTP)
		r.Post("/deliveries/{id}/retry", postRetryDelivery(service).ServeHTTP)

		// event intake from domain modules
		r.Post("/events", postEvent(router).ServeHTTP)
		r.Get("/events", getEventTypes(catalog).ServeHTTP)
	})

	return r
}
