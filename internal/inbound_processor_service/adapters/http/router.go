package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the webhook dispatcher, the authenticated instance API and
// event stream, health and metrics. Webhooks carry their own provider
// verification and stay outside APIAuth. A nil auth refuses every API request.
func NewRouter(webhooks *WebhookHandler, auth *APIAuth, api *APIHandler, events *EventStreamHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(chi_middleware.RequestID)
	r.Use(chi_middleware.RealIP)
	r.Use(chi_middleware.Recoverer)
	r.Use(PrometheusMetricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	r.Handle("/metrics", promhttp.Handler())

	webhooks.RegisterRoutes(r)

	if api == nil && events == nil {
		return r
	}
	if auth == nil {
		auth = NewAPIAuth("", "", slog.Default())
	}
	r.Route("/api/instances", func(r chi.Router) {
		r.Use(auth.Middleware)
		if api != nil {
			api.RegisterRoutes(r)
		}
		if events != nil {
			events.RegisterRoutes(r)
		}
	})
	return r
}
