// Package http assembles the chi router from the feature handlers.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	donorhandler "lifelink/internal/donor/handler"
	notificationhandler "lifelink/internal/notification/handler"
	"lifelink/internal/platform/metrics"
	"lifelink/internal/platform/middleware"
	requesthandler "lifelink/internal/request/handler"
	"lifelink/internal/stats"
	"lifelink/pkg/platform/httputil"
)

// Deps carries everything the router mounts.
type Deps struct {
	Logger        *slog.Logger
	Metrics       *metrics.Metrics
	JWTValidator  middleware.JWTValidator
	Donors        *donorhandler.Handler
	Requests      *requesthandler.Handler
	Notifications *notificationhandler.Handler
	Stats         *stats.Handler
	HealthChecks  map[string]func() error
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.LatencyMiddleware(d.Metrics))

	r.Get("/healthz", healthz(d.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		// Public read surface.
		d.Stats.Register(r)
		d.Donors.Register(r)

		// Lifecycle operations need an authenticated caller.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.JWTValidator, d.Logger))
			d.Requests.Register(r)
			d.Notifications.Register(r)
		})
	})

	return r
}

func healthz(checks map[string]func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"
		for name, check := range checks {
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				result["status"] = "degraded"
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		httputil.WriteJSON(w, status, result)
	}
}
