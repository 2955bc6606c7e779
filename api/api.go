// Package api exposes an administrative REST surface over a session.Store.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/sessionstore/session"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	store         session.Store
	maxInactivity time.Duration
	maxLifeTime   time.Duration
	audit         *auditLogger
	alertFn       AlertFunc
	adminToken    string
}

//go:embed openapi.yaml
var openapiDoc []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithExpiry sets the durations used by POST /sweep.
func WithExpiry(maxInactivity, maxLifeTime time.Duration) Option {
	return func(a *API) {
		a.maxInactivity = maxInactivity
		a.maxLifeTime = maxLifeTime
	}
}

// WithAlertFunc installs a callback for revocation spikes and repeated
// clears.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(store session.Store, opts ...Option) *API {
	a := &API{
		store:         store,
		maxInactivity: 15 * time.Minute,
		maxLifeTime:   7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiDoc)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(SecurityHeaders)

		r.Get("/health", a.Health)

		r.Group(func(r chi.Router) {
			r.Use(a.TokenMiddleware)

			r.Get("/users", a.ListUsers)
			r.Route("/users/{kind}/{userID}", func(r chi.Router) {
				r.Get("/sessions", a.ListUserSessions)
				r.Delete("/sessions", a.RevokeUserSessions)
			})
			r.Get("/sessions/{sessionID}", a.GetSession)
			r.Delete("/sessions/{sessionID}", a.DestroySession)
			r.Delete("/sessions", a.ClearSessions)
			r.Post("/sweep", a.Sweep)
		})
	})

	return r
}
