package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gestia-erp/gestia/internal/auth"
	"github.com/gestia-erp/gestia/internal/observability"
	"github.com/gestia-erp/gestia/internal/sync"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	AuthHandler *auth.Handler
	SyncHandler *sync.Handler
	Metrics     *observability.Metrics
}

// NewRouter constructs the chi.Router with Gestia defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.AuthHandler != nil {
			params.AuthHandler.MountRoutes(r)
		}
		if params.SyncHandler != nil {
			r.Group(func(r chi.Router) {
				if params.AuthHandler != nil {
					r.Use(params.AuthHandler.RequireSession)
				}
				params.SyncHandler.MountRoutes(r)
			})
		}
	})

	return r
}
