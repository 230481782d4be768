package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/trackline-erp/trackline/internal/observability"
	"github.com/trackline-erp/trackline/internal/rbac"
	"github.com/trackline-erp/trackline/internal/registry"
	"github.com/trackline-erp/trackline/internal/scan"
	"github.com/trackline-erp/trackline/internal/sequence"
	"github.com/trackline-erp/trackline/internal/serial"
	"github.com/trackline-erp/trackline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	RegistryHandler *registry.Handler
	SequenceHandler *sequence.Handler
	SerialHandler   *serial.Handler
	ScanHandler     *scan.Handler
	JobHandler      *jobs.Handler
	RBACMiddleware  rbac.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Trackline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		RBAC:    params.RBACMiddleware,
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

	r.Route("/registry", params.RegistryHandler.MountRoutes)
	r.Route("/sequences", params.SequenceHandler.MountRoutes)
	r.Route("/serials", params.SerialHandler.MountRoutes)
	r.Route("/scan", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireUser)
		params.ScanHandler.MountRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(params.RBACMiddleware.RequireElevated)
		r.Route("/registry", params.RegistryHandler.MountAdminRoutes)
		r.Route("/sequences", params.SequenceHandler.MountAdminRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
