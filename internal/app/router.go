package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-platform/aegis/internal/audit"
	"github.com/aegis-platform/aegis/internal/authz"
	"github.com/aegis-platform/aegis/internal/observability"
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
	"github.com/aegis-platform/aegis/jobs"
)

// Admin operations guarding the management API. Registered at startup so
// root or explicitly granted operators can manage roles.
const (
	AdminResource = "aegis-admin"
	OpAdminRead   = "admin.read"
	OpAdminWrite  = "admin.write"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthzHandler    *authz.Handler
	RegistryHandler *registry.Handler
	RolesHandler    *roles.Handler
	AuditHandler    *audit.Handler
	JobsHandler     *jobs.Handler
	Guard           authz.Middleware
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults.
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

	r.Route("/v1", func(r chi.Router) {
		if params.AuthzHandler != nil {
			params.AuthzHandler.MountRoutes(r)
		}
		r.Group(func(r chi.Router) {
			r.Use(params.Guard.Require(AdminResource, "", OpAdminWrite))
			if params.RegistryHandler != nil {
				params.RegistryHandler.MountRoutes(r)
			}
			if params.RolesHandler != nil {
				params.RolesHandler.MountRoutes(r)
			}
			if params.JobsHandler != nil {
				params.JobsHandler.MountRoutes(r)
			}
		})
		r.Group(func(r chi.Router) {
			r.Use(params.Guard.Require(AdminResource, "", OpAdminRead))
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(r)
			}
		})
	})

	return r
}
