package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/voyagedesk/voyagedesk/internal/audit"
	"github.com/voyagedesk/voyagedesk/internal/auth"
	"github.com/voyagedesk/voyagedesk/internal/observability"
	"github.com/voyagedesk/voyagedesk/internal/permissions"
	"github.com/voyagedesk/voyagedesk/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	AuthHandler        *auth.Handler
	PermissionsHandler *permissions.Handler
	AuditHandler       *audit.Handler
	Guard              permissions.Guard
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with voyagedesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
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

	params.AuthHandler.MountRoutes(r)

	r.Route("/api", func(r chi.Router) {
		params.PermissionsHandler.MountRoutes(r)
		r.Route("/audit", func(r chi.Router) {
			r.Use(params.Guard.RequireModule(permissions.ModuleReports))
			params.AuditHandler.MountRoutes(r)
		})
	})

	return r
}
