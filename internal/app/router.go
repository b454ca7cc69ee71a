package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/audit"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/auth"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/blog"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/committees"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/documents"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/dues"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/events"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/observability"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/projects"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/quotations"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/users"
	"github.com/kemosabixv/rcng-pwa-sub001/jobs"
)

// APIPrefix is the mount point of every versioned route.
const APIPrefix = "/api/v1"

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthMiddleware auth.Middleware
	RBACMiddleware rbac.Middleware

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	CommitteesHandler  *committees.Handler
	ProjectsHandler    *projects.Handler
	DuesHandler        *dues.Handler
	DocumentsHandler   *documents.Handler
	QuotationsHandler  *quotations.Handler
	BlogHandler        *blog.Handler
	EventsHandler      *events.Handler
	PermissionsHandler *rbac.PermissionsHandler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the API defaults.
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

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, map[string]string{"status": "ok"}, "")
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	r.Route(APIPrefix, func(r chi.Router) {
		if params.AuthHandler != nil {
			r.Route("/auth", params.AuthHandler.MountRoutes)
		}

		// Public surfaces: anonymous readers see public content, signed-in
		// members see more.
		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Optional)
			if params.BlogHandler != nil {
				r.Route("/blog", params.BlogHandler.MountRoutes)
			}
			if params.EventsHandler != nil {
				r.Route("/events", params.EventsHandler.MountRoutes)
			}
			if params.DocumentsHandler != nil {
				r.Route("/documents", params.DocumentsHandler.MountRoutes)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthMiddleware.Authenticate)
			if params.UsersHandler != nil {
				r.Route("/users", params.UsersHandler.MountRoutes)
			}
			if params.CommitteesHandler != nil {
				r.Route("/committees", params.CommitteesHandler.MountRoutes)
			}
			if params.ProjectsHandler != nil {
				r.Route("/projects", params.ProjectsHandler.MountRoutes)
			}
			if params.DuesHandler != nil {
				r.Route("/dues", params.DuesHandler.MountRoutes)
			}
			if params.QuotationsHandler != nil {
				r.Route("/quotations", params.QuotationsHandler.MountRoutes)
			}
			if params.PermissionsHandler != nil {
				r.Route("/permissions", params.PermissionsHandler.MountRoutes)
			}
			if params.AuditHandler != nil {
				r.Route("/audit", params.AuditHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Use(params.RBACMiddleware.RequireAny(shared.PermJobsView))
					params.JobHandler.MountRoutes(r)
				})
			}
		})
	})

	return r
}
