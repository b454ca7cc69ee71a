package audit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
)

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	now     func() time.Time
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, now: time.Now}
}

// MountRoutes registers audit routes. Exports are rate limited per actor.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(shared.PermAuditView))
	r.Get("/", h.timeline)
	r.With(httprate.Limit(exportRateLimit, exportRateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "too many exports, try again later", nil)
		}),
	)).Get("/export.csv", h.export)
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	result, err := h.service.Timeline(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, result, "")
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	rows, err := h.service.Export(r.Context(), actor, filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filename := "audit-" + h.now().UTC().Format("20060102-150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func parseFilters(r *http.Request) (TimelineFilters, error) {
	verr := shared.NewValidationError()
	var f TimelineFilters
	if from, err := httpx.QueryTime(r, "from"); err != nil {
		collect(verr, err)
	} else if from != nil {
		f.From = *from
	}
	if to, err := httpx.QueryTime(r, "to"); err != nil {
		collect(verr, err)
	} else if to != nil {
		f.To = *to
	}
	actorID, err := httpx.QueryInt64(r, "actor_id")
	if err != nil {
		collect(verr, err)
	}
	entityID, err := httpx.QueryInt64(r, "entity_id")
	if err != nil {
		collect(verr, err)
	}
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		collect(verr, err)
	}
	perPage, err := httpx.QueryInt(r, "per_page", defaultPageSize)
	if err != nil {
		collect(verr, err)
	}
	q := r.URL.Query()
	f.ActorID = actorID
	f.EntityID = entityID
	f.Entity = q.Get("entity")
	f.Action = q.Get("action")
	f.Page = page
	f.PageSize = perPage
	return f, verr.OrNil()
}

func collect(verr *shared.ValidationError, err error) {
	if v, ok := shared.AsValidationError(err); ok {
		verr.Merge(v)
		return
	}
	verr.Add("query", err.Error())
}
