package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// PermissionsHandler exposes the capabilities of the current actor so the
// frontend can hide actions it cannot perform.
type PermissionsHandler struct {
	service *Service
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(service *Service) *PermissionsHandler {
	return &PermissionsHandler{service: service}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Get("/", h.listPermissions)
}

type permissionsResponse struct {
	Role         shared.Role `json:"role"`
	Capabilities []string    `json:"capabilities"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, nil, shared.ErrUnauthorized)
		return
	}
	httpx.OK(w, permissionsResponse{Role: actor.Role, Capabilities: h.service.EffectivePermissions(actor.Role)}, "")
}
