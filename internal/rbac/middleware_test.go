package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

func serveWithActor(t *testing.T, mw func(http.Handler) http.Handler, actor *shared.Actor) int {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != nil {
		req = req.WithContext(shared.ContextWithActor(req.Context(), *actor))
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr.Code
}

func TestRequireAny(t *testing.T) {
	m := Middleware{Service: NewService()}
	guard := m.RequireAny(shared.PermBlogManage, shared.PermEventsManage)

	require.Equal(t, http.StatusNoContent, serveWithActor(t, guard, &blogManager))
	require.Equal(t, http.StatusNoContent, serveWithActor(t, guard, &admin))
	require.Equal(t, http.StatusForbidden, serveWithActor(t, guard, &member))
	require.Equal(t, http.StatusUnauthorized, serveWithActor(t, guard, nil))
}

func TestRequireAll(t *testing.T) {
	m := Middleware{Service: NewService()}
	guard := m.RequireAll(shared.PermDocumentsUpload, shared.PermBlogManage)

	require.Equal(t, http.StatusNoContent, serveWithActor(t, guard, &blogManager))
	require.Equal(t, http.StatusForbidden, serveWithActor(t, guard, &member))
}

func TestEffectivePermissionsAdminHasEverything(t *testing.T) {
	svc := NewService()
	require.ElementsMatch(t, shared.AllScopes(), svc.EffectivePermissions(shared.RoleAdmin))
	require.True(t, svc.Can(admin, shared.PermDuesManage))
	require.False(t, svc.Can(member, shared.PermDuesManage))
	require.True(t, svc.Can(member, shared.PermDuesView))
}
