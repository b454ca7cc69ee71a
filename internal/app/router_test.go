package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/auth"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/observability"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
	"github.com/kemosabixv/rcng-pwa-sub001/jobs"
)

type noUsers struct{}

func (noUsers) FindByEmail(context.Context, string) (*auth.User, error) { return nil, shared.ErrNotFound }
func (noUsers) FindByID(context.Context, int64) (*auth.User, error)     { return nil, shared.ErrNotFound }
func (noUsers) TouchLogin(context.Context, int64, time.Time) error      { return nil }

type testRouter struct {
	handler http.Handler
	tokens  *auth.TokenManager
}

func newTestRouter(t *testing.T) testRouter {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenManager("test-secret-test-secret-test-secret", "rcng-test", time.Hour)
	authService := auth.NewService(noUsers{}, tokens, nil, logger)
	authMiddleware := auth.Middleware{Service: authService, Logger: logger}
	rbacService := rbac.NewService()
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	handler := NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test", CORSAllowedOrigins: []string{"http://localhost:3000"}, RateLimitPerMin: 1000},
		Metrics:            observability.NewMetrics(),
		AuthMiddleware:     authMiddleware,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        auth.NewHandler(logger, authService, authMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService),
		JobHandler:         jobs.NewHandler(nil, logger),
	})
	return testRouter{handler: handler, tokens: tokens}
}

func (tr testRouter) token(t *testing.T, role shared.Role) string {
	t.Helper()
	tok, err := tr.tokens.Issue(auth.User{ID: 1, Role: role})
	require.NoError(t, err)
	return tok.AccessToken
}

func (tr testRouter) get(t *testing.T, path, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	tr := newTestRouter(t)
	rr, body := tr.get(t, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	tr := newTestRouter(t)
	rr, body := tr.get(t, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	tr := newTestRouter(t)
	rr, body := tr.get(t, "/api/v1/permissions", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, false, body["success"])

	rr, body = tr.get(t, "/api/v1/permissions", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, body = tr.get(t, "/api/v1/permissions", tr.token(t, shared.RoleMember))
	require.Equal(t, http.StatusOK, rr.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "member", data["role"])
	assert.Contains(t, data["capabilities"], shared.PermDuesView)
}

func TestJobsHealthIsAdminOnly(t *testing.T) {
	tr := newTestRouter(t)
	rr, _ := tr.get(t, "/api/v1/jobs/health", tr.token(t, shared.RoleMember))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, body := tr.get(t, "/api/v1/jobs/health", tr.token(t, shared.RoleAdmin))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "default", body["data"].(map[string]any)["queue"])
}

func TestCORSPreflight(t *testing.T) {
	tr := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/permissions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rr := httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/permissions", nil)
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr = httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpointRecordsRoutes(t *testing.T) {
	tr := newTestRouter(t)
	tr.get(t, "/healthz", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	tr.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `rcng_http_requests_total{code="200",route="/healthz"}`)
}
