package auth_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/auth"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
	_ "github.com/kemosabixv/rcng-pwa-sub001/testing"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return s.user, nil
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, fmt.Errorf("user: %w", shared.ErrNotFound)
	}
	return s.user, nil
}

func (s *stubRepo) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	return nil
}

func newAuthRouter(t *testing.T, user *auth.User) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenManager("test-secret-test-secret-test-secret", "rcng-test", time.Hour)
	service := auth.NewService(&stubRepo{user: user}, tokens, auth.NewRedisDenylist(redisClient), logger)
	handler := auth.NewHandler(logger, service, auth.Middleware{Service: service, Logger: logger})

	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func activeUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 7, Name: "Ada", Email: "ada@club.test", PasswordHash: string(hashed), Role: shared.RoleMember, Active: true}
}

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return rr, payload
}

func login(t *testing.T, h http.Handler) string {
	t.Helper()
	rr, payload := doJSON(t, h, http.MethodPost, "/auth/login", `{"email":"ada@club.test","password":"correctpass"}`, "")
	require.Equal(t, http.StatusOK, rr.Code)
	data := payload["data"].(map[string]any)
	return data["access_token"].(string)
}

func TestLoginIssuesToken(t *testing.T) {
	router := newAuthRouter(t, activeUser(t))
	token := login(t, router)
	require.NotEmpty(t, token)

	rr, payload := doJSON(t, router, http.MethodGet, "/auth/me", "", token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, true, payload["success"])
	require.Equal(t, "ada@club.test", payload["data"].(map[string]any)["email"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	router := newAuthRouter(t, activeUser(t))
	rr, payload := doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"ada@club.test","password":"wrongpass"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, false, payload["success"])
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t)
	user.Active = false
	router := newAuthRouter(t, user)
	rr, _ := doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"ada@club.test","password":"correctpass"}`, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLoginValidation(t *testing.T) {
	router := newAuthRouter(t, activeUser(t))
	rr, payload := doJSON(t, router, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":""}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errs := payload["errors"].(map[string]any)
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "password")
}

func TestMeRequiresToken(t *testing.T) {
	router := newAuthRouter(t, activeUser(t))
	rr, _ := doJSON(t, router, http.MethodGet, "/auth/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr, _ = doJSON(t, router, http.MethodGet, "/auth/me", "", "garbage")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	router := newAuthRouter(t, activeUser(t))
	token := login(t, router)

	rr, _ := doJSON(t, router, http.MethodPost, "/auth/logout", "", token)
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = doJSON(t, router, http.MethodGet, "/auth/me", "", token)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
