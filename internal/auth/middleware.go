package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/httpx"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type claimsContextKey struct{}

// Middleware resolves bearer tokens into request actors.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Authenticate rejects requests without a valid bearer token.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, m.Logger, shared.ErrUnauthorized)
			return
		}
		actor, claims, err := m.Service.Resolve(r.Context(), raw)
		if err != nil {
			httpx.RespondError(w, m.Logger, err)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Optional attaches the actor when a valid token is present and otherwise
// lets the request through anonymously.
func (m Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		actor, claims, err := m.Service.Resolve(r.Context(), raw)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := shared.ContextWithActor(r.Context(), actor)
		ctx = context.WithValue(ctx, claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return claims
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
