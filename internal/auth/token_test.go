package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

func TestTokenRoundTripCarriesRole(t *testing.T) {
	m := NewTokenManager("secret-secret-secret-secret-secret", "rcng", time.Hour)
	tok, err := m.Issue(User{ID: 42, Role: shared.RoleBlogManager})
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)

	claims, err := m.Parse(tok.AccessToken)
	require.NoError(t, err)
	require.EqualValues(t, 42, claims.UserID)
	require.Equal(t, shared.RoleBlogManager, claims.Role)
	require.NotEmpty(t, claims.ID)
}

func TestTokenRejectsExpiredAndForeign(t *testing.T) {
	m := NewTokenManager("secret-secret-secret-secret-secret", "rcng", time.Minute)
	tok, err := m.Issue(User{ID: 1, Role: shared.RoleAdmin})
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Parse(tok.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	other := NewTokenManager("another-secret-another-secret-xx", "rcng", time.Minute)
	_, err = other.Parse(tok.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	wrongIssuer := NewTokenManager("secret-secret-secret-secret-secret", "someone-else", time.Minute)
	_, err = wrongIssuer.Parse(tok.AccessToken)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}
