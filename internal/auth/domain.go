package auth

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// User represents an account as seen by the authentication flow.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         shared.Role
	Active       bool
}

// Profile is the public view of the authenticated user.
type Profile struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
	Role  shared.Role `json:"role"`
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token
	User Profile `json:"user"`
}

func (u User) profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
