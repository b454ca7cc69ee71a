package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	tokens   *TokenManager
	denylist Denylist
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenManager, denylist Denylist, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tokens: tokens, denylist: denylist, logger: logger}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := s.tokens.Issue(*user)
	if err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.TouchLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		s.logger.Warn("record last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	return LoginResult{Token: token, User: user.profile()}, nil
}

// Resolve turns a raw bearer token into the request actor.
func (s *Service) Resolve(ctx context.Context, raw string) (shared.Actor, *Claims, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Actor{}, nil, err
	}
	if s.denylist != nil {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			s.logger.Warn("token denylist lookup", slog.Any("error", err))
		} else if revoked {
			return shared.Actor{}, nil, shared.ErrUnauthorized
		}
	}
	return shared.Actor{ID: claims.UserID, Role: claims.Role}, claims, nil
}

// Logout revokes the token identified by claims.
func (s *Service) Logout(ctx context.Context, claims *Claims) error {
	if claims == nil || s.denylist == nil || claims.ExpiresAt == nil {
		return nil
	}
	return s.denylist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// Me returns the profile of the current actor.
func (s *Service) Me(ctx context.Context, actor shared.Actor) (Profile, error) {
	user, err := s.repo.FindByID(ctx, actor.ID)
	if err != nil {
		return Profile{}, err
	}
	return user.profile(), nil
}
