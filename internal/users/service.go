package users

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Service handles member account business logic.
type Service struct {
	repo     Repository
	logger   *slog.Logger
	hashCost int
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, hashCost: bcrypt.DefaultCost}
}

// List returns a page of users. Only administrators may list members.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]User, shared.Pagination, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "list users"); err != nil {
		return nil, shared.Pagination{}, err
	}
	filter.Page = filter.Page.Normalize()
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list users: %w", err)
	}
	return users, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns a user visible to actor.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, id), "view user"); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create registers a new member account.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (User, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "create user"); err != nil {
		return User{}, err
	}
	if err := shared.Validate(input); err != nil {
		return User{}, err
	}
	taken, err := s.repo.EmailTaken(ctx, input.Email, 0)
	if err != nil {
		return User{}, err
	}
	if taken {
		return User{}, shared.Invalid("email", "The email has already been taken.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{
		Name:             strings.TrimSpace(input.Name),
		Email:            strings.ToLower(strings.TrimSpace(input.Email)),
		Role:             input.Role,
		Phone:            input.Phone,
		MembershipNumber: input.MembershipNumber,
		Status:           input.Status,
	}
	if user.Status == "" {
		user.Status = StatusActive
	}
	if input.JoinedAt != nil {
		t := input.JoinedAt.Time
		user.JoinedAt = &t
	}
	id, err := s.repo.Create(ctx, user, string(hash))
	if err != nil {
		return User{}, err
	}
	s.logger.Info("user created", slog.Int64("user_id", id), slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Update replaces the provided fields. Members may edit their own profile but
// only administrators may change role or status.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (User, error) {
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, id), "update user"); err != nil {
		return User{}, err
	}
	if !rbac.IsAdmin(actor) && (input.Role != nil || input.Status != nil) {
		return User{}, rbac.Ensure(false, "change role or status")
	}
	if err := shared.Validate(input); err != nil {
		return User{}, err
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return User{}, err
	}
	if input.Email != nil {
		taken, err := s.repo.EmailTaken(ctx, *input.Email, id)
		if err != nil {
			return User{}, err
		}
		if taken {
			return User{}, shared.Invalid("email", "The email has already been taken.")
		}
	}
	if err := s.repo.Update(ctx, id, input); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// Delete soft-deletes a user. Administrators cannot delete themselves.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "delete user"); err != nil {
		return err
	}
	if actor.ID == id {
		return fmt.Errorf("%w: you cannot delete your own account", shared.ErrInvalidState)
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.Int64("user_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// ChangePassword verifies the current password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, actor shared.Actor, input ChangePasswordInput) error {
	if actor.IsZero() {
		return shared.ErrUnauthorized
	}
	if err := shared.Validate(input); err != nil {
		return err
	}
	current, err := s.repo.PasswordHash(ctx, actor.ID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(current), []byte(input.CurrentPassword)) != nil {
		return shared.Invalid("current_password", "The current password is incorrect.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.SetPasswordHash(ctx, actor.ID, string(hash))
}
