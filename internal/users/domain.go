package users

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status is the membership status of an account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// User represents a club member account.
type User struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Role             shared.Role `json:"role"`
	Phone            *string     `json:"phone"`
	MembershipNumber *string     `json:"membership_number"`
	Status           Status      `json:"status"`
	JoinedAt         *time.Time  `json:"joined_at"`
	LastLoginAt      *time.Time  `json:"last_login_at"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// ListFilter narrows user listings.
type ListFilter struct {
	Role   shared.Role
	Status Status
	Search string
	Page   shared.PageRequest
}

// CreateInput holds the fields required to register a member.
type CreateInput struct {
	Name             string       `json:"name" validate:"required,max=255"`
	Email            string       `json:"email" validate:"required,email,max=255"`
	Password         string       `json:"password" validate:"required,min=8"`
	Role             shared.Role  `json:"role" validate:"required,enum"`
	Phone            *string      `json:"phone" validate:"omitempty,max=32"`
	MembershipNumber *string      `json:"membership_number" validate:"omitempty,max=64"`
	Status           Status       `json:"status" validate:"omitempty,enum"`
	JoinedAt         *shared.Date `json:"joined_at"`
}

// UpdateInput replaces the provided fields.
type UpdateInput struct {
	Name             *string      `json:"name" validate:"omitempty,min=1,max=255"`
	Email            *string      `json:"email" validate:"omitempty,email,max=255"`
	Role             *shared.Role `json:"role" validate:"omitempty,enum"`
	Phone            *string      `json:"phone" validate:"omitempty,max=32"`
	MembershipNumber *string      `json:"membership_number" validate:"omitempty,max=64"`
	Status           *Status      `json:"status" validate:"omitempty,enum"`
	JoinedAt         *shared.Date `json:"joined_at"`
}

// ChangePasswordInput carries a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,nefield=CurrentPassword"`
}
