package committees

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status of a committee.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// MemberRole is the role a user holds inside a committee.
type MemberRole string

const (
	RoleChairperson MemberRole = "chairperson"
	RoleViceChair   MemberRole = "vice_chair"
	RoleSecretary   MemberRole = "secretary"
	RoleTreasurer   MemberRole = "treasurer"
	RoleMember      MemberRole = "member"
)

// Valid reports whether r is a known committee role.
func (r MemberRole) Valid() bool {
	switch r {
	case RoleChairperson, RoleViceChair, RoleSecretary, RoleTreasurer, RoleMember:
		return true
	}
	return false
}

// Committee groups members around a club function.
type Committee struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description"`
	ChairpersonID *int64    `json:"chairperson_id"`
	Status        Status    `json:"status"`
	MembersCount  int       `json:"members_count"`
	ProjectsCount int       `json:"projects_count"`
	Members       []Member  `json:"members,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Member is an active row of the committee membership pivot.
type Member struct {
	UserID   int64      `json:"user_id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// ListFilter narrows committee listings.
type ListFilter struct {
	Status Status
	Search string
	Page   shared.PageRequest
}

// CreateInput holds the fields for a new committee.
type CreateInput struct {
	Name          string        `json:"name" validate:"required,max=255"`
	Description   *string       `json:"description" validate:"omitempty,max=2000"`
	ChairpersonID int64         `json:"chairperson_id" validate:"required,gt=0"`
	Status        Status        `json:"status" validate:"omitempty,enum"`
	Members       []MemberInput `json:"members" validate:"omitempty,dive"`
}

// UpdateInput replaces the provided fields.
type UpdateInput struct {
	Name          *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description   *string `json:"description" validate:"omitempty,max=2000"`
	ChairpersonID *int64  `json:"chairperson_id" validate:"omitempty,gt=0"`
	Status        *Status `json:"status" validate:"omitempty,enum"`
}

// MemberInput adds a user with a role.
type MemberInput struct {
	UserID int64      `json:"user_id" validate:"required,gt=0"`
	Role   MemberRole `json:"role" validate:"omitempty,enum"`
}

// AddMembersInput is the payload for adding several members at once.
type AddMembersInput struct {
	Members []MemberInput `json:"members" validate:"required,min=1,dive"`
}

// RoleInput changes the role of an existing member.
type RoleInput struct {
	Role MemberRole `json:"role" validate:"required,enum"`
}

// ChairpersonInput reassigns the chairperson.
type ChairpersonInput struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}
