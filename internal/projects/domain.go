package projects

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status is the lifecycle stage of a project.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusActive    Status = "active"
	StatusOnHold    Status = "on_hold"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every project status in display order.
var Statuses = []Status{StatusPlanning, StatusActive, StatusOnHold, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// MemberRole is the role of a user inside a project.
type MemberRole string

const (
	RoleManager     MemberRole = "manager"
	RoleMember      MemberRole = "member"
	RoleContributor MemberRole = "contributor"
)

// Valid reports whether r is a known project role.
func (r MemberRole) Valid() bool {
	return r == RoleManager || r == RoleMember || r == RoleContributor
}

// Project is a club service project, optionally owned by a committee.
type Project struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Description   *string         `json:"description"`
	CommitteeID   *int64          `json:"committee_id"`
	CommitteeName *string         `json:"committee_name,omitempty"`
	Status        Status          `json:"status"`
	StartDate     *shared.Date    `json:"start_date"`
	EndDate       *shared.Date    `json:"end_date"`
	Budget        decimal.Decimal `json:"budget"`
	CreatedBy     int64           `json:"created_by"`
	CreatorName   string          `json:"creator_name,omitempty"`
	MembersCount  int             `json:"members_count"`
	Members       []Member        `json:"members,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Member is an active row of the project membership pivot.
type Member struct {
	UserID   int64      `json:"user_id"`
	Name     string     `json:"name"`
	Email    string     `json:"email"`
	Role     MemberRole `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

// ListFilter narrows project listings.
type ListFilter struct {
	Status      Status
	CommitteeID *int64
	Search      string
	Page        shared.PageRequest
}

// CreateInput holds the fields for a new project.
type CreateInput struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	CommitteeID *int64           `json:"committee_id" validate:"omitempty,gt=0"`
	Status      Status           `json:"status" validate:"omitempty,enum"`
	StartDate   *shared.Date     `json:"start_date"`
	EndDate     *shared.Date     `json:"end_date"`
	Budget      *decimal.Decimal `json:"budget"`
}

// UpdateInput replaces the provided fields.
type UpdateInput struct {
	Name        *string          `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string          `json:"description" validate:"omitempty,max=5000"`
	CommitteeID *int64           `json:"committee_id" validate:"omitempty,gt=0"`
	Status      *Status          `json:"status" validate:"omitempty,enum"`
	StartDate   *shared.Date     `json:"start_date"`
	EndDate     *shared.Date     `json:"end_date"`
	Budget      *decimal.Decimal `json:"budget"`
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

// Statistics summarises the project portfolio.
type Statistics struct {
	Total        int             `json:"total"`
	ByStatus     map[Status]int  `json:"by_status"`
	TotalBudget  decimal.Decimal `json:"total_budget"`
	ActiveBudget decimal.Decimal `json:"active_budget"`
}

func checkBudget(verr *shared.ValidationError, budget *decimal.Decimal) {
	if budget != nil && budget.IsNegative() {
		verr.Add("budget", "The budget must be at least 0.")
	}
}

func checkDates(verr *shared.ValidationError, start, end *shared.Date) {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return
	}
	if end.Time.Before(start.Time) {
		verr.Add("end_date", "The end date must be a date after or equal to start date.")
	}
}
