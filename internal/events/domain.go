package events

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Type classifies an event.
type Type string

const (
	TypeMeeting    Type = "meeting"
	TypeService    Type = "service"
	TypeFundraiser Type = "fundraiser"
	TypeSocial     Type = "social"
	TypeOther      Type = "other"
)

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeMeeting, TypeService, TypeFundraiser, TypeSocial, TypeOther:
		return true
	}
	return false
}

// Visibility decides whether anonymous visitors see an event.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityMembers Visibility = "members"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityMembers
}

// Status is the lifecycle state of an event.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Event is a club meeting or activity.
type Event struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	Type        Type       `json:"type"`
	Visibility  Visibility `json:"visibility"`
	Status      Status     `json:"status"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      time.Time  `json:"ends_at"`
	CommitteeID *int64     `json:"committee_id"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilter narrows event listings. MembersOnly rows are included only when
// IncludeMembers is set.
type ListFilter struct {
	IncludeMembers bool
	Type           Type
	Status         Status
	From           *time.Time
	To             *time.Time
	CommitteeID    *int64
	Search         string
	Page           shared.PageRequest
}

// CreateInput holds a new event.
type CreateInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Location    *string    `json:"location" validate:"omitempty,max=255"`
	Type        Type       `json:"type" validate:"required,enum"`
	Visibility  Visibility `json:"visibility" validate:"omitempty,enum"`
	StartsAt    time.Time  `json:"starts_at" validate:"required"`
	EndsAt      time.Time  `json:"ends_at" validate:"required"`
	CommitteeID *int64     `json:"committee_id" validate:"omitempty,gt=0"`
}

// UpdateInput replaces the provided fields.
type UpdateInput struct {
	Title       *string     `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string     `json:"description" validate:"omitempty,max=5000"`
	Location    *string     `json:"location" validate:"omitempty,max=255"`
	Type        *Type       `json:"type" validate:"omitempty,enum"`
	Visibility  *Visibility `json:"visibility" validate:"omitempty,enum"`
	Status      *Status     `json:"status" validate:"omitempty,enum"`
	StartsAt    *time.Time  `json:"starts_at"`
	EndsAt      *time.Time  `json:"ends_at"`
	CommitteeID *int64      `json:"committee_id" validate:"omitempty,gt=0"`
}
