package blog

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status is the publication state of a post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// Post is a blog article.
type Post struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Excerpt     *string    `json:"excerpt"`
	Content     string     `json:"content"`
	Status      Status     `json:"status"`
	AuthorID    int64      `json:"author_id"`
	AuthorName  string     `json:"author_name,omitempty"`
	PublishedAt *time.Time `json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ListFilter narrows post listings.
type ListFilter struct {
	Status   Status
	AuthorID *int64
	Search   string
	Page     shared.PageRequest
}

// Page is a cached listing page.
type Page struct {
	Items []Post            `json:"items"`
	Meta  shared.Pagination `json:"meta"`
}

// CreateInput holds a new post.
type CreateInput struct {
	Title   string  `json:"title" validate:"required,max=255"`
	Slug    *string `json:"slug" validate:"omitempty,max=200"`
	Excerpt *string `json:"excerpt" validate:"omitempty,max=1000"`
	Content string  `json:"content" validate:"required"`
	Status  Status  `json:"status" validate:"omitempty,enum"`
}

// UpdateInput replaces the provided fields. Status changes go through
// Publish and Archive.
type UpdateInput struct {
	Title   *string `json:"title" validate:"omitempty,min=1,max=255"`
	Slug    *string `json:"slug" validate:"omitempty,max=200"`
	Excerpt *string `json:"excerpt" validate:"omitempty,max=1000"`
	Content *string `json:"content" validate:"omitempty,min=1"`
}

// excerptLen bounds generated excerpts.
const excerptLen = 160
