package documents

import (
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Visibility controls who may see a document.
type Visibility string

const (
	VisibilityPublic     Visibility = rbac.VisibilityPublic
	VisibilityPrivate    Visibility = rbac.VisibilityPrivate
	VisibilityRestricted Visibility = rbac.VisibilityRestricted
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityPrivate, VisibilityRestricted:
		return true
	}
	return false
}

// Category groups documents in listings.
type Category string

const (
	CategoryMinutes    Category = "minutes"
	CategoryReport     Category = "report"
	CategoryPolicy     Category = "policy"
	CategoryFinancial  Category = "financial"
	CategoryNewsletter Category = "newsletter"
	CategoryOther      Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMinutes, CategoryReport, CategoryPolicy, CategoryFinancial, CategoryNewsletter, CategoryOther:
		return true
	}
	return false
}

// Document is an uploaded file with its metadata.
type Document struct {
	ID            int64      `json:"id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	Category      Category   `json:"category"`
	FileName      string     `json:"file_name"`
	FilePath      string     `json:"-"`
	DownloadURL   string     `json:"download_url,omitempty"`
	MimeType      string     `json:"mime_type"`
	Size          int64      `json:"size"`
	Visibility    Visibility `json:"visibility"`
	UploadedBy    int64      `json:"uploaded_by"`
	UploaderName  string     `json:"uploader_name,omitempty"`
	CommitteeID   *int64     `json:"committee_id"`
	ProjectID     *int64     `json:"project_id"`
	DownloadCount int64      `json:"download_count"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (d Document) access() rbac.DocumentAccess {
	return rbac.DocumentAccess{
		Visibility:  string(d.Visibility),
		UploadedBy:  d.UploadedBy,
		CommitteeID: d.CommitteeID,
		ProjectID:   d.ProjectID,
	}
}

// ListFilter narrows document listings. Viewer limits the rows to what the
// actor may see; the zero Viewer sees public documents only.
type ListFilter struct {
	Viewer      shared.Actor
	Category    Category
	Visibility  Visibility
	CommitteeID *int64
	ProjectID   *int64
	UploadedBy  *int64
	Search      string
	Page        shared.PageRequest
}

// UploadInput is the metadata sent with a new file.
type UploadInput struct {
	Title       string     `json:"title" validate:"required,max=255"`
	Description *string    `json:"description" validate:"omitempty,max=5000"`
	Category    Category   `json:"category" validate:"omitempty,enum"`
	Visibility  Visibility `json:"visibility" validate:"required,enum"`
	CommitteeID *int64     `json:"committee_id" validate:"omitempty,gt=0"`
	ProjectID   *int64     `json:"project_id" validate:"omitempty,gt=0"`
}

// UpdateInput replaces the provided metadata fields.
type UpdateInput struct {
	Title       *string     `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string     `json:"description" validate:"omitempty,max=5000"`
	Category    *Category   `json:"category" validate:"omitempty,enum"`
	Visibility  *Visibility `json:"visibility" validate:"omitempty,enum"`
	CommitteeID *int64      `json:"committee_id" validate:"omitempty,gt=0"`
	ProjectID   *int64      `json:"project_id" validate:"omitempty,gt=0"`
}
