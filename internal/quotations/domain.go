package quotations

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status of a quotation. Expired is derived from the expiry date and never stored.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Statuses lists every reported status.
var Statuses = []Status{StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further edits are allowed.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Quotation is a vendor quote, optionally tied to a project.
type Quotation struct {
	ID              int64           `json:"id"`
	QuotationNumber string          `json:"quotation_number"`
	ProjectID       *int64          `json:"project_id"`
	ProjectName     *string         `json:"project_name,omitempty"`
	VendorName      string          `json:"vendor_name"`
	VendorEmail     *string         `json:"vendor_email"`
	VendorPhone     *string         `json:"vendor_phone"`
	VendorAddress   *string         `json:"vendor_address"`
	IssueDate       shared.Date     `json:"issue_date"`
	ExpiryDate      shared.Date     `json:"expiry_date"`
	Currency        string          `json:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          Status          `json:"status"`
	Notes           *string         `json:"notes"`
	Terms           *string         `json:"terms"`
	CreatedBy       int64           `json:"created_by"`
	CreatorName     string          `json:"creator_name,omitempty"`
	CreatorEmail    string          `json:"-"`
	SentAt          *time.Time      `json:"sent_at"`
	AcceptedBy      *int64          `json:"accepted_by"`
	AcceptedAt      *time.Time      `json:"accepted_at"`
	AcceptedNotes   *string         `json:"accepted_notes"`
	RejectedBy      *int64          `json:"rejected_by"`
	RejectedAt      *time.Time      `json:"rejected_at"`
	RejectionReason *string         `json:"rejection_reason"`
	Items           []Item          `json:"items,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsExpired reports whether an open quotation has passed its expiry date.
func (q Quotation) IsExpired(now time.Time) bool {
	if q.Status != StatusDraft && q.Status != StatusSent {
		return false
	}
	return q.ExpiryDate.Before(shared.Today(now))
}

// withDerivedStatus reports open quotations past their expiry date as expired.
func (q Quotation) withDerivedStatus(now time.Time) Quotation {
	if q.IsExpired(now) {
		q.Status = StatusExpired
	}
	return q
}

// Item is a quotation line.
type Item struct {
	ID          int64           `json:"id"`
	QuotationID int64           `json:"quotation_id"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	SortOrder   int             `json:"sort_order"`
}

// ListFilter narrows quotation listings. Status expired selects open
// quotations past their expiry date.
type ListFilter struct {
	Status    Status
	ProjectID *int64
	CreatedBy *int64
	Search    string
	Today     time.Time
	Page      shared.PageRequest
}

// ItemInput describes a new line.
type ItemInput struct {
	Description string           `json:"description" validate:"required,max=500"`
	Quantity    *decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice   *decimal.Decimal `json:"unit_price" validate:"required"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

// ItemUpdateInput replaces the provided line fields.
type ItemUpdateInput struct {
	Description *string          `json:"description" validate:"omitempty,min=1,max=500"`
	Quantity    *decimal.Decimal `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	TaxRate     *decimal.Decimal `json:"tax_rate"`
}

// CreateInput holds the header and lines of a new quotation.
type CreateInput struct {
	ProjectID      *int64           `json:"project_id" validate:"omitempty,gt=0"`
	VendorName     string           `json:"vendor_name" validate:"required,max=255"`
	VendorEmail    *string          `json:"vendor_email" validate:"omitempty,email,max=255"`
	VendorPhone    *string          `json:"vendor_phone" validate:"omitempty,max=32"`
	VendorAddress  *string          `json:"vendor_address" validate:"omitempty,max=1000"`
	IssueDate      shared.Date      `json:"issue_date"`
	ExpiryDate     shared.Date      `json:"expiry_date"`
	Currency       string           `json:"currency" validate:"omitempty,len=3,alpha"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	Notes          *string          `json:"notes" validate:"omitempty,max=5000"`
	Terms          *string          `json:"terms" validate:"omitempty,max=5000"`
	Items          []ItemInput      `json:"items" validate:"required,min=1,dive"`
}

// UpdateInput replaces the provided header fields.
type UpdateInput struct {
	ProjectID      *int64           `json:"project_id" validate:"omitempty,gt=0"`
	VendorName     *string          `json:"vendor_name" validate:"omitempty,min=1,max=255"`
	VendorEmail    *string          `json:"vendor_email" validate:"omitempty,email,max=255"`
	VendorPhone    *string          `json:"vendor_phone" validate:"omitempty,max=32"`
	VendorAddress  *string          `json:"vendor_address" validate:"omitempty,max=1000"`
	IssueDate      *shared.Date     `json:"issue_date"`
	ExpiryDate     *shared.Date     `json:"expiry_date"`
	Currency       *string          `json:"currency" validate:"omitempty,len=3,alpha"`
	DiscountAmount *decimal.Decimal `json:"discount_amount"`
	Notes          *string          `json:"notes" validate:"omitempty,max=5000"`
	Terms          *string          `json:"terms" validate:"omitempty,max=5000"`
}

// AddItemsInput appends lines.
type AddItemsInput struct {
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// AcceptInput carries optional acceptance notes.
type AcceptInput struct {
	Notes *string `json:"notes" validate:"omitempty,max=2000"`
}

// RejectInput carries the rejection reason.
type RejectInput struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

// Totals are the header amounts derived from the items.
type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Transition is the persisted outcome of a workflow action.
type Transition struct {
	From []Status
	To   Status
	At   time.Time
	By   int64
	Note *string
}

// Bucket is one aggregate row grouped by issue month and reported status.
type Bucket struct {
	Month  time.Time
	Status Status
	Count  int
	Amount decimal.Decimal
}

// VendorTotal aggregates quotations per vendor.
type VendorTotal struct {
	VendorName string          `json:"vendor_name"`
	Count      int             `json:"count"`
	Amount     decimal.Decimal `json:"total_amount"`
}

// Amounts pairs a count with a monetary sum.
type Amounts struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthTotal is one month of the trend.
type MonthTotal struct {
	Month string `json:"month"`
	Amounts
}

// Statistics is the quotation portfolio overview.
type Statistics struct {
	Total      Amounts            `json:"total"`
	ByStatus   map[Status]Amounts `json:"by_status"`
	ByMonth    []MonthTotal       `json:"by_month"`
	TopVendors []VendorTotal      `json:"top_vendors"`
}
