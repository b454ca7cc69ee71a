package dues

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Status of a due. Overdue is never stored; it is reported for pending dues
// whose due date has passed.
type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusOverdue Status = "overdue"
	StatusWaived  Status = "waived"
)

// Statuses lists every reported status.
var Statuses = []Status{StatusPending, StatusPaid, StatusOverdue, StatusWaived}

// Valid reports whether s is a known status, stored or derived.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusWaived:
		return true
	}
	return false
}

// StoredStatus is the subset of Status persisted in the dues table.
type StoredStatus Status

// Valid reports whether s may be written directly.
func (s StoredStatus) Valid() bool {
	return Status(s) == StatusPending || Status(s) == StatusPaid || Status(s) == StatusWaived
}

// Type classifies a due.
type Type string

const (
	TypeAnnual  Type = "annual"
	TypeMonthly Type = "monthly"
	TypeSpecial Type = "special"
	TypeOther   Type = "other"
)

// Types lists every due type.
var Types = []Type{TypeAnnual, TypeMonthly, TypeSpecial, TypeOther}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	switch t {
	case TypeAnnual, TypeMonthly, TypeSpecial, TypeOther:
		return true
	}
	return false
}

// PaymentMethod records how a due was settled.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentMobileMoney  PaymentMethod = "mobile_money"
	PaymentCheque       PaymentMethod = "cheque"
	PaymentCard         PaymentMethod = "card"
	PaymentOther        PaymentMethod = "other"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentBankTransfer, PaymentMobileMoney, PaymentCheque, PaymentCard, PaymentOther:
		return true
	}
	return false
}

// Due is money owed by a member.
type Due struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	UserName      string          `json:"user_name,omitempty"`
	UserEmail     string          `json:"user_email,omitempty"`
	RecordedBy    int64           `json:"recorded_by"`
	Amount        decimal.Decimal `json:"amount"`
	Type          Type            `json:"type"`
	Status        Status          `json:"status"`
	DueDate       shared.Date     `json:"due_date"`
	PaidAt        *time.Time      `json:"paid_at"`
	PaymentMethod *PaymentMethod  `json:"payment_method"`
	TransactionID *string         `json:"transaction_id"`
	Notes         *string         `json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsOverdue reports whether a pending due has passed its due date.
func (d Due) IsOverdue(today time.Time) bool {
	return d.Status == StatusPending && d.DueDate.Before(shared.Today(today))
}

// withDerivedStatus reports pending dues past their due date as overdue.
func (d Due) withDerivedStatus(today time.Time) Due {
	if d.IsOverdue(today) {
		d.Status = StatusOverdue
	}
	return d
}

// ListFilter narrows due listings. Status overdue selects pending dues past
// their due date.
type ListFilter struct {
	UserID *int64
	Status Status
	Type   Type
	Year   *int
	Today  time.Time
	Page   shared.PageRequest
}

// CreateInput records a new due on behalf of a member.
type CreateInput struct {
	UserID  int64            `json:"user_id" validate:"required,gt=0"`
	Amount  *decimal.Decimal `json:"amount" validate:"required"`
	Type    Type             `json:"type" validate:"required,enum"`
	DueDate shared.Date      `json:"due_date"`
	Notes   *string          `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateInput replaces the provided fields.
type UpdateInput struct {
	Amount  *decimal.Decimal `json:"amount"`
	Type    *Type            `json:"type" validate:"omitempty,enum"`
	Status  *StoredStatus    `json:"status" validate:"omitempty,enum"`
	DueDate *shared.Date     `json:"due_date"`
	Notes   *string          `json:"notes" validate:"omitempty,max=2000"`
}

// PaymentInput settles a due.
type PaymentInput struct {
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,enum"`
	TransactionID *string       `json:"transaction_id" validate:"omitempty,max=128"`
	Notes         *string       `json:"notes" validate:"omitempty,max=1000"`
}

// WaiveInput waives a pending due.
type WaiveInput struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// Payment is the persisted outcome of MarkAsPaid.
type Payment struct {
	Method        PaymentMethod
	TransactionID *string
	PaidAt        time.Time
	Note          string
}

// Bucket is one aggregate row grouped by month, reported status and type.
type Bucket struct {
	Month  time.Time
	Status Status
	Type   Type
	Count  int
	Amount decimal.Decimal
}

// TotalsQuery scopes the aggregate query.
type TotalsQuery struct {
	UserID *int64
	From   time.Time
	To     time.Time
	Today  time.Time
}

// Amounts pairs a count with a monetary sum.
type Amounts struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthSummary aggregates one calendar month.
type MonthSummary struct {
	Month  string             `json:"month"`
	Total  Amounts            `json:"total"`
	Status map[Status]Amounts `json:"by_status"`
}

// YearlySummary is a member's dues for one year.
type YearlySummary struct {
	UserID int64              `json:"user_id"`
	Year   int                `json:"year"`
	Total  Amounts            `json:"total"`
	Status map[Status]Amounts `json:"by_status"`
	Months []MonthSummary     `json:"months"`
}

// Statistics is the organisation-wide dues overview.
type Statistics struct {
	Total    Amounts            `json:"total"`
	ByStatus map[Status]Amounts `json:"by_status"`
	ByType   map[Type]Amounts   `json:"by_type"`
	Trend    []MonthSummary     `json:"monthly_trend"`
}
