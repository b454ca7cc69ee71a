package quotations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Repository exposes quotation reads and transactional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Quotation, int, error)
	Get(ctx context.Context, id int64) (Quotation, error)
	Items(ctx context.Context, quotationID int64) ([]Item, error)
	Totals(ctx context.Context, from, today time.Time) ([]Bucket, error)
	TopVendors(ctx context.Context, limit int) ([]VendorTotal, error)
}

// TxRepository defines operations executed inside a transaction.
type TxRepository interface {
	Lock(ctx context.Context, id int64) (Quotation, error)
	Items(ctx context.Context, quotationID int64) ([]Item, error)
	NextNumber(ctx context.Context, scope string) (int, error)
	ProjectExists(ctx context.Context, id int64) (bool, error)
	Create(ctx context.Context, q Quotation) (int64, error)
	UpdateHeader(ctx context.Context, id int64, input UpdateInput) error
	InsertItems(ctx context.Context, quotationID int64, items []Item) error
	UpdateItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, quotationID, itemID int64) error
	SetTotals(ctx context.Context, id int64, totals Totals) error
	Transition(ctx context.Context, id int64, t Transition) error
	SoftDelete(ctx context.Context, id int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
	q    *queries
}

type queries struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool, q: &queries{db: pool}}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &queries{db: tx})
	})
}

const quotationSelect = `SELECT q.id, q.quotation_number, q.project_id, p.name, q.vendor_name, q.vendor_email,
	q.vendor_phone, q.vendor_address, q.issue_date, q.expiry_date, q.currency, q.subtotal, q.tax_amount,
	q.discount_amount, q.total_amount, q.status, q.notes, q.terms, q.created_by, COALESCE(u.name, ''),
	COALESCE(u.email, ''), q.sent_at, q.accepted_by, q.accepted_at, q.accepted_notes, q.rejected_by,
	q.rejected_at, q.rejection_reason, q.created_at, q.updated_at
	FROM quotations q
	LEFT JOIN projects p ON p.id = q.project_id
	LEFT JOIN users u ON u.id = q.created_by`

// expiredClause matches open quotations past their expiry date.
const expiredClause = "q.status IN ('draft', 'sent') AND q.expiry_date < ?"

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(&q.ID, &q.QuotationNumber, &q.ProjectID, &q.ProjectName, &q.VendorName, &q.VendorEmail,
		&q.VendorPhone, &q.VendorAddress, &q.IssueDate, &q.ExpiryDate, &q.Currency, &q.Subtotal, &q.TaxAmount,
		&q.DiscountAmount, &q.TotalAmount, &q.Status, &q.Notes, &q.Terms, &q.CreatedBy, &q.CreatorName,
		&q.CreatorEmail, &q.SentAt, &q.AcceptedBy, &q.AcceptedAt, &q.AcceptedNotes, &q.RejectedBy,
		&q.RejectedAt, &q.RejectionReason, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	today := shared.Today(filter.Today)
	var conds db.Conditions
	conds.Add("q.deleted_at IS NULL")
	switch filter.Status {
	case "":
	case StatusExpired:
		conds.Add(expiredClause, today)
	case StatusDraft, StatusSent:
		conds.Add("q.status = ? AND q.expiry_date >= ?", filter.Status, today)
	default:
		conds.Add("q.status = ?", filter.Status)
	}
	if filter.ProjectID != nil {
		conds.Add("q.project_id = ?", *filter.ProjectID)
	}
	if filter.CreatedBy != nil {
		conds.Add("q.created_by = ?", *filter.CreatedBy)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("(q.quotation_number ILIKE ? OR q.vendor_name ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM quotations q "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY q.issue_date DESC, q.id DESC LIMIT %s OFFSET %s", quotationSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Quotation, error) {
	return r.q.get(ctx, id, "")
}

func (r *pgRepository) Items(ctx context.Context, quotationID int64) ([]Item, error) {
	return r.q.Items(ctx, quotationID)
}

func (r *pgRepository) Totals(ctx context.Context, from, today time.Time) ([]Bucket, error) {
	var conds db.Conditions
	conds.Add("q.deleted_at IS NULL")
	if !from.IsZero() {
		conds.Add("q.issue_date >= ?", from)
	}
	ph, args := conds.Next(shared.Today(today))
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT date_trunc('month', q.issue_date)::date,
			CASE WHEN q.status IN ('draft', 'sent') AND q.expiry_date < %s THEN 'expired' ELSE q.status END,
			COUNT(*), COALESCE(SUM(q.total_amount), 0)
		FROM quotations q %s
		GROUP BY 1, 2
		ORDER BY 1`, ph[0], conds.Where()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Month, &b.Status, &b.Count, &b.Amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *pgRepository) TopVendors(ctx context.Context, limit int) ([]VendorTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT vendor_name, COUNT(*), COALESCE(SUM(total_amount), 0) AS amount
		FROM quotations WHERE deleted_at IS NULL
		GROUP BY vendor_name
		ORDER BY amount DESC, vendor_name ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VendorTotal
	for rows.Next() {
		var v VendorTotal
		if err := rows.Scan(&v.VendorName, &v.Count, &v.Amount); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *queries) get(ctx context.Context, id int64, suffix string) (Quotation, error) {
	out, err := scanQuotation(q.db.QueryRow(ctx, quotationSelect+" WHERE q.id = $1 AND q.deleted_at IS NULL"+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quotation{}, fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
		}
		return Quotation{}, err
	}
	return out, nil
}

func (q *queries) Lock(ctx context.Context, id int64) (Quotation, error) {
	return q.get(ctx, id, " FOR UPDATE OF q")
}

func (q *queries) Items(ctx context.Context, quotationID int64) ([]Item, error) {
	rows, err := q.db.Query(ctx, `SELECT id, quotation_id, description, quantity, unit_price, tax_rate, tax_amount, total_amount, sort_order
		FROM quotation_items WHERE quotation_id = $1 ORDER BY sort_order, id`, quotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuotationID, &it.Description, &it.Quantity, &it.UnitPrice, &it.TaxRate, &it.TaxAmount, &it.TotalAmount, &it.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// NextNumber increments and returns the counter for scope.
func (q *queries) NextNumber(ctx context.Context, scope string) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `INSERT INTO document_sequences (scope, value) VALUES ($1, 1)
		ON CONFLICT (scope) DO UPDATE SET value = document_sequences.value + 1
		RETURNING value`, scope).Scan(&n)
	return n, err
}

func (q *queries) ProjectExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}

func (q *queries) Create(ctx context.Context, in Quotation) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `INSERT INTO quotations (quotation_number, project_id, vendor_name, vendor_email, vendor_phone,
			vendor_address, issue_date, expiry_date, currency, subtotal, tax_amount, discount_amount, total_amount,
			status, notes, terms, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, NOW(), NOW())
		RETURNING id`,
		in.QuotationNumber, in.ProjectID, in.VendorName, in.VendorEmail, in.VendorPhone,
		in.VendorAddress, in.IssueDate, in.ExpiryDate, in.Currency, in.Subtotal, in.TaxAmount, in.DiscountAmount, in.TotalAmount,
		in.Status, in.Notes, in.Terms, in.CreatedBy).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: quotation number %s already exists", shared.ErrConflict, in.QuotationNumber)
		}
		return 0, err
	}
	return id, nil
}

func (q *queries) UpdateHeader(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.ProjectID != nil {
		set.Set("project_id", *input.ProjectID)
	}
	if input.VendorName != nil {
		set.Set("vendor_name", strings.TrimSpace(*input.VendorName))
	}
	if input.VendorEmail != nil {
		set.Set("vendor_email", *input.VendorEmail)
	}
	if input.VendorPhone != nil {
		set.Set("vendor_phone", *input.VendorPhone)
	}
	if input.VendorAddress != nil {
		set.Set("vendor_address", *input.VendorAddress)
	}
	if input.IssueDate != nil {
		set.Set("issue_date", *input.IssueDate)
	}
	if input.ExpiryDate != nil {
		set.Set("expiry_date", *input.ExpiryDate)
	}
	if input.Currency != nil {
		set.Set("currency", strings.ToUpper(*input.Currency))
	}
	if input.DiscountAmount != nil {
		set.Set("discount_amount", *input.DiscountAmount)
	}
	if input.Notes != nil {
		set.Set("notes", *input.Notes)
	}
	if input.Terms != nil {
		set.Set("terms", *input.Terms)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("quotations", id)
	_, err := q.db.Exec(ctx, query, args...)
	return err
}

func (q *queries) InsertItems(ctx context.Context, quotationID int64, items []Item) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(`INSERT INTO quotation_items (quotation_id, description, quantity, unit_price, tax_rate, tax_amount, total_amount, sort_order, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
			quotationID, it.Description, it.Quantity, it.UnitPrice, it.TaxRate, it.TaxAmount, it.TotalAmount, it.SortOrder)
	}
	results := q.db.SendBatch(ctx, batch)
	for range items {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func (q *queries) UpdateItem(ctx context.Context, it Item) error {
	tag, err := q.db.Exec(ctx, `UPDATE quotation_items SET description = $3, quantity = $4, unit_price = $5, tax_rate = $6,
			tax_amount = $7, total_amount = $8, updated_at = NOW()
		WHERE id = $1 AND quotation_id = $2`,
		it.ID, it.QuotationID, it.Description, it.Quantity, it.UnitPrice, it.TaxRate, it.TaxAmount, it.TotalAmount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quotation item %d: %w", it.ID, shared.ErrNotFound)
	}
	return nil
}

func (q *queries) DeleteItem(ctx context.Context, quotationID, itemID int64) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM quotation_items WHERE id = $1 AND quotation_id = $2`, itemID, quotationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quotation item %d: %w", itemID, shared.ErrNotFound)
	}
	return nil
}

func (q *queries) SetTotals(ctx context.Context, id int64, totals Totals) error {
	_, err := q.db.Exec(ctx, `UPDATE quotations SET subtotal = $2, tax_amount = $3, total_amount = $4, updated_at = NOW() WHERE id = $1`,
		id, totals.Subtotal, totals.TaxAmount, totals.Total)
	return err
}

// Transition applies a workflow step guarded by the allowed source statuses.
func (q *queries) Transition(ctx context.Context, id int64, t Transition) error {
	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = string(s)
	}
	var sql string
	args := []any{id, from, t.To, t.At}
	switch t.To {
	case StatusSent:
		sql = `UPDATE quotations SET status = $3, sent_at = $4, updated_at = NOW()
			WHERE id = $1 AND status = ANY($2) AND deleted_at IS NULL`
	case StatusAccepted:
		sql = `UPDATE quotations SET status = $3, accepted_at = $4, accepted_by = $5, accepted_notes = $6, updated_at = NOW()
			WHERE id = $1 AND status = ANY($2) AND deleted_at IS NULL`
		args = append(args, t.By, t.Note)
	case StatusRejected:
		sql = `UPDATE quotations SET status = $3, rejected_at = $4, rejected_by = $5, rejection_reason = $6, updated_at = NOW()
			WHERE id = $1 AND status = ANY($2) AND deleted_at IS NULL`
		args = append(args, t.By, t.Note)
	default:
		return fmt.Errorf("%w: unsupported target status %s", shared.ErrInvalidState, t.To)
	}
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quotation %d changed concurrently", shared.ErrInvalidState, id)
	}
	return nil
}

func (q *queries) SoftDelete(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE quotations SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quotation %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
