package dues

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Repository persists dues.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Due, int, error)
	Overdue(ctx context.Context, today time.Time) ([]Due, error)
	Get(ctx context.Context, id int64) (Due, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	Create(ctx context.Context, due Due) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SoftDelete(ctx context.Context, id int64) error
	MarkPaid(ctx context.Context, id int64, payment Payment) error
	Waive(ctx context.Context, id int64, note string) error
	Totals(ctx context.Context, query TotalsQuery) ([]Bucket, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const dueSelect = `SELECT d.id, d.user_id, COALESCE(u.name, ''), COALESCE(u.email, ''), d.recorded_by,
	d.amount, d.type, d.status, d.due_date, d.paid_at, d.payment_method, d.transaction_id, d.notes,
	d.created_at, d.updated_at
	FROM dues d
	LEFT JOIN users u ON u.id = d.user_id`

func scanDue(row pgx.Row) (Due, error) {
	var d Due
	err := row.Scan(&d.ID, &d.UserID, &d.UserName, &d.UserEmail, &d.RecordedBy,
		&d.Amount, &d.Type, &d.Status, &d.DueDate, &d.PaidAt, &d.PaymentMethod, &d.TransactionID, &d.Notes,
		&d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func collect(rows pgx.Rows) ([]Due, error) {
	defer rows.Close()
	var out []Due
	for rows.Next() {
		d, err := scanDue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Due, int, error) {
	var conds db.Conditions
	conds.Add("d.deleted_at IS NULL")
	if filter.UserID != nil {
		conds.Add("d.user_id = ?", *filter.UserID)
	}
	switch filter.Status {
	case "":
	case StatusOverdue:
		conds.Add("d.status = 'pending' AND d.due_date < ?", shared.Today(filter.Today))
	case StatusPending:
		conds.Add("d.status = 'pending' AND d.due_date >= ?", shared.Today(filter.Today))
	default:
		conds.Add("d.status = ?", filter.Status)
	}
	if filter.Type != "" {
		conds.Add("d.type = ?", filter.Type)
	}
	if filter.Year != nil {
		conds.Add("EXTRACT(YEAR FROM d.due_date) = ?", *filter.Year)
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM dues d "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY d.due_date DESC, d.id DESC LIMIT %s OFFSET %s", dueSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

func (r *pgRepository) Overdue(ctx context.Context, today time.Time) ([]Due, error) {
	rows, err := r.pool.Query(ctx, dueSelect+` WHERE d.deleted_at IS NULL AND d.status = 'pending' AND d.due_date < $1
		ORDER BY d.due_date ASC, d.id ASC`, shared.Today(today))
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Due, error) {
	d, err := scanDue(r.pool.QueryRow(ctx, dueSelect+" WHERE d.id = $1 AND d.deleted_at IS NULL", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Due{}, fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
		}
		return Due{}, err
	}
	return d, nil
}

func (r *pgRepository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, userID).Scan(&ok)
	return ok, err
}

func (r *pgRepository) Create(ctx context.Context, due Due) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO dues (user_id, recorded_by, amount, type, status, due_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		due.UserID, due.RecordedBy, due.Amount, due.Type, due.Status, due.DueDate, due.Notes).Scan(&id)
	return id, err
}

func (r *pgRepository) Update(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.Amount != nil {
		set.Set("amount", *input.Amount)
	}
	if input.Type != nil {
		set.Set("type", *input.Type)
	}
	if input.Status != nil {
		set.Set("status", *input.Status)
		if Status(*input.Status) == StatusPending {
			// Reopening a paid due drops its payment record.
			set.Set("paid_at", nil)
			set.Set("payment_method", nil)
			set.Set("transaction_id", nil)
		}
	}
	if input.DueDate != nil {
		set.Set("due_date", *input.DueDate)
	}
	if input.Notes != nil {
		set.Set("notes", *input.Notes)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("dues", id)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dues SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("due %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

// MarkPaid settles a due that has not been waived. The note is appended.
func (r *pgRepository) MarkPaid(ctx context.Context, id int64, payment Payment) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dues SET
			status = 'paid',
			paid_at = $2,
			payment_method = $3,
			transaction_id = $4,
			notes = CONCAT_WS(E'\n', NULLIF(notes, ''), $5::text),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status IN ('pending', 'paid')`,
		id, payment.PaidAt, payment.Method, payment.TransactionID, payment.Note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: due %d can no longer be paid", shared.ErrInvalidState, id)
	}
	return nil
}

// Waive marks a pending due as waived and appends the note.
func (r *pgRepository) Waive(ctx context.Context, id int64, note string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE dues SET
			status = 'waived',
			notes = CONCAT_WS(E'\n', NULLIF(notes, ''), $2::text),
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status = 'pending'`, id, note)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: due %d is not pending", shared.ErrInvalidState, id)
	}
	return nil
}

func (r *pgRepository) Totals(ctx context.Context, query TotalsQuery) ([]Bucket, error) {
	var conds db.Conditions
	conds.Add("deleted_at IS NULL")
	if query.UserID != nil {
		conds.Add("user_id = ?", *query.UserID)
	}
	if !query.From.IsZero() {
		conds.Add("due_date >= ?", query.From)
	}
	if !query.To.IsZero() {
		conds.Add("due_date < ?", query.To)
	}
	ph, args := conds.Next(shared.Today(query.Today))
	sql := fmt.Sprintf(`SELECT date_trunc('month', due_date)::date AS month,
			CASE WHEN status = 'pending' AND due_date < %s THEN 'overdue' ELSE status END AS reported,
			type, COUNT(*), COALESCE(SUM(amount), 0)
		FROM dues %s
		GROUP BY 1, 2, 3
		ORDER BY 1`, ph[0], conds.Where())
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Month, &b.Status, &b.Type, &b.Count, &b.Amount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
