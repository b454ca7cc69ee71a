package events

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

// Repository persists events.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Event, int, error)
	Upcoming(ctx context.Context, from time.Time, limit int) ([]Event, error)
	Get(ctx context.Context, id int64) (Event, error)
	Create(ctx context.Context, e Event) (int64, error)
	Save(ctx context.Context, e Event) error
	SoftDelete(ctx context.Context, id int64) error
	CommitteeExists(ctx context.Context, id int64) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const eventSelect = `SELECT id, title, description, location, type, visibility, status, starts_at, ends_at,
	committee_id, created_by, created_at, updated_at FROM events`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &e.Type, &e.Visibility, &e.Status,
		&e.StartsAt, &e.EndsAt, &e.CommitteeID, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func collect(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Event, int, error) {
	var conds db.Conditions
	conds.Add("deleted_at IS NULL")
	if !filter.IncludeMembers {
		conds.Add("visibility = ?", VisibilityPublic)
	}
	if filter.Type != "" {
		conds.Add("type = ?", filter.Type)
	}
	if filter.Status != "" {
		conds.Add("status = ?", filter.Status)
	}
	if filter.From != nil {
		conds.Add("ends_at >= ?", *filter.From)
	}
	if filter.To != nil {
		conds.Add("starts_at <= ?", *filter.To)
	}
	if filter.CommitteeID != nil {
		conds.Add("committee_id = ?", *filter.CommitteeID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("(title ILIKE ? OR location ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM events "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY starts_at, id LIMIT %s OFFSET %s", eventSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

func (r *pgRepository) Upcoming(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, eventSelect+` WHERE deleted_at IS NULL AND visibility = 'public' AND status = 'scheduled' AND starts_at >= $1
		ORDER BY starts_at, id LIMIT $2`, from, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, eventSelect+" WHERE id = $1 AND deleted_at IS NULL", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, fmt.Errorf("event %d: %w", id, shared.ErrNotFound)
	}
	return e, err
}

func (r *pgRepository) Create(ctx context.Context, e Event) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO events (title, description, location, type, visibility, status, starts_at, ends_at,
		committee_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()) RETURNING id`,
		e.Title, e.Description, e.Location, e.Type, e.Visibility, e.Status, e.StartsAt, e.EndsAt,
		e.CommitteeID, e.CreatedBy).Scan(&id)
	return id, err
}

func (r *pgRepository) Save(ctx context.Context, e Event) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET title = $2, description = $3, location = $4, type = $5,
		visibility = $6, status = $7, starts_at = $8, ends_at = $9, committee_id = $10, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		e.ID, e.Title, e.Description, e.Location, e.Type, e.Visibility, e.Status, e.StartsAt, e.EndsAt, e.CommitteeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", e.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) CommitteeExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM committees WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}
