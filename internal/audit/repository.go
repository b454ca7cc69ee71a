package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var conds db.Conditions
	if !filters.From.IsZero() {
		conds.Add("a.occurred_at >= ?", filters.From)
	}
	if !filters.To.IsZero() {
		conds.Add("a.occurred_at < ?", filters.To)
	}
	if filters.ActorID != nil {
		conds.Add("a.actor_id = ?", *filters.ActorID)
	}
	if filters.Entity != "" {
		conds.Add("a.entity = ?", filters.Entity)
	}
	if filters.EntityID != nil {
		conds.Add("a.entity_id = ?", *filters.EntityID)
	}
	if filters.Action != "" {
		conds.Add("a.action = ?", filters.Action)
	}
	ph, args := conds.Next(limit, offset)
	query := fmt.Sprintf(`SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), a.action, a.entity, a.entity_id, a.meta
		FROM audit_logs a
		LEFT JOIN users u ON u.id = a.actor_id
		%s
		ORDER BY a.occurred_at DESC, a.id DESC
		LIMIT %s OFFSET %s`, conds.Where(), ph[0], ph[1])
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRow)
}

func scanRow(row pgx.CollectableRow) (TimelineRow, error) {
	var (
		out  TimelineRow
		meta []byte
	)
	if err := row.Scan(&out.ID, &out.At, &out.ActorID, &out.ActorName, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
		return out, err
	}
	if len(meta) > 0 && string(meta) != "null" {
		if err := json.Unmarshal(meta, &out.Meta); err != nil {
			return out, fmt.Errorf("audit: decode meta: %w", err)
		}
	}
	return out, nil
}
