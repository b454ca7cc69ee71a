package committees

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Repository exposes committee reads and transactional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Committee, int, error)
	Get(ctx context.Context, id int64) (Committee, error)
	Members(ctx context.Context, committeeID int64) ([]Member, error)
	IsMember(ctx context.Context, committeeID, userID int64) (bool, error)
}

// TxRepository defines operations executed inside a transaction.
type TxRepository interface {
	Lock(ctx context.Context, id int64) (Committee, error)
	Create(ctx context.Context, c Committee) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SetChairperson(ctx context.Context, id, userID int64) error
	SoftDelete(ctx context.Context, id int64) error
	CountProjects(ctx context.Context, id int64) (int, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	MemberRole(ctx context.Context, committeeID, userID int64) (MemberRole, bool, error)
	UpsertMember(ctx context.Context, committeeID, userID int64, role MemberRole) error
	RemoveMember(ctx context.Context, committeeID, userID int64) error
}

var (
	_ Repository   = (*pgRepository)(nil)
	_ TxRepository = (*queries)(nil)
)

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

const committeeSelect = `SELECT c.id, c.name, c.description, c.chairperson_id, c.status,
	(SELECT COUNT(*) FROM committee_members cm WHERE cm.committee_id = c.id AND cm.left_at IS NULL),
	(SELECT COUNT(*) FROM projects p WHERE p.committee_id = c.id AND p.deleted_at IS NULL),
	c.created_at, c.updated_at
	FROM committees c`

func scanCommittee(row pgx.Row) (Committee, error) {
	var c Committee
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.ChairpersonID, &c.Status, &c.MembersCount, &c.ProjectsCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Committee, int, error) {
	var conds db.Conditions
	conds.Add("c.deleted_at IS NULL")
	if filter.Status != "" {
		conds.Add("c.status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("c.name ILIKE ?", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM committees c "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY c.name ASC LIMIT %s OFFSET %s", committeeSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Committee
	for rows.Next() {
		c, err := scanCommittee(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Committee, error) {
	return r.q.get(ctx, id, "")
}

func (r *pgRepository) Members(ctx context.Context, committeeID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, u.email, cm.role, cm.joined_at, cm.left_at
		FROM committee_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.committee_id = $1 AND cm.left_at IS NULL AND u.deleted_at IS NULL
		ORDER BY CASE cm.role WHEN 'chairperson' THEN 0 WHEN 'vice_chair' THEN 1 WHEN 'secretary' THEN 2 WHEN 'treasurer' THEN 3 ELSE 4 END, u.name`, committeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.Role, &m.JoinedAt, &m.LeftAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgRepository) IsMember(ctx context.Context, committeeID, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM committee_members WHERE committee_id = $1 AND user_id = $2 AND left_at IS NULL)`, committeeID, userID).Scan(&ok)
	return ok, err
}

func (q *queries) get(ctx context.Context, id int64, suffix string) (Committee, error) {
	c, err := scanCommittee(q.db.QueryRow(ctx, committeeSelect+" WHERE c.id = $1 AND c.deleted_at IS NULL"+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Committee{}, fmt.Errorf("committee %d: %w", id, shared.ErrNotFound)
		}
		return Committee{}, err
	}
	return c, nil
}

func (q *queries) Lock(ctx context.Context, id int64) (Committee, error) {
	return q.get(ctx, id, " FOR UPDATE OF c")
}

func (q *queries) Create(ctx context.Context, c Committee) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `INSERT INTO committees (name, description, chairperson_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING id`, c.Name, c.Description, c.ChairpersonID, c.Status).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.Invalid("name", "The name has already been taken.")
		}
		return 0, err
	}
	return id, nil
}

func (q *queries) Update(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.Name != nil {
		set.Set("name", strings.TrimSpace(*input.Name))
	}
	if input.Description != nil {
		set.Set("description", *input.Description)
	}
	if input.Status != nil {
		set.Set("status", *input.Status)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("committees", id)
	if _, err := q.db.Exec(ctx, query, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return shared.Invalid("name", "The name has already been taken.")
		}
		return err
	}
	return nil
}

func (q *queries) SetChairperson(ctx context.Context, id, userID int64) error {
	_, err := q.db.Exec(ctx, `UPDATE committees SET chairperson_id = $2, updated_at = NOW() WHERE id = $1`, id, userID)
	return err
}

func (q *queries) SoftDelete(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE committees SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("committee %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (q *queries) CountProjects(ctx context.Context, id int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM projects WHERE committee_id = $1 AND deleted_at IS NULL`, id).Scan(&n)
	return n, err
}

func (q *queries) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, userID).Scan(&ok)
	return ok, err
}

func (q *queries) MemberRole(ctx context.Context, committeeID, userID int64) (MemberRole, bool, error) {
	var role MemberRole
	err := q.db.QueryRow(ctx, `SELECT role FROM committee_members WHERE committee_id = $1 AND user_id = $2 AND left_at IS NULL`, committeeID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (q *queries) UpsertMember(ctx context.Context, committeeID, userID int64, role MemberRole) error {
	_, err := q.db.Exec(ctx, `INSERT INTO committee_members (committee_id, user_id, role, joined_at, left_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NULL, NOW(), NOW())
		ON CONFLICT (committee_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			joined_at = CASE WHEN committee_members.left_at IS NULL THEN committee_members.joined_at ELSE NOW() END,
			left_at = NULL,
			updated_at = NOW()`, committeeID, userID, role)
	return err
}

func (q *queries) RemoveMember(ctx context.Context, committeeID, userID int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE committee_members SET left_at = NOW(), updated_at = NOW()
		WHERE committee_id = $1 AND user_id = $2 AND left_at IS NULL`, committeeID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("committee member %d: %w", userID, shared.ErrNotFound)
	}
	return nil
}
