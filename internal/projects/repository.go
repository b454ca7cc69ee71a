package projects

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Repository exposes project reads and transactional writes.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	List(ctx context.Context, filter ListFilter) ([]Project, int, error)
	Get(ctx context.Context, id int64) (Project, error)
	Members(ctx context.Context, projectID int64) ([]Member, error)
	IsMember(ctx context.Context, projectID, userID int64) (bool, error)
	StatusTotals(ctx context.Context) ([]StatusTotal, error)
}

// TxRepository defines operations executed inside a transaction.
type TxRepository interface {
	Lock(ctx context.Context, id int64) (Project, error)
	Create(ctx context.Context, p Project) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SoftDelete(ctx context.Context, id int64) error
	CommitteeExists(ctx context.Context, id int64) (bool, error)
	UserExists(ctx context.Context, id int64) (bool, error)
	MemberRole(ctx context.Context, projectID, userID int64) (MemberRole, bool, error)
	UpsertMember(ctx context.Context, projectID, userID int64, role MemberRole) error
	RemoveMember(ctx context.Context, projectID, userID int64) error
}

// StatusTotal is one row of the per-status aggregate.
type StatusTotal struct {
	Status Status
	Count  int
	Budget decimal.Decimal
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

const projectSelect = `SELECT p.id, p.name, p.description, p.committee_id, c.name, p.status,
	p.start_date, p.end_date, p.budget, p.created_by, COALESCE(u.name, ''),
	(SELECT COUNT(*) FROM project_members pm WHERE pm.project_id = p.id AND pm.left_at IS NULL),
	p.created_at, p.updated_at
	FROM projects p
	LEFT JOIN committees c ON c.id = p.committee_id
	LEFT JOIN users u ON u.id = p.created_by`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CommitteeID, &p.CommitteeName, &p.Status,
		&p.StartDate, &p.EndDate, &p.Budget, &p.CreatedBy, &p.CreatorName, &p.MembersCount,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var conds db.Conditions
	conds.Add("p.deleted_at IS NULL")
	if filter.Status != "" {
		conds.Add("p.status = ?", filter.Status)
	}
	if filter.CommitteeID != nil {
		conds.Add("p.committee_id = ?", *filter.CommitteeID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("(p.name ILIKE ? OR p.description ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM projects p "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY p.created_at DESC, p.id DESC LIMIT %s OFFSET %s", projectSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Project, error) {
	return r.q.get(ctx, id, "")
}

func (r *pgRepository) Members(ctx context.Context, projectID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, u.email, pm.role, pm.joined_at
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1 AND pm.left_at IS NULL AND u.deleted_at IS NULL
		ORDER BY CASE pm.role WHEN 'manager' THEN 0 WHEN 'member' THEN 1 ELSE 2 END, u.name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Name, &m.Email, &m.Role, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgRepository) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL)`, projectID, userID).Scan(&ok)
	return ok, err
}

func (r *pgRepository) StatusTotals(ctx context.Context) ([]StatusTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(budget), 0)
		FROM projects WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusTotal
	for rows.Next() {
		var t StatusTotal
		if err := rows.Scan(&t.Status, &t.Count, &t.Budget); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) get(ctx context.Context, id int64, suffix string) (Project, error) {
	p, err := scanProject(q.db.QueryRow(ctx, projectSelect+" WHERE p.id = $1 AND p.deleted_at IS NULL"+suffix, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
		}
		return Project{}, err
	}
	return p, nil
}

func (q *queries) Lock(ctx context.Context, id int64) (Project, error) {
	return q.get(ctx, id, " FOR UPDATE OF p")
}

func (q *queries) Create(ctx context.Context, p Project) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `INSERT INTO projects (name, description, committee_id, status, start_date, end_date, budget, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
		p.Name, p.Description, p.CommitteeID, p.Status, p.StartDate, p.EndDate, p.Budget, p.CreatedBy).Scan(&id)
	return id, err
}

func (q *queries) Update(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.Name != nil {
		set.Set("name", strings.TrimSpace(*input.Name))
	}
	if input.Description != nil {
		set.Set("description", *input.Description)
	}
	if input.CommitteeID != nil {
		set.Set("committee_id", *input.CommitteeID)
	}
	if input.Status != nil {
		set.Set("status", *input.Status)
	}
	if input.StartDate != nil {
		set.Set("start_date", *input.StartDate)
	}
	if input.EndDate != nil {
		set.Set("end_date", *input.EndDate)
	}
	if input.Budget != nil {
		set.Set("budget", *input.Budget)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("projects", id)
	_, err := q.db.Exec(ctx, query, args...)
	return err
}

func (q *queries) SoftDelete(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE projects SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (q *queries) CommitteeExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM committees WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}

func (q *queries) UserExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}

func (q *queries) MemberRole(ctx context.Context, projectID, userID int64) (MemberRole, bool, error) {
	var role MemberRole
	err := q.db.QueryRow(ctx, `SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL`, projectID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (q *queries) UpsertMember(ctx context.Context, projectID, userID int64, role MemberRole) error {
	_, err := q.db.Exec(ctx, `INSERT INTO project_members (project_id, user_id, role, joined_at, left_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NULL, NOW(), NOW())
		ON CONFLICT (project_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			joined_at = CASE WHEN project_members.left_at IS NULL THEN project_members.joined_at ELSE NOW() END,
			left_at = NULL,
			updated_at = NOW()`, projectID, userID, role)
	return err
}

func (q *queries) RemoveMember(ctx context.Context, projectID, userID int64) error {
	tag, err := q.db.Exec(ctx, `UPDATE project_members SET left_at = NOW(), updated_at = NOW()
		WHERE project_id = $1 AND user_id = $2 AND left_at IS NULL`, projectID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("project member %d: %w", userID, shared.ErrNotFound)
	}
	return nil
}
