package users

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

// Repository defines data access methods for users.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user User, passwordHash string) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SoftDelete(ctx context.Context, id int64) error
	EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error)
	PasswordHash(ctx context.Context, id int64) (string, error)
	SetPasswordHash(ctx context.Context, id int64, hash string) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const userColumns = `id, name, email, role, phone, membership_number, status, joined_at, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Phone, &u.MembershipNumber, &u.Status, &u.JoinedAt, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var conds db.Conditions
	conds.Add("deleted_at IS NULL")
	if filter.Role != "" {
		conds.Add("role = ?", filter.Role)
	}
	if filter.Status != "" {
		conds.Add("status = ?", filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + search + "%"
		conds.Add("(name ILIKE ? OR email ILIKE ? OR membership_number ILIKE ?)", like, like, like)
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	query := fmt.Sprintf("SELECT %s FROM users %s ORDER BY name ASC, id ASC LIMIT %s OFFSET %s", userColumns, conds.Where(), ph[0], ph[1])
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1 AND deleted_at IS NULL", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
		}
		return User{}, err
	}
	return u, nil
}

func (r *pgRepository) Create(ctx context.Context, user User, passwordHash string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (name, email, password_hash, role, phone, membership_number, status, joined_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()) RETURNING id`,
		user.Name, strings.ToLower(user.Email), passwordHash, user.Role, user.Phone, user.MembershipNumber, user.Status, user.JoinedAt,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.Invalid("email", "The email has already been taken.")
		}
		return 0, err
	}
	return id, nil
}

func (r *pgRepository) Update(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.Name != nil {
		set.Set("name", *input.Name)
	}
	if input.Email != nil {
		set.Set("email", strings.ToLower(*input.Email))
	}
	if input.Role != nil {
		set.Set("role", *input.Role)
	}
	if input.Phone != nil {
		set.Set("phone", *input.Phone)
	}
	if input.MembershipNumber != nil {
		set.Set("membership_number", *input.MembershipNumber)
	}
	if input.Status != nil {
		set.Set("status", *input.Status)
	}
	if input.JoinedAt != nil {
		set.Set("joined_at", input.JoinedAt.Time)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("users", id)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.Invalid("email", "The email has already been taken.")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "UPDATE users SET deleted_at = NOW(), status = 'inactive' WHERE id = $1 AND deleted_at IS NULL", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) EmailTaken(ctx context.Context, email string, exceptID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1) AND id <> $2 AND deleted_at IS NULL)", email, exceptID).Scan(&exists)
	return exists, err
}

func (r *pgRepository) PasswordHash(ctx context.Context, id int64) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, "SELECT password_hash FROM users WHERE id = $1 AND deleted_at IS NULL", id).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %d: %w", id, shared.ErrNotFound)
	}
	return hash, err
}

func (r *pgRepository) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	_, err := r.pool.Exec(ctx, "UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1", id, hash)
	return err
}
