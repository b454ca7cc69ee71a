package blog

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

// Repository persists blog posts.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Post, int, error)
	Get(ctx context.Context, id int64) (Post, error)
	GetBySlug(ctx context.Context, slug string) (Post, error)
	SlugTaken(ctx context.Context, slug string, exceptID int64) (bool, error)
	Create(ctx context.Context, p Post) (int64, error)
	Save(ctx context.Context, p Post) error
	SoftDelete(ctx context.Context, id int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const postSelect = `SELECT b.id, b.title, b.slug, b.excerpt, b.content, b.status, b.author_id,
	COALESCE(u.name, ''), b.published_at, b.created_at, b.updated_at
	FROM blog_posts b
	LEFT JOIN users u ON u.id = b.author_id`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.Title, &p.Slug, &p.Excerpt, &p.Content, &p.Status, &p.AuthorID,
		&p.AuthorName, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Post, int, error) {
	var conds db.Conditions
	conds.Add("b.deleted_at IS NULL")
	if filter.Status != "" {
		conds.Add("b.status = ?", filter.Status)
	}
	if filter.AuthorID != nil {
		conds.Add("b.author_id = ?", *filter.AuthorID)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("(b.title ILIKE ? OR b.content ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM blog_posts b "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY COALESCE(b.published_at, b.created_at) DESC, b.id DESC LIMIT %s OFFSET %s", postSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, postSelect+" WHERE b.id = $1 AND b.deleted_at IS NULL", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, fmt.Errorf("post %d: %w", id, shared.ErrNotFound)
	}
	return p, err
}

func (r *pgRepository) GetBySlug(ctx context.Context, slug string) (Post, error) {
	p, err := scanPost(r.pool.QueryRow(ctx, postSelect+" WHERE b.slug = $1 AND b.deleted_at IS NULL", slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, fmt.Errorf("post %q: %w", slug, shared.ErrNotFound)
	}
	return p, err
}

// SlugTaken includes soft-deleted rows because the unique index covers them.
func (r *pgRepository) SlugTaken(ctx context.Context, slug string, exceptID int64) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM blog_posts WHERE slug = $1 AND id <> $2)`, slug, exceptID).Scan(&taken)
	return taken, err
}

func (r *pgRepository) Create(ctx context.Context, p Post) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO blog_posts (title, slug, excerpt, content, status, author_id, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		p.Title, p.Slug, p.Excerpt, p.Content, p.Status, p.AuthorID, p.PublishedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, shared.Invalid("slug", "The slug has already been taken.")
		}
		return 0, err
	}
	return id, nil
}

func (r *pgRepository) Save(ctx context.Context, p Post) error {
	tag, err := r.pool.Exec(ctx, `UPDATE blog_posts SET title = $2, slug = $3, excerpt = $4, content = $5,
		status = $6, published_at = $7, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		p.ID, p.Title, p.Slug, p.Excerpt, p.Content, p.Status, p.PublishedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return shared.Invalid("slug", "The slug has already been taken.")
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %d: %w", p.ID, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE blog_posts SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("post %d: %w", id, shared.ErrNotFound)
	}
	return nil
}
