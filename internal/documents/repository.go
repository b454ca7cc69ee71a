package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/db"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Repository persists document metadata.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	Get(ctx context.Context, id int64) (Document, error)
	Create(ctx context.Context, d Document) (int64, error)
	Update(ctx context.Context, id int64, input UpdateInput) error
	SoftDelete(ctx context.Context, id int64) error
	IncrementDownloads(ctx context.Context, id int64) error
	Membership(ctx context.Context, userID int64, committeeID, projectID *int64) (rbac.Membership, error)
	CommitteeExists(ctx context.Context, id int64) (bool, error)
	ProjectExists(ctx context.Context, id int64) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const documentSelect = `SELECT d.id, d.title, d.description, d.category, d.file_name, d.file_path,
	d.mime_type, d.size, d.visibility, d.uploaded_by, COALESCE(u.name, ''), d.committee_id,
	d.project_id, d.download_count, d.created_at, d.updated_at
	FROM documents d
	LEFT JOIN users u ON u.id = d.uploaded_by`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.Category, &d.FileName, &d.FilePath,
		&d.MimeType, &d.Size, &d.Visibility, &d.UploadedBy, &d.UploaderName, &d.CommitteeID,
		&d.ProjectID, &d.DownloadCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// visibleTo mirrors rbac.CanViewDocument in SQL so listings and pagination
// only ever count rows the viewer may open.
func visibleTo(conds *db.Conditions, viewer shared.Actor) {
	if viewer.IsZero() {
		conds.Add("d.visibility = 'public'")
		return
	}
	conds.Add(`(d.visibility = 'public'
		OR d.uploaded_by = ?
		OR (d.visibility = 'restricted' AND (
			? = 'admin'
			OR (d.committee_id IS NOT NULL AND EXISTS (SELECT 1 FROM committee_members cm WHERE cm.committee_id = d.committee_id AND cm.user_id = ? AND cm.left_at IS NULL))
			OR (d.project_id IS NOT NULL AND EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id = d.project_id AND pm.user_id = ? AND pm.left_at IS NULL)))))`,
		viewer.ID, string(viewer.Role), viewer.ID, viewer.ID)
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var conds db.Conditions
	conds.Add("d.deleted_at IS NULL")
	visibleTo(&conds, filter.Viewer)
	if filter.Category != "" {
		conds.Add("d.category = ?", filter.Category)
	}
	if filter.Visibility != "" {
		conds.Add("d.visibility = ?", filter.Visibility)
	}
	if filter.CommitteeID != nil {
		conds.Add("d.committee_id = ?", *filter.CommitteeID)
	}
	if filter.ProjectID != nil {
		conds.Add("d.project_id = ?", *filter.ProjectID)
	}
	if filter.UploadedBy != nil {
		conds.Add("d.uploaded_by = ?", *filter.UploadedBy)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		conds.Add("(d.title ILIKE ? OR d.description ILIKE ?)", "%"+search+"%", "%"+search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM documents d "+conds.Where(), conds.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	ph, args := conds.Next(filter.Page.Limit(), filter.Page.Offset())
	rows, err := r.pool.Query(ctx, fmt.Sprintf("%s %s ORDER BY d.created_at DESC, d.id DESC LIMIT %s OFFSET %s", documentSelect, conds.Where(), ph[0], ph[1]), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Document, error) {
	d, err := scanDocument(r.pool.QueryRow(ctx, documentSelect+" WHERE d.id = $1 AND d.deleted_at IS NULL", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("document %d: %w", id, shared.ErrNotFound)
		}
		return Document{}, err
	}
	return d, nil
}

func (r *pgRepository) Create(ctx context.Context, d Document) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO documents (title, description, category, file_name, file_path, mime_type, size,
		visibility, uploaded_by, committee_id, project_id, download_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, NOW(), NOW()) RETURNING id`,
		d.Title, d.Description, d.Category, d.FileName, d.FilePath, d.MimeType, d.Size,
		d.Visibility, d.UploadedBy, d.CommitteeID, d.ProjectID).Scan(&id)
	return id, err
}

func (r *pgRepository) Update(ctx context.Context, id int64, input UpdateInput) error {
	var set db.Assignments
	if input.Title != nil {
		set.Set("title", strings.TrimSpace(*input.Title))
	}
	if input.Description != nil {
		set.Set("description", *input.Description)
	}
	if input.Category != nil {
		set.Set("category", *input.Category)
	}
	if input.Visibility != nil {
		set.Set("visibility", *input.Visibility)
	}
	if input.CommitteeID != nil {
		set.Set("committee_id", *input.CommitteeID)
	}
	if input.ProjectID != nil {
		set.Set("project_id", *input.ProjectID)
	}
	if set.Empty() {
		return nil
	}
	query, args := set.Update("documents", id)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE documents SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *pgRepository) IncrementDownloads(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE documents SET download_count = download_count + 1 WHERE id = $1`, id)
	return err
}

func (r *pgRepository) Membership(ctx context.Context, userID int64, committeeID, projectID *int64) (rbac.Membership, error) {
	var m rbac.Membership
	err := r.pool.QueryRow(ctx, `SELECT
		$2::bigint IS NOT NULL AND EXISTS (SELECT 1 FROM committee_members WHERE committee_id = $2 AND user_id = $1 AND left_at IS NULL),
		$3::bigint IS NOT NULL AND EXISTS (SELECT 1 FROM project_members WHERE project_id = $3 AND user_id = $1 AND left_at IS NULL)`,
		userID, committeeID, projectID).Scan(&m.InCommittee, &m.InProject)
	return m, err
}

func (r *pgRepository) CommitteeExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM committees WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}

func (r *pgRepository) ProjectExists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1 AND deleted_at IS NULL)`, id).Scan(&ok)
	return ok, err
}
