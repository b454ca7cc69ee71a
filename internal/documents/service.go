package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/storage"
)

// FileStore keeps the uploaded bytes.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (storage.Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

// Service applies visibility and ownership rules to documents.
type Service struct {
	repo    Repository
	store   FileStore
	baseURL string
	logger  *slog.Logger
}

// NewService constructs the document service. baseURL prefixes download links.
func NewService(repo Repository, store FileStore, baseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, store: store, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// List returns the documents filter.Viewer may see.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, shared.Pagination, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("category", "The selected category is invalid.")
	}
	if filter.Visibility != "" && !filter.Visibility.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("visibility", "The selected visibility is invalid.")
	}
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list documents: %w", err)
	}
	for i := range items {
		items[i] = s.decorate(items[i])
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns a document the actor may view.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if err := s.ensureVisible(ctx, actor, d); err != nil {
		return Document{}, err
	}
	return s.decorate(d), nil
}

// Upload stores the file and records its metadata. The stored file is removed
// again when the metadata cannot be saved.
func (s *Service) Upload(ctx context.Context, actor shared.Actor, input UploadInput, fileName string, body io.Reader) (Document, error) {
	if actor.IsZero() {
		return Document{}, shared.ErrUnauthorized
	}
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		fields, ok := shared.AsValidationError(err)
		if !ok {
			return Document{}, err
		}
		verr.Merge(fields)
	}
	fileName = cleanFileName(fileName)
	if fileName == "" || body == nil {
		verr.Add("file", "The file field is required.")
	}
	if input.Category == "" {
		input.Category = CategoryOther
	}
	checkLinks(verr, input.Visibility, input.CommitteeID, input.ProjectID)
	if !verr.Empty() {
		return Document{}, verr
	}
	if err := s.ensureLinksExist(ctx, input.CommitteeID, input.ProjectID); err != nil {
		return Document{}, err
	}

	obj, err := s.store.Save(ctx, fileName, body)
	if err != nil {
		return Document{}, storageError(err)
	}
	d := Document{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Category:    input.Category,
		FileName:    fileName,
		FilePath:    obj.Path,
		MimeType:    obj.MimeType,
		Size:        obj.Size,
		Visibility:  input.Visibility,
		UploadedBy:  actor.ID,
		CommitteeID: input.CommitteeID,
		ProjectID:   input.ProjectID,
	}
	id, err := s.repo.Create(ctx, d)
	if err != nil {
		if derr := s.store.Delete(ctx, obj.Path); derr != nil {
			s.logger.Warn("remove orphaned upload", slog.String("path", obj.Path), slog.Any("error", derr))
		}
		return Document{}, fmt.Errorf("create document: %w", err)
	}
	s.logger.Info("document uploaded", slog.Int64("document_id", id), slog.Int64("actor_id", actor.ID), slog.Int64("size", obj.Size))
	return s.Get(ctx, actor, id)
}

// Update replaces document metadata. Only the uploader or an admin may edit.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Document, error) {
	if err := shared.Validate(input); err != nil {
		return Document{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return Document{}, err
	}
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, current.UploadedBy), "update document"); err != nil {
		return Document{}, err
	}
	visibility, committeeID, projectID := current.Visibility, current.CommitteeID, current.ProjectID
	if input.Visibility != nil {
		visibility = *input.Visibility
	}
	if input.CommitteeID != nil {
		committeeID = input.CommitteeID
	}
	if input.ProjectID != nil {
		projectID = input.ProjectID
	}
	verr := shared.NewValidationError()
	checkLinks(verr, visibility, committeeID, projectID)
	if !verr.Empty() {
		return Document{}, verr
	}
	if err := s.ensureLinksExist(ctx, input.CommitteeID, input.ProjectID); err != nil {
		return Document{}, err
	}
	if err := s.repo.Update(ctx, id, input); err != nil {
		return Document{}, err
	}
	return s.Get(ctx, actor, id)
}

// Delete soft-deletes the document and removes its file.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, d.UploadedBy), "delete document"); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, d.FilePath); err != nil {
		s.logger.Warn("remove document file", slog.Int64("document_id", id), slog.String("path", d.FilePath), slog.Any("error", err))
	}
	s.logger.Info("document deleted", slog.Int64("document_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// Download opens the file of a visible document and counts the download.
// The caller closes the returned reader.
func (s *Service) Download(ctx context.Context, actor shared.Actor, id int64) (Document, io.ReadCloser, error) {
	d, err := s.Get(ctx, actor, id)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.store.Open(ctx, d.FilePath)
	if err != nil {
		return Document{}, nil, err
	}
	if err := s.repo.IncrementDownloads(ctx, id); err != nil {
		s.logger.Warn("count document download", slog.Int64("document_id", id), slog.Any("error", err))
	} else {
		d.DownloadCount++
	}
	return d, rc, nil
}

func (s *Service) ensureVisible(ctx context.Context, actor shared.Actor, d Document) error {
	var membership rbac.Membership
	if d.Visibility == VisibilityRestricted && !actor.IsZero() && !rbac.OwnsOrAdmin(actor, d.UploadedBy) {
		m, err := s.repo.Membership(ctx, actor.ID, d.CommitteeID, d.ProjectID)
		if err != nil {
			return fmt.Errorf("document membership: %w", err)
		}
		membership = m
	}
	if rbac.CanViewDocument(actor, d.access(), membership) {
		return nil
	}
	if actor.IsZero() {
		return shared.ErrUnauthorized
	}
	return fmt.Errorf("view document %d: %w", d.ID, shared.ErrForbidden)
}

func (s *Service) ensureLinksExist(ctx context.Context, committeeID, projectID *int64) error {
	verr := shared.NewValidationError()
	if committeeID != nil {
		ok, err := s.repo.CommitteeExists(ctx, *committeeID)
		if err != nil {
			return err
		}
		if !ok {
			verr.Add("committee_id", "The selected committee is invalid.")
		}
	}
	if projectID != nil {
		ok, err := s.repo.ProjectExists(ctx, *projectID)
		if err != nil {
			return err
		}
		if !ok {
			verr.Add("project_id", "The selected project is invalid.")
		}
	}
	return verr.OrNil()
}

func (s *Service) decorate(d Document) Document {
	d.DownloadURL = fmt.Sprintf("%s/%d/download", s.baseURL, d.ID)
	return d
}

// checkLinks requires restricted documents to name the group that may see them.
func checkLinks(verr *shared.ValidationError, visibility Visibility, committeeID, projectID *int64) {
	if visibility == VisibilityRestricted && committeeID == nil && projectID == nil {
		verr.Add("visibility", "A restricted document must belong to a committee or a project.")
	}
}

func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return shared.Invalid("file", "The file is larger than the upload limit.")
	case errors.Is(err, storage.ErrUnsupportedType):
		return shared.Invalid("file", "The file type is not allowed.")
	}
	return fmt.Errorf("store document: %w", err)
}

// cleanFileName keeps only the base name a client sent.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	if len(base) > 255 {
		ext := filepath.Ext(base)
		base = base[:255-len(ext)] + ext
	}
	return base
}
