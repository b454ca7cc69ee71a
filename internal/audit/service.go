package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
	maxRange        = 90 * 24 * time.Hour
	defaultRange    = 7 * 24 * time.Hour
	// maxExportRows caps a single CSV export.
	maxExportRows = 5000
)

// Service serves the audit timeline.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates an audit timeline service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Timeline returns one page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, actor shared.Actor, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	if err := rbac.Ensure(rbac.IsAdmin(actor), "view audit trail"); err != nil {
		return Result{}, err
	}
	filters, err := s.normalise(filters)
	if err != nil {
		return Result{}, err
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	rows, err := s.repo.Window(ctx, filters, (page-1)*pageSize, pageSize+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Export returns every entry matching filters, up to maxExportRows.
func (s *Service) Export(ctx context.Context, actor shared.Actor, filters TimelineFilters) ([]TimelineRow, error) {
	if s.repo == nil {
		return nil, fmt.Errorf("audit: repository not configured")
	}
	if err := rbac.Ensure(rbac.IsAdmin(actor), "export audit trail"); err != nil {
		return nil, err
	}
	filters, err := s.normalise(filters)
	if err != nil {
		return nil, err
	}
	return s.repo.Window(ctx, filters, 0, maxExportRows)
}

// normalise applies the default window and enforces the maximum range.
func (s *Service) normalise(f TimelineFilters) (TimelineFilters, error) {
	f.Entity = strings.TrimSpace(f.Entity)
	f.Action = strings.TrimSpace(f.Action)
	if f.To.IsZero() {
		f.To = s.now().UTC()
	}
	if f.From.IsZero() {
		f.From = f.To.Add(-defaultRange)
	}
	verr := shared.NewValidationError()
	if !f.To.After(f.From) {
		verr.Add("to", "must be after from")
	} else if f.To.Sub(f.From) > maxRange {
		verr.Add("from", "range cannot exceed 90 days")
	}
	return f, verr.OrNil()
}
