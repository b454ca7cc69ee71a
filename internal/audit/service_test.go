package audit

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type stubRepo struct {
	rows       []TimelineRow
	lastFilter TimelineFilters
	lastOffset int
	lastLimit  int
}

func (s *stubRepo) Window(_ context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	s.lastFilter, s.lastOffset, s.lastLimit = f, offset, limit
	end := offset + limit
	if offset > len(s.rows) {
		return nil, nil
	}
	if end > len(s.rows) {
		end = len(s.rows)
	}
	return s.rows[offset:end], nil
}

var (
	admin  = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	member = shared.Actor{ID: 2, Role: shared.RoleMember}
	fixed  = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
)

func sampleRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	actor := int64(1)
	for i := range rows {
		rows[i] = TimelineRow{
			ID:        int64(n - i),
			At:        fixed.Add(-time.Duration(i) * time.Hour),
			ActorID:   &actor,
			ActorName: "Club Admin",
			Action:    "accept",
			Entity:    "quotation",
			EntityID:  int64(100 + i),
			Meta:      map[string]any{"status": "accepted"},
		}
	}
	return rows
}

func newService(repo Repository) *Service {
	svc := NewService(repo)
	svc.now = func() time.Time { return fixed }
	return svc
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(5)}
	svc := newService(repo)

	result, err := svc.Timeline(context.Background(), admin, TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.lastLimit)
	assert.Equal(t, 0, repo.lastOffset)

	result, err = svc.Timeline(context.Background(), admin, TimelineFilters{Page: 3, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.False(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.PrevPage)
	assert.Equal(t, 4, repo.lastOffset)
}

func TestTimelineDefaultsWindowAndClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := newService(repo)

	result, err := svc.Timeline(context.Background(), admin, TimelineFilters{PageSize: 500, Entity: "  due "})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize, result.Paging.PageSize)
	assert.Equal(t, fixed, repo.lastFilter.To)
	assert.Equal(t, fixed.Add(-7*24*time.Hour), repo.lastFilter.From)
	assert.Equal(t, "due", repo.lastFilter.Entity)
}

func TestTimelineRejectsBadRanges(t *testing.T) {
	svc := newService(&stubRepo{})

	_, err := svc.Timeline(context.Background(), admin, TimelineFilters{From: fixed, To: fixed.Add(-time.Hour)})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "to")

	_, err = svc.Timeline(context.Background(), admin, TimelineFilters{From: fixed.AddDate(0, -6, 0), To: fixed})
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	assert.Contains(t, verr.Fields, "from")
}

func TestTimelineIsAdminOnly(t *testing.T) {
	svc := newService(&stubRepo{})
	_, err := svc.Timeline(context.Background(), member, TimelineFilters{})
	assert.ErrorIs(t, err, shared.ErrForbidden)
	_, err = svc.Export(context.Background(), member, TimelineFilters{})
	assert.ErrorIs(t, err, shared.ErrForbidden)
}

func TestWriteCSV(t *testing.T) {
	rows := sampleRows(2)
	rows[1].ActorID = nil
	rows[1].ActorName = ""
	rows[1].Meta = nil

	raw, err := WriteCSV(rows)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"2", "2026-03-15T10:00:00Z", "1", "Club Admin", "accept", "quotation", "100", `{"status":"accepted"}`}, records[1])
	assert.Equal(t, "", records[2][2])
	assert.Equal(t, "", records[2][7])
}

func newAuditRouter(repo Repository, actor shared.Actor) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, newService(repo), rbac.Middleware{Service: rbac.NewService(), Logger: logger})
	h.now = func() time.Time { return fixed }
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	r.Route("/audit", h.MountRoutes)
	return r
}

func TestHandlerTimelineAndExport(t *testing.T) {
	repo := &stubRepo{rows: sampleRows(3)}
	router := newAuditRouter(repo, admin)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?entity=quotation&entity_id=100&from=2026-03-10&per_page=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"has_next":true`)
	require.NotNil(t, repo.lastFilter.EntityID)
	assert.Equal(t, int64(100), *repo.lastFilter.EntityID)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), repo.lastFilter.From)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "audit-20260315-100000.csv")
	assert.Equal(t, maxExportRows, repo.lastLimit)
}

func TestHandlerRejectsBadQueryAndMembers(t *testing.T) {
	rr := httptest.NewRecorder()
	newAuditRouter(&stubRepo{}, admin).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit?from=yesterday&page=x", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Contains(t, rr.Body.String(), `"from"`)
	assert.Contains(t, rr.Body.String(), `"page"`)

	rr = httptest.NewRecorder()
	newAuditRouter(&stubRepo{}, member).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}
