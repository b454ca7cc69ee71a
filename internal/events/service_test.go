package events

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type memoryRepo struct {
	events        map[int64]Event
	nextID        int64
	upcomingCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{events: make(map[int64]Event)}
}

func (r *memoryRepo) sorted() []Event {
	var out []Event
	for _, e := range r.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Event, int, error) {
	var out []Event
	for _, e := range r.sorted() {
		if !filter.IncludeMembers && e.Visibility != VisibilityPublic {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		out = append(out, e)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Upcoming(ctx context.Context, from time.Time, limit int) ([]Event, error) {
	r.upcomingCalls++
	var out []Event
	for _, e := range r.sorted() {
		if e.Visibility == VisibilityPublic && e.Status == StatusScheduled && !e.StartsAt.Before(from) {
			out = append(out, e)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Event, error) {
	e, ok := r.events[id]
	if !ok {
		return Event{}, fmt.Errorf("event %d: %w", id, shared.ErrNotFound)
	}
	return e, nil
}

func (r *memoryRepo) Create(ctx context.Context, e Event) (int64, error) {
	r.nextID++
	e.ID = r.nextID
	r.events[e.ID] = e
	return e.ID, nil
}

func (r *memoryRepo) Save(ctx context.Context, e Event) error {
	r.events[e.ID] = e
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	if _, ok := r.events[id]; !ok {
		return fmt.Errorf("event %d: %w", id, shared.ErrNotFound)
	}
	delete(r.events, id)
	return nil
}

func (r *memoryRepo) CommitteeExists(ctx context.Context, id int64) (bool, error) {
	return id == 5, nil
}

var (
	admin   = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	editor  = shared.Actor{ID: 2, Role: shared.RoleBlogManager}
	regular = shared.Actor{ID: 3, Role: shared.RoleMember}
	now     = time.Date(2026, time.March, 15, 9, 30, 0, 0, time.UTC)
)

func newTestService(repo Repository, c *cache.Cache) *Service {
	svc := NewService(repo, c, nil)
	svc.now = func() time.Time { return now }
	return svc
}

func event(title string, start time.Time, visibility Visibility) CreateInput {
	return CreateInput{Title: title, Type: TypeMeeting, Visibility: visibility, StartsAt: start, EndsAt: start.Add(2 * time.Hour)}
}

func TestCreateValidatesWindowAndPermissions(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, regular, event("Fellowship", now.Add(24*time.Hour), VisibilityPublic))
	require.ErrorIs(t, err, shared.ErrForbidden)

	input := event("Fellowship", now.Add(24*time.Hour), "")
	input.EndsAt = input.StartsAt
	_, err = svc.Create(ctx, editor, input)
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "ends_at")

	_, err = svc.Create(ctx, editor, CreateInput{Title: "x", Type: "gala"})
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "type")
	require.Contains(t, verr.Fields, "starts_at")

	bad := int64(9)
	input = event("Fellowship", now.Add(24*time.Hour), "")
	input.CommitteeID = &bad
	_, err = svc.Create(ctx, admin, input)
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "committee_id")

	e, err := svc.Create(ctx, editor, event("Fellowship", now.Add(24*time.Hour), ""))
	require.NoError(t, err)
	require.Equal(t, VisibilityPublic, e.Visibility)
	require.Equal(t, StatusScheduled, e.Status)

	earlier := e.EndsAt.Add(-3 * time.Hour)
	_, err = svc.Update(ctx, editor, e.ID, UpdateInput{StartsAt: &e.EndsAt, EndsAt: &earlier})
	_, ok = shared.AsValidationError(err)
	require.True(t, ok)
}

func TestMembersOnlyEventsNeedSignIn(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()
	_, err := svc.Create(ctx, admin, event("Open day", now.Add(48*time.Hour), VisibilityPublic))
	require.NoError(t, err)
	private, err := svc.Create(ctx, admin, event("Board retreat", now.Add(72*time.Hour), VisibilityMembers))
	require.NoError(t, err)

	items, meta, err := svc.List(ctx, shared.Actor{}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, meta.Total)

	items, _, err = svc.List(ctx, regular, ListFilter{})
	require.NoError(t, err)
	require.Len(t, items, 2)

	_, err = svc.Get(ctx, shared.Actor{}, private.ID)
	require.ErrorIs(t, err, shared.ErrUnauthorized)
	got, err := svc.Get(ctx, regular, private.ID)
	require.NoError(t, err)
	require.Equal(t, "Board retreat", got.Title)

	_, _, err = svc.List(ctx, regular, ListFilter{Status: "postponed"})
	_, ok := shared.AsValidationError(err)
	require.True(t, ok)
}

func TestCancel(t *testing.T) {
	svc := newTestService(newMemoryRepo(), nil)
	ctx := context.Background()
	e, err := svc.Create(ctx, admin, event("Gala", now.Add(24*time.Hour), VisibilityPublic))
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, regular, e.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	e, err = svc.Cancel(ctx, editor, e.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, e.Status)

	_, err = svc.Cancel(ctx, editor, e.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	require.NoError(t, svc.Delete(ctx, admin, e.ID))
	require.ErrorIs(t, svc.Delete(ctx, admin, e.ID), shared.ErrNotFound)
}

func TestUpcomingIsCachedAndInvalidated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	svc := newTestService(repo, cache.NewCache(client))
	ctx := context.Background()

	_, err := svc.Create(ctx, admin, event("Past", now.Add(-48*time.Hour), VisibilityPublic))
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, event("Members", now.Add(24*time.Hour), VisibilityMembers))
	require.NoError(t, err)
	next, err := svc.Create(ctx, admin, event("Next", now.Add(24*time.Hour), VisibilityPublic))
	require.NoError(t, err)

	items, err := svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, next.ID, items[0].ID)

	_, err = svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, repo.upcomingCalls)

	_, err = svc.Cancel(ctx, admin, next.ID)
	require.NoError(t, err)
	items, err = svc.Upcoming(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, 2, repo.upcomingCalls)
}
