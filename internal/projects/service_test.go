package projects

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type memberKey struct {
	project int64
	user    int64
}

type memoryRepo struct {
	projects      map[int64]Project
	members       map[memberKey]MemberRole
	committees    map[int64]bool
	users         map[int64]bool
	nextID        int64
	totalsQueries int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		projects:   make(map[int64]Project),
		members:    make(map[memberKey]MemberRole),
		committees: map[int64]bool{7: true},
		users:      map[int64]bool{1: true, 2: true, 3: true, 100: true},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	projects := make(map[int64]Project, len(r.projects))
	for k, v := range r.projects {
		projects[k] = v
	}
	members := make(map[memberKey]MemberRole, len(r.members))
	for k, v := range r.members {
		members[k] = v
	}
	nextID := r.nextID
	if err := fn(ctx, r); err != nil {
		r.projects, r.members, r.nextID = projects, members, nextID
		return err
	}
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var out []Project
	for _, p := range r.projects {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("project %d: %w", id, shared.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRepo) Members(ctx context.Context, projectID int64) ([]Member, error) {
	var out []Member
	for k, role := range r.members {
		if k.project == projectID {
			out = append(out, Member{UserID: k.user, Role: role})
		}
	}
	return out, nil
}

func (r *memoryRepo) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	_, ok := r.members[memberKey{projectID, userID}]
	return ok, nil
}

func (r *memoryRepo) StatusTotals(ctx context.Context) ([]StatusTotal, error) {
	r.totalsQueries++
	byStatus := map[Status]*StatusTotal{}
	for _, p := range r.projects {
		t, ok := byStatus[p.Status]
		if !ok {
			t = &StatusTotal{Status: p.Status}
			byStatus[p.Status] = t
		}
		t.Count++
		t.Budget = t.Budget.Add(p.Budget)
	}
	var out []StatusTotal
	for _, t := range byStatus {
		out = append(out, *t)
	}
	return out, nil
}

func (r *memoryRepo) Lock(ctx context.Context, id int64) (Project, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepo) Create(ctx context.Context, p Project) (int64, error) {
	r.nextID++
	p.ID = r.nextID
	r.projects[p.ID] = p
	return p.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input UpdateInput) error {
	p := r.projects[id]
	if input.Name != nil {
		p.Name = *input.Name
	}
	if input.Status != nil {
		p.Status = *input.Status
	}
	if input.StartDate != nil {
		p.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		p.EndDate = input.EndDate
	}
	if input.Budget != nil {
		p.Budget = *input.Budget
	}
	r.projects[id] = p
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	delete(r.projects, id)
	return nil
}

func (r *memoryRepo) CommitteeExists(ctx context.Context, id int64) (bool, error) {
	return r.committees[id], nil
}

func (r *memoryRepo) UserExists(ctx context.Context, id int64) (bool, error) {
	return r.users[id], nil
}

func (r *memoryRepo) MemberRole(ctx context.Context, projectID, userID int64) (MemberRole, bool, error) {
	role, ok := r.members[memberKey{projectID, userID}]
	return role, ok, nil
}

func (r *memoryRepo) UpsertMember(ctx context.Context, projectID, userID int64, role MemberRole) error {
	r.members[memberKey{projectID, userID}] = role
	return nil
}

func (r *memoryRepo) RemoveMember(ctx context.Context, projectID, userID int64) error {
	key := memberKey{projectID, userID}
	if _, ok := r.members[key]; !ok {
		return fmt.Errorf("project member %d: %w", userID, shared.ErrNotFound)
	}
	delete(r.members, key)
	return nil
}

var (
	admin  = shared.Actor{ID: 100, Role: shared.RoleAdmin}
	owner  = shared.Actor{ID: 1, Role: shared.RoleMember}
	member = shared.Actor{ID: 2, Role: shared.RoleMember}
)

func date(t *testing.T, raw string) *shared.Date {
	t.Helper()
	d, err := shared.ParseDate(raw)
	require.NoError(t, err)
	return &d
}

func money(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestCreateMakesOwnerManager(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	committee := int64(7)
	p, err := svc.Create(context.Background(), owner, CreateInput{
		Name:        "Clean Water",
		CommitteeID: &committee,
		StartDate:   date(t, "2026-01-01"),
		EndDate:     date(t, "2026-06-30"),
		Budget:      money("2500.50"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPlanning, p.Status)
	require.Equal(t, owner.ID, p.CreatedBy)
	require.True(t, p.Budget.Equal(decimal.RequireFromString("2500.50")))
	require.Len(t, p.Members, 1)
	require.Equal(t, RoleManager, p.Members[0].Role)
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)

	_, err := svc.Create(context.Background(), owner, CreateInput{
		Name:      "Backwards",
		StartDate: date(t, "2026-06-01"),
		EndDate:   date(t, "2026-01-01"),
		Budget:    money("-1"),
	})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "end_date")
	require.Contains(t, verr.Fields, "budget")

	missing := int64(99)
	_, err = svc.Create(context.Background(), owner, CreateInput{Name: "Orphan", CommitteeID: &missing})
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "committee_id")

	_, err = svc.Create(context.Background(), shared.Actor{}, CreateInput{Name: "Anon"})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestUpdateAndDeleteRequireOwnership(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	p, err := svc.Create(context.Background(), owner, CreateInput{Name: "Literacy"})
	require.NoError(t, err)

	name := "Literacy Drive"
	_, err = svc.Update(context.Background(), member, p.ID, UpdateInput{Name: &name})
	require.ErrorIs(t, err, shared.ErrForbidden)

	updated, err := svc.Update(context.Background(), owner, p.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "Literacy Drive", updated.Name)

	status := StatusActive
	updated, err = svc.Update(context.Background(), admin, p.ID, UpdateInput{Status: &status})
	require.NoError(t, err)
	require.Equal(t, StatusActive, updated.Status)

	require.ErrorIs(t, svc.Delete(context.Background(), member, p.ID), shared.ErrForbidden)
	require.NoError(t, svc.Delete(context.Background(), owner, p.ID))
}

func TestUpdateChecksMergedDates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	p, err := svc.Create(context.Background(), owner, CreateInput{
		Name:      "Polio Plus",
		StartDate: date(t, "2026-03-01"),
		EndDate:   date(t, "2026-04-01"),
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), owner, p.ID, UpdateInput{EndDate: date(t, "2026-02-01")})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "end_date")
}

func TestMembershipManagement(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	p, err := svc.Create(context.Background(), owner, CreateInput{Name: "Youth Exchange"})
	require.NoError(t, err)

	_, err = svc.AddMembers(context.Background(), member, p.ID, AddMembersInput{Members: []MemberInput{{UserID: 3}}})
	require.ErrorIs(t, err, shared.ErrForbidden)

	p, err = svc.AddMembers(context.Background(), owner, p.ID, AddMembersInput{Members: []MemberInput{{UserID: 2}, {UserID: 3, Role: RoleContributor}}})
	require.NoError(t, err)
	require.Len(t, p.Members, 3)

	_, err = svc.AddMembers(context.Background(), owner, p.ID, AddMembersInput{Members: []MemberInput{{UserID: 55}}})
	_, ok := shared.AsValidationError(err)
	require.True(t, ok)

	_, err = svc.UpdateMemberRole(context.Background(), owner, p.ID, 2, RoleInput{Role: RoleManager})
	require.NoError(t, err)
	isMember, err := svc.IsMember(context.Background(), p.ID, 2)
	require.NoError(t, err)
	require.True(t, isMember)

	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner, p.ID, owner.ID), shared.ErrInvalidState)
	require.NoError(t, svc.RemoveMember(context.Background(), owner, p.ID, 3))
	require.ErrorIs(t, svc.RemoveMember(context.Background(), owner, p.ID, 3), shared.ErrNotFound)
}

func TestStatisticsCachedUntilWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	svc := NewService(repo, cache.NewCache(client), nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner, CreateInput{Name: "A", Budget: money("100")})
	require.NoError(t, err)
	active := StatusActive
	_, err = svc.Create(ctx, owner, CreateInput{Name: "B", Status: active, Budget: money("50.25")})
	require.NoError(t, err)

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.ByStatus[StatusActive])
	require.Equal(t, 0, stats.ByStatus[StatusCancelled])
	require.Equal(t, "150.25", stats.TotalBudget.String())
	require.Equal(t, "50.25", stats.ActiveBudget.String())

	_, err = svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.totalsQueries)

	today := shared.NewDate(time.Now())
	_, err = svc.Create(ctx, owner, CreateInput{Name: "C", StartDate: &today})
	require.NoError(t, err)
	stats, err = svc.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.Total)
	require.Equal(t, 2, repo.totalsQueries)
}
