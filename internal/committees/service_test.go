package committees

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

type memberKey struct {
	committee int64
	user      int64
}

type memoryRepo struct {
	committees map[int64]Committee
	members    map[memberKey]MemberRole
	users      map[int64]bool
	projects   map[int64]int
	nextID     int64
}

func newMemoryRepo(userIDs ...int64) *memoryRepo {
	repo := &memoryRepo{
		committees: make(map[int64]Committee),
		members:    make(map[memberKey]MemberRole),
		users:      make(map[int64]bool),
		projects:   make(map[int64]int),
	}
	for _, id := range userIDs {
		repo.users[id] = true
	}
	return repo
}

// WithTx runs fn against a snapshot and only commits it when fn succeeds.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := &memoryRepo{
		committees: make(map[int64]Committee, len(r.committees)),
		members:    make(map[memberKey]MemberRole, len(r.members)),
		users:      r.users,
		projects:   r.projects,
		nextID:     r.nextID,
	}
	for k, v := range r.committees {
		snapshot.committees[k] = v
	}
	for k, v := range r.members {
		snapshot.members[k] = v
	}
	if err := fn(ctx, snapshot); err != nil {
		return err
	}
	r.committees, r.members, r.nextID = snapshot.committees, snapshot.members, snapshot.nextID
	return nil
}

func (r *memoryRepo) List(ctx context.Context, filter ListFilter) ([]Committee, int, error) {
	var out []Committee
	for _, c := range r.committees {
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Committee, error) {
	c, ok := r.committees[id]
	if !ok {
		return Committee{}, fmt.Errorf("committee %d: %w", id, shared.ErrNotFound)
	}
	c.ProjectsCount = r.projects[id]
	return c, nil
}

func (r *memoryRepo) Members(ctx context.Context, committeeID int64) ([]Member, error) {
	var out []Member
	for k, role := range r.members {
		if k.committee == committeeID {
			out = append(out, Member{UserID: k.user, Role: role, JoinedAt: time.Now()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *memoryRepo) IsMember(ctx context.Context, committeeID, userID int64) (bool, error) {
	_, ok := r.members[memberKey{committeeID, userID}]
	return ok, nil
}

func (r *memoryRepo) Lock(ctx context.Context, id int64) (Committee, error) {
	return r.Get(ctx, id)
}

func (r *memoryRepo) Create(ctx context.Context, c Committee) (int64, error) {
	for _, existing := range r.committees {
		if existing.Name == c.Name {
			return 0, shared.Invalid("name", "The name has already been taken.")
		}
	}
	r.nextID++
	c.ID = r.nextID
	r.committees[c.ID] = c
	return c.ID, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, input UpdateInput) error {
	c := r.committees[id]
	if input.Name != nil {
		c.Name = *input.Name
	}
	if input.Description != nil {
		c.Description = input.Description
	}
	if input.Status != nil {
		c.Status = *input.Status
	}
	r.committees[id] = c
	return nil
}

func (r *memoryRepo) SetChairperson(ctx context.Context, id, userID int64) error {
	c := r.committees[id]
	c.ChairpersonID = &userID
	r.committees[id] = c
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	delete(r.committees, id)
	return nil
}

func (r *memoryRepo) CountProjects(ctx context.Context, id int64) (int, error) {
	return r.projects[id], nil
}

func (r *memoryRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	return r.users[userID], nil
}

func (r *memoryRepo) MemberRole(ctx context.Context, committeeID, userID int64) (MemberRole, bool, error) {
	role, ok := r.members[memberKey{committeeID, userID}]
	return role, ok, nil
}

func (r *memoryRepo) UpsertMember(ctx context.Context, committeeID, userID int64, role MemberRole) error {
	if role == RoleChairperson {
		for k, existing := range r.members {
			if k.committee == committeeID && k.user != userID && existing == RoleChairperson {
				return fmt.Errorf("duplicate chairperson for committee %d", committeeID)
			}
		}
	}
	r.members[memberKey{committeeID, userID}] = role
	return nil
}

func (r *memoryRepo) RemoveMember(ctx context.Context, committeeID, userID int64) error {
	key := memberKey{committeeID, userID}
	if _, ok := r.members[key]; !ok {
		return fmt.Errorf("committee member %d: %w", userID, shared.ErrNotFound)
	}
	delete(r.members, key)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var (
	admin  = shared.Actor{ID: 100, Role: shared.RoleAdmin}
	member = shared.Actor{ID: 1, Role: shared.RoleMember}
)

func chairOf(t *testing.T, c Committee) int64 {
	t.Helper()
	var chairs []int64
	for _, m := range c.Members {
		if m.Role == RoleChairperson {
			chairs = append(chairs, m.UserID)
		}
	}
	require.Len(t, chairs, 1, "exactly one chairperson")
	require.NotNil(t, c.ChairpersonID)
	require.Equal(t, *c.ChairpersonID, chairs[0])
	return chairs[0]
}

func seedCommittee(t *testing.T, svc *Service) Committee {
	t.Helper()
	c, err := svc.Create(context.Background(), admin, CreateInput{
		Name:          "Community Service",
		ChairpersonID: 1,
		Members:       []MemberInput{{UserID: 2, Role: RoleSecretary}, {UserID: 3}},
	})
	require.NoError(t, err)
	return c
}

func TestCreateSeatsChairperson(t *testing.T) {
	svc := NewService(newMemoryRepo(1, 2, 3), nil, nil)
	c := seedCommittee(t, svc)

	require.Equal(t, StatusActive, c.Status)
	require.Equal(t, int64(1), chairOf(t, c))
	require.Len(t, c.Members, 3)
	require.Equal(t, RoleMember, c.Members[2].Role)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(1), nil, nil)

	_, err := svc.Create(context.Background(), member, CreateInput{Name: "X", ChairpersonID: 1})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(context.Background(), admin, CreateInput{Name: "X"})
	verr, ok := shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "chairperson_id")

	_, err = svc.Create(context.Background(), admin, CreateInput{Name: "X", ChairpersonID: 99})
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "chairperson_id")

	_, err = svc.Create(context.Background(), admin, CreateInput{
		Name:          "X",
		ChairpersonID: 1,
		Members:       []MemberInput{{UserID: 1, Role: RoleChairperson}},
	})
	verr, ok = shared.AsValidationError(err)
	require.True(t, ok)
	require.Contains(t, verr.Fields, "members[0].role")
}

func TestChangeChairpersonDemotesPrevious(t *testing.T) {
	audit := &recordingAudit{}
	svc := NewService(newMemoryRepo(1, 2, 3, 4), audit, nil)
	c := seedCommittee(t, svc)

	updated, err := svc.ChangeChairperson(context.Background(), admin, c.ID, ChairpersonInput{UserID: 4})
	require.NoError(t, err)
	require.Equal(t, int64(4), chairOf(t, updated))

	roles := map[int64]MemberRole{}
	for _, m := range updated.Members {
		roles[m.UserID] = m.Role
	}
	require.Equal(t, RoleMember, roles[1])
	require.Len(t, audit.logs, 1)
	require.Equal(t, "committee.chairperson_changed", audit.logs[0].Action)
	require.Equal(t, int64(1), audit.logs[0].Meta["previous_chairperson_id"])
}

func TestSameChairIsNotAudited(t *testing.T) {
	audit := &recordingAudit{}
	svc := NewService(newMemoryRepo(1, 2, 3), audit, nil)
	c := seedCommittee(t, svc)
	ctx := context.Background()

	name := "Renamed"
	current := int64(1)
	updated, err := svc.Update(ctx, admin, c.ID, UpdateInput{Name: &name, ChairpersonID: &current})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, int64(1), chairOf(t, updated))

	_, err = svc.ChangeChairperson(ctx, admin, c.ID, ChairpersonInput{UserID: 1})
	require.NoError(t, err)
	require.Empty(t, audit.logs)

	next := int64(2)
	_, err = svc.Update(ctx, admin, c.ID, UpdateInput{ChairpersonID: &next})
	require.NoError(t, err)
	require.Len(t, audit.logs, 1)
	require.Equal(t, int64(1), audit.logs[0].Meta["previous_chairperson_id"])
	require.Equal(t, int64(2), audit.logs[0].Meta["chairperson_id"])
}

func TestUpdateChangesChairAtomically(t *testing.T) {
	repo := newMemoryRepo(1, 2, 3)
	svc := NewService(repo, nil, nil)
	c := seedCommittee(t, svc)

	name := "Renamed"
	missing := int64(42)
	_, err := svc.Update(context.Background(), admin, c.ID, UpdateInput{Name: &name, ChairpersonID: &missing})
	require.Error(t, err)

	unchanged, err := svc.Get(context.Background(), c.ID)
	require.NoError(t, err)
	require.Equal(t, "Community Service", unchanged.Name)
	require.Equal(t, int64(1), chairOf(t, unchanged))

	newChair := int64(2)
	updated, err := svc.Update(context.Background(), admin, c.ID, UpdateInput{Name: &name, ChairpersonID: &newChair})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, int64(2), chairOf(t, updated))
}

func TestRemoveChairpersonRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(1, 2, 3), nil, nil)
	c := seedCommittee(t, svc)

	err := svc.RemoveMember(context.Background(), admin, c.ID, 1)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	require.NoError(t, svc.RemoveMember(context.Background(), admin, c.ID, 3))
	err = svc.RemoveMember(context.Background(), admin, c.ID, 3)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateMemberRoleGuardsChair(t *testing.T) {
	svc := NewService(newMemoryRepo(1, 2, 3), nil, nil)
	c := seedCommittee(t, svc)

	_, err := svc.UpdateMemberRole(context.Background(), admin, c.ID, 3, RoleInput{Role: RoleChairperson})
	_, ok := shared.AsValidationError(err)
	require.True(t, ok)

	_, err = svc.UpdateMemberRole(context.Background(), admin, c.ID, 1, RoleInput{Role: RoleMember})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	updated, err := svc.UpdateMemberRole(context.Background(), admin, c.ID, 3, RoleInput{Role: RoleTreasurer})
	require.NoError(t, err)
	require.Equal(t, RoleTreasurer, updated.Members[2].Role)
}

func TestDeleteWithProjectsFails(t *testing.T) {
	repo := newMemoryRepo(1, 2, 3)
	svc := NewService(repo, nil, nil)
	c := seedCommittee(t, svc)
	repo.projects[c.ID] = 2

	err := svc.Delete(context.Background(), admin, c.ID)
	require.ErrorIs(t, err, shared.ErrInvalidState)

	repo.projects[c.ID] = 0
	require.NoError(t, svc.Delete(context.Background(), admin, c.ID))
	_, err = svc.Get(context.Background(), c.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
