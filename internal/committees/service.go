package committees

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

// Service coordinates committee membership rules.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs a committee service.
func NewService(repo Repository, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// List returns a page of committees.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Committee, shared.Pagination, error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list committees: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get loads a committee with its active members.
func (s *Service) Get(ctx context.Context, id int64) (Committee, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Committee{}, err
	}
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return Committee{}, fmt.Errorf("load members: %w", err)
	}
	if members == nil {
		members = []Member{}
	}
	c.Members = members
	return c, nil
}

// IsMember reports whether userID actively belongs to the committee.
func (s *Service) IsMember(ctx context.Context, committeeID, userID int64) (bool, error) {
	return s.repo.IsMember(ctx, committeeID, userID)
}

// Create inserts a committee and seats its chairperson.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Committee, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "create committee"); err != nil {
		return Committee{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Committee{}, err
	}
	if err := rejectChairRoles("members", input.Members); err != nil {
		return Committee{}, err
	}
	status := input.Status
	if status == "" {
		status = StatusActive
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureUser(ctx, tx, "chairperson_id", input.ChairpersonID); err != nil {
			return err
		}
		chair := input.ChairpersonID
		var err error
		id, err = tx.Create(ctx, Committee{
			Name:          strings.TrimSpace(input.Name),
			Description:   input.Description,
			ChairpersonID: &chair,
			Status:        status,
		})
		if err != nil {
			return err
		}
		if err := tx.UpsertMember(ctx, id, chair, RoleChairperson); err != nil {
			return err
		}
		return addMembers(ctx, tx, id, chair, input.Members)
	})
	if err != nil {
		return Committee{}, err
	}
	s.logger.Info("committee created", slog.Int64("committee_id", id), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, id)
}

// Update edits committee attributes. A chairperson change is applied in the
// same transaction as the field updates.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Committee, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "update committee"); err != nil {
		return Committee{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Committee{}, err
	}
	var (
		previous *int64
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, id, input); err != nil {
			return err
		}
		if input.ChairpersonID == nil || sameID(current.ChairpersonID, *input.ChairpersonID) {
			return nil
		}
		previous = current.ChairpersonID
		changed = true
		return swapChair(ctx, tx, current, *input.ChairpersonID)
	})
	if err != nil {
		return Committee{}, err
	}
	if changed {
		s.recordChairChange(ctx, actor, id, previous, *input.ChairpersonID)
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a committee that no longer owns projects.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "delete committee"); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Lock(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountProjects(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: cannot delete committee with %d associated project(s)", shared.ErrInvalidState, n)
		}
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("committee deleted", slog.Int64("committee_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// AddMembers seats users in the committee. Existing members have their role
// replaced; former members are reactivated.
func (s *Service) AddMembers(ctx context.Context, actor shared.Actor, id int64, input AddMembersInput) (Committee, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "add committee members"); err != nil {
		return Committee{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Committee{}, err
	}
	if err := rejectChairRoles("members", input.Members); err != nil {
		return Committee{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		var chair int64
		if current.ChairpersonID != nil {
			chair = *current.ChairpersonID
		}
		return addMembers(ctx, tx, id, chair, input.Members)
	})
	if err != nil {
		return Committee{}, err
	}
	return s.Get(ctx, id)
}

// UpdateMemberRole changes the role of an active member. The chairperson seat
// is managed through ChangeChairperson only.
func (s *Service) UpdateMemberRole(ctx context.Context, actor shared.Actor, id, userID int64, input RoleInput) (Committee, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "update committee member"); err != nil {
		return Committee{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Committee{}, err
	}
	if input.Role == RoleChairperson {
		return Committee{}, shared.Invalid("role", "Use the chairperson endpoint to assign a chairperson.")
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Lock(ctx, id); err != nil {
			return err
		}
		role, ok, err := tx.MemberRole(ctx, id, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("committee member %d: %w", userID, shared.ErrNotFound)
		}
		if role == RoleChairperson {
			return fmt.Errorf("%w: the chairperson role can only be changed by assigning a new chairperson", shared.ErrInvalidState)
		}
		return tx.UpsertMember(ctx, id, userID, input.Role)
	})
	if err != nil {
		return Committee{}, err
	}
	return s.Get(ctx, id)
}

// RemoveMember ends a membership. The chairperson cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor shared.Actor, id, userID int64) error {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "remove committee member"); err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if sameID(current.ChairpersonID, userID) {
			return fmt.Errorf("%w: cannot remove the chairperson; assign a new chairperson first", shared.ErrInvalidState)
		}
		return tx.RemoveMember(ctx, id, userID)
	})
}

// ChangeChairperson demotes the current chair to member and promotes userID.
func (s *Service) ChangeChairperson(ctx context.Context, actor shared.Actor, id int64, input ChairpersonInput) (Committee, error) {
	if err := rbac.Ensure(rbac.IsAdmin(actor), "change chairperson"); err != nil {
		return Committee{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Committee{}, err
	}
	var (
		previous *int64
		changed  bool
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if sameID(current.ChairpersonID, input.UserID) {
			return nil
		}
		previous = current.ChairpersonID
		changed = true
		return swapChair(ctx, tx, current, input.UserID)
	})
	if err != nil {
		return Committee{}, err
	}
	if changed {
		s.recordChairChange(ctx, actor, id, previous, input.UserID)
	}
	return s.Get(ctx, id)
}

func (s *Service) recordChairChange(ctx context.Context, actor shared.Actor, id int64, previous *int64, next int64) {
	meta := map[string]any{"chairperson_id": next}
	if previous != nil {
		meta["previous_chairperson_id"] = *previous
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   "committee.chairperson_changed",
		Entity:   "committee",
		EntityID: id,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit chairperson change", slog.Int64("committee_id", id), slog.Any("error", err))
	}
}

// swapChair demotes before promoting so the one-chair-per-committee index holds.
func swapChair(ctx context.Context, tx TxRepository, current Committee, userID int64) error {
	if err := ensureUser(ctx, tx, "user_id", userID); err != nil {
		return err
	}
	if current.ChairpersonID != nil {
		if _, ok, err := tx.MemberRole(ctx, current.ID, *current.ChairpersonID); err != nil {
			return err
		} else if ok {
			if err := tx.UpsertMember(ctx, current.ID, *current.ChairpersonID, RoleMember); err != nil {
				return err
			}
		}
	}
	if err := tx.UpsertMember(ctx, current.ID, userID, RoleChairperson); err != nil {
		return err
	}
	return tx.SetChairperson(ctx, current.ID, userID)
}

func addMembers(ctx context.Context, tx TxRepository, id, chair int64, members []MemberInput) error {
	for i, m := range members {
		if m.UserID == chair {
			continue
		}
		if err := ensureUser(ctx, tx, fmt.Sprintf("members[%d].user_id", i), m.UserID); err != nil {
			return err
		}
		role := m.Role
		if role == "" {
			role = RoleMember
		}
		if err := tx.UpsertMember(ctx, id, m.UserID, role); err != nil {
			return err
		}
	}
	return nil
}

func rejectChairRoles(field string, members []MemberInput) error {
	verr := shared.NewValidationError()
	for i, m := range members {
		if m.Role == RoleChairperson {
			verr.Add(fmt.Sprintf("%s[%d].role", field, i), "The chairperson is assigned through chairperson_id.")
		}
	}
	return verr.OrNil()
}

func ensureUser(ctx context.Context, tx TxRepository, field string, userID int64) error {
	ok, err := tx.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Invalid(field, "The selected user is invalid.")
	}
	return nil
}

func sameID(current *int64, id int64) bool {
	return current != nil && *current == id
}
