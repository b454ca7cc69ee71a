package projects

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	cacheFamily = "projects"
	statsTTL    = 10 * time.Minute
)

// Service implements project business rules.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewService constructs a project service. cache may be nil.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger}
}

// List returns a page of projects.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Project, shared.Pagination, error) {
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list projects: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get loads a project with its active members.
func (s *Service) Get(ctx context.Context, id int64) (Project, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Project{}, err
	}
	members, err := s.repo.Members(ctx, id)
	if err != nil {
		return Project{}, fmt.Errorf("load members: %w", err)
	}
	if members == nil {
		members = []Member{}
	}
	p.Members = members
	return p, nil
}

// IsMember reports whether userID actively belongs to the project.
func (s *Service) IsMember(ctx context.Context, projectID, userID int64) (bool, error) {
	return s.repo.IsMember(ctx, projectID, userID)
}

// Create inserts a project owned by actor, who joins as manager.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Project, error) {
	if actor.IsZero() {
		return Project{}, shared.ErrUnauthorized
	}
	if err := validateInput(input, input.StartDate, input.EndDate, input.Budget); err != nil {
		return Project{}, err
	}
	p := Project{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		CommitteeID: input.CommitteeID,
		Status:      input.Status,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Budget:      decimal.Zero,
		CreatedBy:   actor.ID,
	}
	if p.Status == "" {
		p.Status = StatusPlanning
	}
	if input.Budget != nil {
		p.Budget = *input.Budget
	}
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := ensureCommittee(ctx, tx, p.CommitteeID); err != nil {
			return err
		}
		var err error
		if id, err = tx.Create(ctx, p); err != nil {
			return err
		}
		return tx.UpsertMember(ctx, id, actor.ID, RoleManager)
	})
	if err != nil {
		return Project{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("project created", slog.Int64("project_id", id), slog.Int64("actor_id", actor.ID))
	return s.Get(ctx, id)
}

// Update edits a project. Only the owner or an administrator may do so.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Project, error) {
	if err := shared.Validate(input); err != nil {
		return Project{}, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, current.CreatedBy), "update project"); err != nil {
			return err
		}
		start, end := current.StartDate, current.EndDate
		if input.StartDate != nil {
			start = input.StartDate
		}
		if input.EndDate != nil {
			end = input.EndDate
		}
		verr := shared.NewValidationError()
		checkDates(verr, start, end)
		checkBudget(verr, input.Budget)
		if !verr.Empty() {
			return verr
		}
		if err := ensureCommittee(ctx, tx, input.CommitteeID); err != nil {
			return err
		}
		return tx.Update(ctx, id, input)
	})
	if err != nil {
		return Project{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	return s.Get(ctx, id)
}

// Delete soft-deletes a project owned by actor.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, current.CreatedBy), "delete project"); err != nil {
			return err
		}
		return tx.SoftDelete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("project deleted", slog.Int64("project_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// AddMembers seats users in the project.
func (s *Service) AddMembers(ctx context.Context, actor shared.Actor, id int64, input AddMembersInput) (Project, error) {
	if err := shared.Validate(input); err != nil {
		return Project{}, err
	}
	err := s.withOwnedProject(ctx, actor, id, "add project members", func(ctx context.Context, tx TxRepository, _ Project) error {
		for i, m := range input.Members {
			ok, err := tx.UserExists(ctx, m.UserID)
			if err != nil {
				return err
			}
			if !ok {
				return shared.Invalid(fmt.Sprintf("members[%d].user_id", i), "The selected user is invalid.")
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
	})
	if err != nil {
		return Project{}, err
	}
	return s.Get(ctx, id)
}

// UpdateMemberRole changes the role of an active member.
func (s *Service) UpdateMemberRole(ctx context.Context, actor shared.Actor, id, userID int64, input RoleInput) (Project, error) {
	if err := shared.Validate(input); err != nil {
		return Project{}, err
	}
	err := s.withOwnedProject(ctx, actor, id, "update project member", func(ctx context.Context, tx TxRepository, _ Project) error {
		_, ok, err := tx.MemberRole(ctx, id, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("project member %d: %w", userID, shared.ErrNotFound)
		}
		return tx.UpsertMember(ctx, id, userID, input.Role)
	})
	if err != nil {
		return Project{}, err
	}
	return s.Get(ctx, id)
}

// RemoveMember ends a membership. The owner stays on the project.
func (s *Service) RemoveMember(ctx context.Context, actor shared.Actor, id, userID int64) error {
	return s.withOwnedProject(ctx, actor, id, "remove project member", func(ctx context.Context, tx TxRepository, current Project) error {
		if current.CreatedBy == userID {
			return fmt.Errorf("%w: the project owner cannot be removed", shared.ErrInvalidState)
		}
		return tx.RemoveMember(ctx, id, userID)
	})
}

// Statistics aggregates project counts and budgets. Results are cached until
// the next project write.
func (s *Service) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics
	err := s.cache.Remember(ctx, cacheFamily, "statistics", statsTTL, &stats, func(ctx context.Context) (any, error) {
		totals, err := s.repo.StatusTotals(ctx)
		if err != nil {
			return nil, fmt.Errorf("project statistics: %w", err)
		}
		return summarise(totals), nil
	})
	return stats, err
}

func summarise(totals []StatusTotal) Statistics {
	stats := Statistics{ByStatus: make(map[Status]int, len(Statuses)), TotalBudget: decimal.Zero, ActiveBudget: decimal.Zero}
	for _, st := range Statuses {
		stats.ByStatus[st] = 0
	}
	for _, t := range totals {
		stats.Total += t.Count
		stats.ByStatus[t.Status] += t.Count
		stats.TotalBudget = stats.TotalBudget.Add(t.Budget)
		if t.Status == StatusActive {
			stats.ActiveBudget = stats.ActiveBudget.Add(t.Budget)
		}
	}
	return stats
}

func (s *Service) withOwnedProject(ctx context.Context, actor shared.Actor, id int64, action string, fn func(context.Context, TxRepository, Project) error) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, id)
		if err != nil {
			return err
		}
		if err := rbac.Ensure(rbac.OwnsOrAdmin(actor, current.CreatedBy), action); err != nil {
			return err
		}
		return fn(ctx, tx, current)
	})
}

func validateInput(input any, start, end *shared.Date, budget *decimal.Decimal) error {
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		fields, ok := shared.AsValidationError(err)
		if !ok {
			return err
		}
		verr.Merge(fields)
	}
	checkDates(verr, start, end)
	checkBudget(verr, budget)
	return verr.OrNil()
}

func ensureCommittee(ctx context.Context, tx TxRepository, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := tx.CommitteeExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Invalid("committee_id", "The selected committee is invalid.")
	}
	return nil
}
