package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	cacheFamily   = "events"
	upcomingTTL   = 10 * time.Minute
	upcomingLimit = 10
	maxUpcoming   = 50
)

// Service manages the event calendar.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the event service.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger, now: time.Now}
}

// Upcoming returns the next scheduled public events. The result is cached per
// hour so the window moves forward without explicit invalidation.
func (s *Service) Upcoming(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = upcomingLimit
	}
	if limit > maxUpcoming {
		limit = maxUpcoming
	}
	from := s.now().UTC().Truncate(time.Hour)
	var out []Event
	key := cache.Key("upcoming", from.Format("2006010215"), limit)
	err := s.cache.Remember(ctx, cacheFamily, key, upcomingTTL, &out, func(ctx context.Context) (any, error) {
		items, err := s.repo.Upcoming(ctx, from, limit)
		if err != nil {
			return nil, fmt.Errorf("upcoming events: %w", err)
		}
		if items == nil {
			items = []Event{}
		}
		return items, nil
	})
	return out, err
}

// List returns events; members-only events are included for signed-in users.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Event, shared.Pagination, error) {
	verr := shared.NewValidationError()
	if filter.Type != "" && !filter.Type.Valid() {
		verr.Add("type", "The selected type is invalid.")
	}
	if filter.Status != "" && !filter.Status.Valid() {
		verr.Add("status", "The selected status is invalid.")
	}
	if !verr.Empty() {
		return nil, shared.Pagination{}, verr
	}
	filter.IncludeMembers = !actor.IsZero()
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list events: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns an event the actor may see.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Event, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if e.Visibility == VisibilityMembers && actor.IsZero() {
		return Event{}, shared.ErrUnauthorized
	}
	return e, nil
}

// Create schedules a new event.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Event, error) {
	if err := ensureManager(actor, "create event"); err != nil {
		return Event{}, err
	}
	verr := shared.NewValidationError()
	if err := shared.Validate(input); err != nil {
		fields, ok := shared.AsValidationError(err)
		if !ok {
			return Event{}, err
		}
		verr.Merge(fields)
	}
	checkWindow(verr, input.StartsAt, input.EndsAt)
	if !verr.Empty() {
		return Event{}, verr
	}
	if err := s.ensureCommittee(ctx, input.CommitteeID); err != nil {
		return Event{}, err
	}
	e := Event{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Location:    input.Location,
		Type:        input.Type,
		Visibility:  input.Visibility,
		Status:      StatusScheduled,
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		CommitteeID: input.CommitteeID,
		CreatedBy:   actor.ID,
	}
	if e.Visibility == "" {
		e.Visibility = VisibilityPublic
	}
	id, err := s.repo.Create(ctx, e)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("event created", slog.Int64("event_id", id), slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Update edits an event. The resulting window must still end after it starts.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Event, error) {
	if err := ensureManager(actor, "update event"); err != nil {
		return Event{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Event{}, err
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if input.Title != nil {
		e.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		e.Description = input.Description
	}
	if input.Location != nil {
		e.Location = input.Location
	}
	if input.Type != nil {
		e.Type = *input.Type
	}
	if input.Visibility != nil {
		e.Visibility = *input.Visibility
	}
	if input.Status != nil {
		e.Status = *input.Status
	}
	if input.StartsAt != nil {
		e.StartsAt = input.StartsAt.UTC()
	}
	if input.EndsAt != nil {
		e.EndsAt = input.EndsAt.UTC()
	}
	if input.CommitteeID != nil {
		e.CommitteeID = input.CommitteeID
	}
	verr := shared.NewValidationError()
	checkWindow(verr, e.StartsAt, e.EndsAt)
	if !verr.Empty() {
		return Event{}, verr
	}
	if err := s.ensureCommittee(ctx, input.CommitteeID); err != nil {
		return Event{}, err
	}
	if err := s.repo.Save(ctx, e); err != nil {
		return Event{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	return s.repo.Get(ctx, id)
}

// Cancel marks a scheduled event as cancelled.
func (s *Service) Cancel(ctx context.Context, actor shared.Actor, id int64) (Event, error) {
	if err := ensureManager(actor, "cancel event"); err != nil {
		return Event{}, err
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if e.Status != StatusScheduled {
		return Event{}, fmt.Errorf("%w: event is %s", shared.ErrInvalidState, e.Status)
	}
	e.Status = StatusCancelled
	if err := s.repo.Save(ctx, e); err != nil {
		return Event{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("event cancelled", slog.Int64("event_id", id), slog.Int64("actor_id", actor.ID))
	return e, nil
}

// Delete soft-deletes an event.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := ensureManager(actor, "delete event"); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("event deleted", slog.Int64("event_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

func (s *Service) ensureCommittee(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := s.repo.CommitteeExists(ctx, *id)
	if err != nil {
		return err
	}
	if !ok {
		return shared.Invalid("committee_id", "The selected committee is invalid.")
	}
	return nil
}

var permissions = rbac.NewService()

func ensureManager(actor shared.Actor, action string) error {
	return rbac.Ensure(permissions.Can(actor, shared.PermEventsManage), action)
}

func checkWindow(verr *shared.ValidationError, start, end time.Time) {
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		verr.Add("ends_at", "The ends at must be a date after starts at.")
	}
}
