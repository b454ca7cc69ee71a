package blog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/platform/cache"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/rbac"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/shared"
)

const (
	cacheFamily  = "blog"
	postFamily   = "blog:post"
	publicTTL    = 15 * time.Minute
	maxSlugTries = 50

	// managePath is routed ahead of public slugs, so no post may use it.
	managePath = "manage"
)

// Service manages blog posts. Public listings are cached in the blog family
// and every write bumps that family only. Single posts are cached by slug in
// their own family and forgotten one at a time.
type Service struct {
	repo   Repository
	cache  *cache.Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the blog service.
func NewService(repo Repository, c *cache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, logger: logger, now: time.Now}
}

// ListPublished returns a page of published posts for the public site.
func (s *Service) ListPublished(ctx context.Context, search string, page shared.PageRequest) (Page, error) {
	page = page.Normalize()
	var out Page
	key := cache.Key("published", page.Page, page.PerPage, strings.ToLower(strings.TrimSpace(search)))
	err := s.cache.Remember(ctx, cacheFamily, key, publicTTL, &out, func(ctx context.Context) (any, error) {
		items, total, err := s.repo.List(ctx, ListFilter{Status: StatusPublished, Search: search, Page: page})
		if err != nil {
			return nil, fmt.Errorf("list published posts: %w", err)
		}
		if items == nil {
			items = []Post{}
		}
		return Page{Items: items, Meta: shared.NewPagination(page.Page, page.PerPage, total)}, nil
	})
	return out, err
}

// GetPublished returns a published post by slug.
func (s *Service) GetPublished(ctx context.Context, slug string) (Post, error) {
	var p Post
	err := s.cache.Remember(ctx, postFamily, cache.Key("slug", slug), publicTTL, &p, func(ctx context.Context) (any, error) {
		post, err := s.repo.GetBySlug(ctx, slug)
		if err != nil {
			return nil, err
		}
		if post.Status != StatusPublished {
			return nil, fmt.Errorf("post %q: %w", slug, shared.ErrNotFound)
		}
		return post, nil
	})
	return p, err
}

// List returns posts in any status for blog managers.
func (s *Service) List(ctx context.Context, actor shared.Actor, filter ListFilter) ([]Post, shared.Pagination, error) {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), "list posts"); err != nil {
		return nil, shared.Pagination{}, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, shared.Invalid("status", "The selected status is invalid.")
	}
	filter.Page = filter.Page.Normalize()
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list posts: %w", err)
	}
	return items, shared.NewPagination(filter.Page.Page, filter.Page.PerPage, total), nil
}

// Get returns a post in any status for blog managers.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (Post, error) {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), "view post"); err != nil {
		return Post{}, err
	}
	return s.repo.Get(ctx, id)
}

// Create stores a draft or published post with a unique slug.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Post, error) {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), "create post"); err != nil {
		return Post{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Post{}, err
	}
	if input.Status == StatusArchived {
		return Post{}, shared.Invalid("status", "A new post must be a draft or published.")
	}
	base := Slugify(input.Title)
	if input.Slug != nil && strings.TrimSpace(*input.Slug) != "" {
		base = Slugify(*input.Slug)
	}
	slug, err := s.uniqueSlug(ctx, base, 0)
	if err != nil {
		return Post{}, err
	}
	p := Post{
		Title:    strings.TrimSpace(input.Title),
		Slug:     slug,
		Excerpt:  excerpt(input.Excerpt, input.Content),
		Content:  input.Content,
		Status:   input.Status,
		AuthorID: actor.ID,
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	if p.Status == StatusPublished {
		now := s.now().UTC()
		p.PublishedAt = &now
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return Post{}, err
	}
	s.cache.Invalidate(ctx, cacheFamily)
	s.logger.Info("post created", slog.Int64("post_id", id), slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// Update edits a post. A new title regenerates the slug unless one is given.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, input UpdateInput) (Post, error) {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), "update post"); err != nil {
		return Post{}, err
	}
	if err := shared.Validate(input); err != nil {
		return Post{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	previousSlug := p.Slug
	base := ""
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title != p.Title {
			base = Slugify(title)
		}
		p.Title = title
	}
	if input.Slug != nil && strings.TrimSpace(*input.Slug) != "" {
		base = Slugify(*input.Slug)
	}
	if base != "" && base != p.Slug {
		if p.Slug, err = s.uniqueSlug(ctx, base, p.ID); err != nil {
			return Post{}, err
		}
	}
	if input.Content != nil {
		p.Content = *input.Content
	}
	if input.Excerpt != nil {
		p.Excerpt = excerpt(input.Excerpt, p.Content)
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return Post{}, err
	}
	s.invalidate(ctx, previousSlug, p.Slug)
	return s.repo.Get(ctx, id)
}

// Delete soft-deletes a post.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), "delete post"); err != nil {
		return err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, p.Slug)
	s.logger.Info("post deleted", slog.Int64("post_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// Publish makes a draft or archived post public. The first publication date
// is kept when a post is republished.
func (s *Service) Publish(ctx context.Context, actor shared.Actor, id int64) (Post, error) {
	return s.setStatus(ctx, actor, id, StatusPublished, StatusDraft, StatusArchived)
}

// Archive withdraws a published post from the public site.
func (s *Service) Archive(ctx context.Context, actor shared.Actor, id int64) (Post, error) {
	return s.setStatus(ctx, actor, id, StatusArchived, StatusPublished)
}

func (s *Service) setStatus(ctx context.Context, actor shared.Actor, id int64, to Status, from ...Status) (Post, error) {
	if err := rbac.Ensure(rbac.CanManageBlogs(actor), string(to)+" post"); err != nil {
		return Post{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Post{}, err
	}
	allowed := false
	for _, st := range from {
		if p.Status == st {
			allowed = true
		}
	}
	if !allowed {
		return Post{}, fmt.Errorf("%w: post is %s", shared.ErrInvalidState, p.Status)
	}
	p.Status = to
	if to == StatusPublished && p.PublishedAt == nil {
		now := s.now().UTC()
		p.PublishedAt = &now
	}
	if err := s.repo.Save(ctx, p); err != nil {
		return Post{}, err
	}
	s.invalidate(ctx, p.Slug)
	s.logger.Info("post status changed", slog.Int64("post_id", id), slog.String("status", string(to)), slog.Int64("actor_id", actor.ID))
	return s.repo.Get(ctx, id)
}

// invalidate bumps the listing family and drops the cached posts for slugs.
func (s *Service) invalidate(ctx context.Context, slugs ...string) {
	s.cache.Invalidate(ctx, cacheFamily)
	for _, slug := range slugs {
		if err := s.cache.Forget(ctx, postFamily, cache.Key("slug", slug)); err != nil {
			s.logger.Warn("cache forget failed", slog.String("slug", slug), slog.Any("error", err))
		}
	}
}

// uniqueSlug appends -2, -3, ... to base until it is free.
func (s *Service) uniqueSlug(ctx context.Context, base string, exceptID int64) (string, error) {
	if base == "" {
		return "", shared.Invalid("slug", "The slug must contain at least one letter or digit.")
	}
	candidate := base
	for i := 2; i <= maxSlugTries; i++ {
		taken := candidate == managePath
		if !taken {
			var err error
			if taken, err = s.repo.SlugTaken(ctx, candidate, exceptID); err != nil {
				return "", fmt.Errorf("check slug: %w", err)
			}
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", shared.Invalid("slug", "The slug has already been taken.")
}

// excerpt returns the given excerpt or the leading text of content.
func excerpt(given *string, content string) *string {
	if given != nil && strings.TrimSpace(*given) != "" {
		v := strings.TrimSpace(*given)
		return &v
	}
	text := strings.Join(strings.Fields(content), " ")
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > excerptLen {
		runes := []rune(text)
		text = strings.TrimSpace(string(runes[:excerptLen])) + "..."
	}
	return &text
}
