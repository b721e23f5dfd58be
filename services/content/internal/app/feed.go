package app

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"inspirestack/pkg/domain"
	"inspirestack/pkg/preview"
)

// MaxPageLimit caps the page size of the filtered feed.
const MaxPageLimit = 100

// FeedQuery is the raw query string of a filtered feed request.
type FeedQuery struct {
	Type     string
	Category string
	Page     string
	Limit    string
}

// noFilter reports whether a query value means "no filter".
func noFilter(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "undefined", "null", domain.AllCategorySlug:
		return true
	}
	return false
}

// Feed returns the full ranked feed with per-type counts.
func (a *App) Feed(ctx context.Context) (domain.Feed, error) {
	return a.loadFeed(ctx, domain.FeedFilter{})
}

// FilteredFeed applies the type and category filters of q. An unknown type
// or category matches nothing and yields an empty feed.
func (a *App) FilteredFeed(ctx context.Context, q FeedQuery) (domain.Feed, error) {
	filter, err := parsePaging(q.Page, q.Limit)
	if err != nil {
		return domain.Feed{}, err
	}
	if !noFilter(q.Type) {
		t, err := domain.ParseContentType(q.Type)
		if err != nil {
			return emptyFeed(), nil
		}
		filter.Type = &t
	}
	if !noFilter(q.Category) {
		category, ok, err := a.categories.Resolve(ctx, q.Category)
		if err != nil {
			return domain.Feed{}, err
		}
		if !ok {
			return emptyFeed(), nil
		}
		if category.Slug != domain.AllCategorySlug {
			id := category.ID
			filter.CategoryID = &id
		}
	}
	return a.loadFeed(ctx, filter)
}

func (a *App) loadFeed(ctx context.Context, filter domain.FeedFilter) (domain.Feed, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	feed, err := a.store.Feed(ctx, filter, a.now())
	if err != nil {
		return domain.Feed{}, fmt.Errorf("load feed: %w", err)
	}
	if feed.Items == nil {
		feed.Items = []domain.FeedItem{}
	}
	return feed, nil
}

func emptyFeed() domain.Feed {
	return domain.Feed{Items: []domain.FeedItem{}}
}

func parsePaging(rawPage, rawLimit string) (domain.FeedFilter, error) {
	filter := domain.FeedFilter{}
	if noFilter(rawLimit) {
		return filter, nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(rawLimit))
	if err != nil || limit < 1 || limit > MaxPageLimit {
		return filter, ErrInvalidPaging
	}
	filter.Limit = limit
	filter.Page = 1
	if !noFilter(rawPage) {
		page, err := strconv.Atoi(strings.TrimSpace(rawPage))
		if err != nil || page < 1 || page-1 > math.MaxInt/limit {
			return filter, ErrInvalidPaging
		}
		filter.Page = page
	}
	return filter, nil
}

// ListCategories returns the category set from the provider.
func (a *App) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return a.categories.List(ctx)
}

// RefreshCategories reloads the provider from storage.
func (a *App) RefreshCategories(ctx context.Context) (int, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.categories.Refresh(ctx); err != nil {
		return 0, err
	}
	list, err := a.categories.List(ctx)
	return len(list), err
}

// TypeBadge pairs a content type with its display badge.
type TypeBadge struct {
	Type domain.ContentType `json:"type"`
	domain.Presentation
}

// ContentTypes lists every content type with its badge.
func (a *App) ContentTypes() []TypeBadge {
	out := make([]TypeBadge, 0, len(domain.ContentTypes))
	for _, t := range domain.ContentTypes {
		out = append(out, TypeBadge{Type: t, Presentation: domain.TypePresentation(t)})
	}
	return out
}

// Preview fetches Open Graph metadata for rawURL. Unreachable pages yield
// preview.ErrFetch.
func (a *App) Preview(ctx context.Context, rawURL string) (preview.Preview, error) {
	return a.previews.Fetch(ctx, rawURL)
}
