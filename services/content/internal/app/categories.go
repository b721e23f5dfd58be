package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"inspirestack/pkg/domain"
)

// CategorySource is the storage the provider loads from.
type CategorySource interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

// missReloadInterval bounds how often a lookup miss may hit storage.
const missReloadInterval = 30 * time.Second

// CategoryProvider holds the category set in memory. It is loaded once at
// startup and reloaded on demand; concurrent reloads share one query.
type CategoryProvider struct {
	source CategorySource
	group  singleflight.Group

	mu       sync.RWMutex
	loadedAt time.Time
	list     []domain.Category
	bySlug   map[string]domain.Category
	byID     map[int64]domain.Category
}

// NewCategoryProvider builds an empty provider over source.
func NewCategoryProvider(source CategorySource) *CategoryProvider {
	return &CategoryProvider{
		source: source,
		bySlug: map[string]domain.Category{},
		byID:   map[int64]domain.Category{},
	}
}

// Refresh reloads the set from storage.
func (p *CategoryProvider) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do("refresh", func() (any, error) {
		categories, err := p.source.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("load categories: %w", err)
		}
		p.swap(categories)
		return nil, nil
	})
	return err
}

func (p *CategoryProvider) swap(categories []domain.Category) {
	bySlug := make(map[string]domain.Category, len(categories))
	byID := make(map[int64]domain.Category, len(categories))
	for _, c := range categories {
		bySlug[strings.ToLower(c.Slug)] = c
		byID[c.ID] = c
	}
	p.mu.Lock()
	p.list = append([]domain.Category(nil), categories...)
	p.bySlug = bySlug
	p.byID = byID
	p.loadedAt = time.Now()
	p.mu.Unlock()
}

func (p *CategoryProvider) ensureLoaded(ctx context.Context) error {
	if !p.lastLoad().IsZero() {
		return nil
	}
	return p.Refresh(ctx)
}

func (p *CategoryProvider) lastLoad() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loadedAt
}

// List returns a copy of the category set, loading it on first use.
func (p *CategoryProvider) List(ctx context.Context) ([]domain.Category, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Category(nil), p.list...), nil
}

// ByID looks up a loaded category.
func (p *CategoryProvider) ByID(id int64) (domain.Category, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.byID[id]
	return c, ok
}

// Resolve accepts a slug (case-insensitive) or a numeric id. A miss reloads
// the set at most once per missReloadInterval so categories seeded after
// startup are found.
func (p *CategoryProvider) Resolve(ctx context.Context, raw string) (domain.Category, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Category{}, false, nil
	}
	if err := p.ensureLoaded(ctx); err != nil {
		return domain.Category{}, false, err
	}
	if c, ok := p.lookup(raw); ok {
		return c, true, nil
	}
	if time.Since(p.lastLoad()) < missReloadInterval {
		return domain.Category{}, false, nil
	}
	if err := p.Refresh(ctx); err != nil {
		return domain.Category{}, false, err
	}
	c, ok := p.lookup(raw)
	return c, ok, nil
}

func (p *CategoryProvider) lookup(raw string) (domain.Category, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		c, ok := p.byID[id]
		return c, ok
	}
	c, ok := p.bySlug[strings.ToLower(raw)]
	return c, ok
}
