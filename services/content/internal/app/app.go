package app

import (
	"context"
	"fmt"
	"time"

	"inspirestack/pkg/preview"
	"inspirestack/pkg/store"
)

// PreviewFetcher resolves link previews.
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) (preview.Preview, error)
}

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int
	// StoreTimeout bounds every storage call, including the wait for a
	// pooled connection.
	StoreTimeout   time.Duration
	PreviewTimeout time.Duration
	Store          store.Store
	Previews       PreviewFetcher
	Now            func() time.Time
}

// App is the content service core: feed, content, votes and comments.
type App struct {
	store        store.Store
	categories   *CategoryProvider
	previews     PreviewFetcher
	storeTimeout time.Duration
	now          func() time.Time
}

// New constructs the application and loads the category set.
func New(cfg Config) (*App, error) {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, store.WithMaxOpenConns(cfg.DBMaxOpenConns))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	previews := cfg.Previews
	if previews == nil {
		previews = preview.NewFetcher(preview.Options{Timeout: cfg.PreviewTimeout})
	}

	a := &App{
		store:        dataStore,
		categories:   NewCategoryProvider(dataStore),
		previews:     previews,
		storeTimeout: cfg.StoreTimeout,
		now:          cfg.Now,
	}
	ctx, cancel := a.storeCtx(context.Background())
	defer cancel()
	if err := a.categories.Refresh(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Categories exposes the provider to callers that render category data.
func (a *App) Categories() *CategoryProvider {
	return a.categories
}

func (a *App) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.storeTimeout)
}
