package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"inspirestack/internal/util"
	"inspirestack/pkg/domain"
)

// ParseRef validates a (type, id) pair taken from a request.
func ParseRef(rawType, rawID string) (domain.Ref, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id <= 0 {
		return domain.Ref{}, ErrInvalidContentID
	}
	t, err := domain.ParseContentType(rawType)
	if err != nil {
		return domain.Ref{}, err
	}
	return domain.Ref{Type: t, ID: id}, nil
}

// prepare validates req and resolves its type, payload, category and tags.
func (a *App) prepare(ctx context.Context, req ContentRequest) (domain.Body, domain.Category, []string, error) {
	req.normalize()
	if err := validateRequest(req); err != nil {
		return nil, domain.Category{}, nil, err
	}
	t, err := domain.ParseContentType(req.Type)
	if err != nil {
		return nil, domain.Category{}, nil, err
	}
	body, err := domain.NewBody(t, req.fields())
	if err != nil {
		return nil, domain.Category{}, nil, err
	}
	category, err := a.contentCategory(ctx, string(req.Category))
	if err != nil {
		return nil, domain.Category{}, nil, err
	}
	return body, category, domain.NormalizeTags(req.Tags), nil
}

func (a *App) contentCategory(ctx context.Context, raw string) (domain.Category, error) {
	if strings.EqualFold(raw, domain.AllCategorySlug) {
		return domain.Category{}, ErrAllCategory
	}
	category, ok, err := a.categories.Resolve(ctx, raw)
	if err != nil {
		return domain.Category{}, err
	}
	if !ok {
		return domain.Category{}, ErrInvalidCategory
	}
	if category.Slug == domain.AllCategorySlug {
		return domain.Category{}, ErrAllCategory
	}
	return category, nil
}

// CreateContent stores a new item owned by userID.
func (a *App) CreateContent(ctx context.Context, userID int64, req ContentRequest) (domain.ContentItem, error) {
	body, category, tags, err := a.prepare(ctx, req)
	if err != nil {
		return domain.ContentItem{}, err
	}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	item, err := a.store.CreateContent(ctx, domain.ContentItem{
		CategoryID: category.ID,
		UserID:     userID,
		Body:       body,
	}, tags)
	if errors.Is(err, domain.ErrConflict) {
		return domain.ContentItem{}, duplicateContentError(body.Type())
	}
	if err != nil {
		return domain.ContentItem{}, fmt.Errorf("create %s: %w", body.Type(), err)
	}
	util.LoggerFromContext(ctx).Info("content created",
		"type", item.Type(), "id", item.ID, "user_id", userID, "tags", len(tags))
	return item, nil
}

// UpdateContent replaces the payload and category of an item owned by
// userID. Tags are added to the existing set.
func (a *App) UpdateContent(ctx context.Context, userID, id int64, req ContentRequest) (domain.Ref, error) {
	if id <= 0 {
		return domain.Ref{}, ErrInvalidContentID
	}
	body, category, tags, err := a.prepare(ctx, req)
	if err != nil {
		return domain.Ref{}, err
	}
	ref := domain.Ref{Type: body.Type(), ID: id}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	ok, err := a.store.UpdateContent(ctx, ref, userID, domain.ContentPatch{
		Body:       body,
		CategoryID: category.ID,
		Tags:       tags,
	})
	if err != nil {
		return domain.Ref{}, fmt.Errorf("update %s: %w", ref, err)
	}
	if !ok {
		return domain.Ref{}, ErrContentNotOwned
	}
	util.LoggerFromContext(ctx).Info("content updated", "ref", ref.String(), "user_id", userID)
	return ref, nil
}

// DeleteContent soft-deletes an item owned by userID. Its tags, votes and
// comments are left in place and become unreachable with it.
func (a *App) DeleteContent(ctx context.Context, userID int64, ref domain.Ref) error {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	ok, err := a.store.SoftDeleteContent(ctx, ref, userID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	if !ok {
		return ErrContentNotFound
	}
	util.LoggerFromContext(ctx).Info("content deleted", "ref", ref.String(), "user_id", userID)
	return nil
}

// Item returns one enriched live item.
func (a *App) Item(ctx context.Context, ref domain.Ref) (domain.FeedItem, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	item, ok, err := a.store.FeedItem(ctx, ref, a.now())
	if err != nil {
		return domain.FeedItem{}, fmt.Errorf("load %s: %w", ref, err)
	}
	if !ok {
		return domain.FeedItem{}, ErrContentNotFound
	}
	return item, nil
}

// requireContent fails with ErrContentNotFound unless ref is live.
// Tags returns the sorted tag names of a live item.
func (a *App) Tags(ctx context.Context, ref domain.Ref) ([]string, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.requireContent(ctx, ref); err != nil {
		return nil, err
	}
	tags, err := a.store.ListTags(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list tags of %s: %w", ref, err)
	}
	return tags, nil
}

// CategoryName returns the display name of a loaded category, or "".
func (a *App) CategoryName(id int64) string {
	c, _ := a.categories.ByID(id)
	return c.Name
}

func (a *App) requireContent(ctx context.Context, ref domain.Ref) error {
	_, ok, err := a.store.GetContent(ctx, ref)
	if err != nil {
		return fmt.Errorf("load %s: %w", ref, err)
	}
	if !ok {
		return ErrContentNotFound
	}
	return nil
}
