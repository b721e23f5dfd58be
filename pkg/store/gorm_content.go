package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"inspirestack/pkg/domain"
)

// contentRow is one row of the unified content projection.
type contentRow struct {
	Type       string    `gorm:"column:type"`
	ID         int64     `gorm:"column:id"`
	Title      string    `gorm:"column:title"`
	Content    string    `gorm:"column:content"`
	Author     string    `gorm:"column:author"`
	URL        string    `gorm:"column:url"`
	CategoryID int64     `gorm:"column:category_id"`
	UserID     int64     `gorm:"column:user_id"`
	CreatedAt  time.Time `gorm:"column:created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (r contentRow) toDomain() (domain.ContentItem, error) {
	t := domain.ContentType(r.Type)
	body, err := domain.BodyFromFields(t, domain.Fields{
		Title:   r.Title,
		Content: r.Content,
		Author:  r.Author,
		URL:     r.URL,
	})
	if err != nil {
		return domain.ContentItem{}, err
	}
	return domain.ContentItem{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		UserID:     r.UserID,
		Body:       body,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// CreateContent checks for an exact duplicate, inserts the item and links its
// tags in a single transaction.
func (s *GormStore) CreateContent(ctx context.Context, item domain.ContentItem, tags []string) (domain.ContentItem, error) {
	if item.Body == nil {
		return domain.ContentItem{}, fmt.Errorf("%w: content body required", domain.ErrInvalidArgument)
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = item.CreatedAt
	model, err := contentModel(item)
	if err != nil {
		return domain.ContentItem{}, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dup, err := hasDuplicate(tx, item)
		if err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if dup {
			return fmt.Errorf("%w: %s already exists", domain.ErrConflict, item.Type())
		}
		if err := tx.Create(model).Error; err != nil {
			return fmt.Errorf("insert %s: %w", item.Type(), err)
		}
		item.ID = contentModelID(model)
		return linkTags(tx, item.Ref(), tags)
	})
	if err != nil {
		return domain.ContentItem{}, err
	}
	return item, nil
}

func hasDuplicate(tx *gorm.DB, item domain.ContentItem) (bool, error) {
	t := item.Type()
	cols := duplicateColumns[t]
	vals := item.Body.DuplicateKey()
	if len(cols) != len(vals) {
		return false, fmt.Errorf("duplicate key mismatch for %s", t)
	}
	q := tx.Table(t.Table()).
		Where("category_id = ? AND user_id = ? AND is_deleted = false", item.CategoryID, item.UserID)
	for i, col := range cols {
		q = q.Where(col+" = ?", vals[i])
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// linkTags creates missing tags and links them to ref. Both steps are
// idempotent.
func linkTags(tx *gorm.DB, ref domain.Ref, names []string) error {
	if len(names) == 0 {
		return nil
	}
	link := fmt.Sprintf(
		"INSERT INTO %s (%s, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		ref.Type.TagTable(), ref.Type.TagColumn(),
	)
	for _, name := range names {
		tag := TagModel{Name: name, CreatedAt: time.Now().UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]any{"is_deleted": false}),
		}).Create(&tag).Error; err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}
		if tag.ID == 0 {
			if err := tx.Where("name = ?", name).First(&tag).Error; err != nil {
				return fmt.Errorf("load tag %q: %w", name, err)
			}
		}
		if err := tx.Exec(link, ref.ID, tag.ID).Error; err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}
	return nil
}

// GetContent returns a live content item.
func (s *GormStore) GetContent(ctx context.Context, ref domain.Ref) (domain.ContentItem, bool, error) {
	if !ref.Type.Valid() {
		return domain.ContentItem{}, false, fmt.Errorf("%w: invalid content type %q", domain.ErrInvalidArgument, ref.Type)
	}
	var rows []contentRow
	query := fmt.Sprintf("SELECT * FROM (%s) c WHERE c.id = ?", unifiedContentSQL([]domain.ContentType{ref.Type}))
	if err := s.db.WithContext(ctx).Raw(query, ref.ID).Scan(&rows).Error; err != nil {
		return domain.ContentItem{}, false, err
	}
	if len(rows) == 0 {
		return domain.ContentItem{}, false, nil
	}
	item, err := rows[0].toDomain()
	if err != nil {
		return domain.ContentItem{}, false, err
	}
	return item, true, nil
}

// UpdateContent rewrites the payload and category of an owned, live item and
// adds any new tags. Existing tag links are kept.
func (s *GormStore) UpdateContent(ctx context.Context, ref domain.Ref, userID int64, patch domain.ContentPatch) (bool, error) {
	if patch.Body == nil || patch.Body.Type() != ref.Type {
		return false, fmt.Errorf("%w: body does not match %s", domain.ErrInvalidArgument, ref.Type)
	}
	updates := bodyColumns(patch.Body)
	updates["category_id"] = patch.CategoryID
	updates["updated_at"] = time.Now().UTC()

	matched := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(ref.Type.Table()).
			Where("id = ? AND user_id = ? AND is_deleted = false", ref.ID, userID).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update %s: %w", ref.Type, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		matched = true
		return linkTags(tx, ref, patch.Tags)
	})
	if err != nil {
		return false, err
	}
	return matched, nil
}

// SoftDeleteContent flags an owned, live item as deleted. Tags, comments and
// votes of the item are left in place.
func (s *GormStore) SoftDeleteContent(ctx context.Context, ref domain.Ref, userID int64) (bool, error) {
	if !ref.Type.Valid() {
		return false, fmt.Errorf("%w: invalid content type %q", domain.ErrInvalidArgument, ref.Type)
	}
	res := s.db.WithContext(ctx).Table(ref.Type.Table()).
		Where("id = ? AND user_id = ? AND is_deleted = false", ref.ID, userID).
		Updates(map[string]any{
			"is_deleted": true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListTags returns the live tag names linked to ref.
func (s *GormStore) ListTags(ctx context.Context, ref domain.Ref) ([]string, error) {
	if !ref.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid content type %q", domain.ErrInvalidArgument, ref.Type)
	}
	query := fmt.Sprintf(
		"SELECT t.name FROM %s jt JOIN tags t ON t.id = jt.tag_id WHERE jt.%s = ? AND t.is_deleted = false ORDER BY t.name",
		ref.Type.TagTable(), ref.Type.TagColumn(),
	)
	names := []string{}
	if err := s.db.WithContext(ctx).Raw(query, ref.ID).Scan(&names).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return names, nil
		}
		return nil, err
	}
	return names, nil
}
