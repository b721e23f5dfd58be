package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"inspirestack/pkg/domain"
)

// GetVote returns the vote row of userID on target, deleted or not.
func (s *GormStore) GetVote(ctx context.Context, target domain.Ref, userID int64) (domain.VoteRecord, bool, error) {
	var model VoteModel
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND post_type = ? AND user_id = ?", target.ID, string(target.Type), userID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.VoteRecord{}, false, nil
		}
		return domain.VoteRecord{}, false, err
	}
	return domain.VoteRecord{
		ID:        model.ID,
		Target:    target,
		UserID:    model.UserID,
		Direction: domain.VoteDirection(model.VoteType),
		Deleted:   model.IsDeleted,
	}, true, nil
}

// InsertVote creates the single vote row for (target, userID).
func (s *GormStore) InsertVote(ctx context.Context, target domain.Ref, userID int64, dir domain.VoteDirection) error {
	now := time.Now().UTC()
	model := VoteModel{
		PostID:    target.ID,
		PostType:  string(target.Type),
		UserID:    userID,
		VoteType:  string(dir),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: vote already recorded", domain.ErrConflict)
		}
		return err
	}
	return nil
}

// UpdateVote rewrites direction and soft-delete state of an existing row.
func (s *GormStore) UpdateVote(ctx context.Context, voteID int64, dir domain.VoteDirection, deleted bool) error {
	res := s.db.WithContext(ctx).Model(&VoteModel{}).
		Where("id = ?", voteID).
		Updates(map[string]any{
			"vote_type":  string(dir),
			"is_deleted": deleted,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: vote %d", domain.ErrNotFound, voteID)
	}
	return nil
}

type voteRow struct {
	ID        int64     `gorm:"column:id"`
	UserID    int64     `gorm:"column:user_id"`
	Username  string    `gorm:"column:username"`
	VoteType  string    `gorm:"column:vote_type"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// ListVotes returns the active votes on target, newest first.
func (s *GormStore) ListVotes(ctx context.Context, target domain.Ref) ([]domain.Vote, error) {
	var rows []voteRow
	query := `SELECT v.id, v.user_id, ` + fmt.Sprintf(displayNameSQL, "u") + ` AS username, v.vote_type, v.created_at
		FROM votes v
		JOIN users u ON u.id = v.user_id
		WHERE v.post_id = ? AND v.post_type = ? AND v.is_deleted = false
		ORDER BY v.created_at DESC, v.id DESC`
	if err := s.db.WithContext(ctx).Raw(query, target.ID, string(target.Type)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Vote, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Vote{
			ID:        r.ID,
			UserID:    r.UserID,
			Username:  r.Username,
			Direction: domain.VoteDirection(r.VoteType),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// HasActiveComment reports whether userID already left text on target.
func (s *GormStore) HasActiveComment(ctx context.Context, target domain.Ref, userID int64, text string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&CommentModel{}).
		Where("post_id = ? AND post_type = ? AND user_id = ? AND comment = ? AND is_deleted = false",
			target.ID, string(target.Type), userID, text).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateComment stores c and returns it with id and author name filled in.
func (s *GormStore) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	model := CommentModel{
		PostID:    c.PostID,
		PostType:  string(c.PostType),
		UserID:    c.UserID,
		Comment:   c.Text,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Comment{}, err
	}
	c.ID = model.ID
	if strings.TrimSpace(c.Username) == "" {
		user, ok, err := s.GetUserByID(ctx, c.UserID)
		if err != nil {
			return domain.Comment{}, err
		}
		if ok {
			c.Username = user.DisplayName()
		}
	}
	return c, nil
}

// SoftDeleteComment flags the comment deleted when id, post and author all
// match a live row.
func (s *GormStore) SoftDeleteComment(ctx context.Context, postID, commentID, userID int64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&CommentModel{}).
		Where("id = ? AND post_id = ? AND user_id = ? AND is_deleted = false", commentID, postID, userID).
		Updates(map[string]any{
			"is_deleted": true,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

type commentRow struct {
	ID        int64     `gorm:"column:id"`
	PostID    int64     `gorm:"column:post_id"`
	PostType  string    `gorm:"column:post_type"`
	UserID    int64     `gorm:"column:user_id"`
	Username  string    `gorm:"column:username"`
	Comment   string    `gorm:"column:comment"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// ListComments returns the live comments on target, newest first.
func (s *GormStore) ListComments(ctx context.Context, target domain.Ref) ([]domain.Comment, error) {
	var rows []commentRow
	query := `SELECT c.id, c.post_id, c.post_type, c.user_id, ` + fmt.Sprintf(displayNameSQL, "u") + ` AS username, c.comment, c.created_at
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.post_id = ? AND c.post_type = ? AND c.is_deleted = false
		ORDER BY c.created_at DESC, c.id DESC`
	if err := s.db.WithContext(ctx).Raw(query, target.ID, string(target.Type)).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Comment{
			ID:        r.ID,
			PostID:    r.PostID,
			PostType:  domain.ContentType(r.PostType),
			UserID:    r.UserID,
			Username:  r.Username,
			Text:      r.Comment,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}
