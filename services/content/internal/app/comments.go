package app

import (
	"context"
	"fmt"
	"strings"

	"inspirestack/internal/util"
	"inspirestack/pkg/domain"
)

// AddComment attaches text to a live item. The same user may not post the
// same trimmed text twice on one item while the first copy is live.
func (a *App) AddComment(ctx context.Context, userID int64, target domain.Ref, text string) (domain.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Comment{}, ErrCommentRequired
	}
	if target.ID <= 0 {
		return domain.Comment{}, ErrInvalidContentID
	}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.requireContent(ctx, target); err != nil {
		return domain.Comment{}, err
	}
	dup, err := a.store.HasActiveComment(ctx, target, userID, text)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("check duplicate comment: %w", err)
	}
	if dup {
		return domain.Comment{}, ErrDuplicateComment
	}
	comment, err := a.store.CreateComment(ctx, domain.Comment{
		PostID:   target.ID,
		PostType: target.Type,
		UserID:   userID,
		Text:     text,
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	util.LoggerFromContext(ctx).Info("comment added", "ref", target.String(), "comment_id", comment.ID, "user_id", userID)
	return comment, nil
}

// DeleteComment soft-deletes a comment. A missing comment, a wrong post id
// and another user's comment all yield ErrCommentNotFound.
func (a *App) DeleteComment(ctx context.Context, userID, postID, commentID int64) error {
	if postID <= 0 {
		return ErrInvalidContentID
	}
	if commentID <= 0 {
		return ErrInvalidCommentID
	}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	ok, err := a.store.SoftDeleteComment(ctx, postID, commentID, userID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if !ok {
		return ErrCommentNotFound
	}
	util.LoggerFromContext(ctx).Info("comment deleted", "post_id", postID, "comment_id", commentID, "user_id", userID)
	return nil
}

// Comments returns the live comments on a live item, newest first.
func (a *App) Comments(ctx context.Context, target domain.Ref) ([]domain.Comment, error) {
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.requireContent(ctx, target); err != nil {
		return nil, err
	}
	comments, err := a.store.ListComments(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}
