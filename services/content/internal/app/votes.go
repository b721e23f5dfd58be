package app

import (
	"context"
	"errors"
	"fmt"

	"inspirestack/internal/util"
	"inspirestack/pkg/domain"
)

// Vote applies action ("upvote" or "downvote") by userID to target and
// returns the target's active vote roster.
//
// Transitions per (target, user):
//
//	no row          -> insert active row
//	active, same    -> soft-delete (toggle off)
//	active, other   -> switch direction
//	deleted, any    -> restore with the requested direction
//
// The read-decide-write sequence is not atomic. The unique row per
// (post_id, post_type, user_id) turns a lost insert race into
// ErrDuplicateVote.
func (a *App) Vote(ctx context.Context, userID int64, target domain.Ref, action string) ([]domain.Vote, error) {
	dir, err := domain.ParseVoteAction(action)
	if err != nil {
		return nil, err
	}
	if !target.Type.Valid() {
		return nil, fmt.Errorf("%w: invalid content type %q", domain.ErrInvalidArgument, target.Type)
	}
	if target.ID <= 0 {
		return nil, ErrInvalidContentID
	}
	ctx, cancel := a.storeCtx(ctx)
	defer cancel()
	if err := a.requireContent(ctx, target); err != nil {
		return nil, err
	}

	current, found, err := a.store.GetVote(ctx, target, userID)
	if err != nil {
		return nil, fmt.Errorf("load vote: %w", err)
	}
	transition := "insert"
	switch {
	case !found:
		err = a.store.InsertVote(ctx, target, userID, dir)
		if errors.Is(err, domain.ErrConflict) {
			return nil, ErrDuplicateVote
		}
	case !current.Deleted && current.Direction == dir:
		transition = "toggle_off"
		err = a.store.UpdateVote(ctx, current.ID, current.Direction, true)
	case current.Deleted:
		transition = "restore"
		err = a.store.UpdateVote(ctx, current.ID, dir, false)
	default:
		transition = "switch"
		err = a.store.UpdateVote(ctx, current.ID, dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("apply vote: %w", err)
	}
	util.LoggerFromContext(ctx).Debug("vote applied",
		"ref", target.String(), "user_id", userID, "direction", dir, "transition", transition)

	roster, err := a.store.ListVotes(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	return roster, nil
}
