package domain

import (
	"fmt"
	"time"
)

// VoteDirection is the stored direction of a vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
)

// ParseVoteAction maps the client vocabulary (upvote/downvote, case-sensitive)
// onto a stored direction.
func ParseVoteAction(raw string) (VoteDirection, error) {
	switch raw {
	case "upvote":
		return VoteUp, nil
	case "downvote":
		return VoteDown, nil
	}
	return "", fmt.Errorf("%w: invalid vote type %q", ErrInvalidArgument, raw)
}

// Comment is a soft-deletable remark on a content item.
type Comment struct {
	ID        int64       `json:"id"`
	PostID    int64       `json:"post_id"`
	PostType  ContentType `json:"post_type"`
	UserID    int64       `json:"user_id"`
	Username  string      `json:"username"`
	Text      string      `json:"comment"`
	CreatedAt time.Time   `json:"created_at"`
}

// Vote is one active entry of an item's vote roster.
type Vote struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	Username  string        `json:"username"`
	Direction VoteDirection `json:"vote_type"`
	CreatedAt time.Time     `json:"created_at"`
}

// VoteRecord is the stored vote row for one (item, user) pair, including
// soft-deleted state.
type VoteRecord struct {
	ID        int64
	Target    Ref
	UserID    int64
	Direction VoteDirection
	Deleted   bool
}

// Points returns up-minus-down over a roster.
func Points(votes []Vote) int {
	points := 0
	for _, v := range votes {
		switch v.Direction {
		case VoteUp:
			points++
		case VoteDown:
			points--
		}
	}
	return points
}
