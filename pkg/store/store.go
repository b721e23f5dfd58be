package store

import (
	"context"
	"time"

	"inspirestack/pkg/domain"
)

// UserStore persists accounts.
type UserStore interface {
	// CreateUser inserts u and returns it with its assigned id.
	// A taken username or email yields domain.ErrConflict.
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	UpdateUserTheme(ctx context.Context, id int64, theme domain.Theme) (domain.User, bool, error)
}

// CategoryStore persists the category set.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// UpsertCategories inserts or updates categories keyed by slug.
	UpsertCategories(ctx context.Context, categories []domain.Category) error
}

// ContentStore persists the five content tables and their tag links.
type ContentStore interface {
	// CreateContent rejects an exact duplicate with domain.ErrConflict, then
	// inserts the item and links tags in one transaction.
	CreateContent(ctx context.Context, item domain.ContentItem, tags []string) (domain.ContentItem, error)
	// GetContent returns a non-deleted item.
	GetContent(ctx context.Context, ref domain.Ref) (domain.ContentItem, bool, error)
	// UpdateContent applies patch when ref is live and owned by userID.
	// It reports false when no row matched.
	UpdateContent(ctx context.Context, ref domain.Ref, userID int64, patch domain.ContentPatch) (bool, error)
	// SoftDeleteContent flags the item deleted when owned by userID.
	SoftDeleteContent(ctx context.Context, ref domain.Ref, userID int64) (bool, error)
	ListTags(ctx context.Context, ref domain.Ref) ([]string, error)
}

// EngagementStore persists votes and comments keyed by (post_id, post_type).
type EngagementStore interface {
	// GetVote returns the vote row of userID on target regardless of its
	// soft-delete state.
	GetVote(ctx context.Context, target domain.Ref, userID int64) (domain.VoteRecord, bool, error)
	// InsertVote yields domain.ErrConflict when a row already exists.
	InsertVote(ctx context.Context, target domain.Ref, userID int64, dir domain.VoteDirection) error
	UpdateVote(ctx context.Context, voteID int64, dir domain.VoteDirection, deleted bool) error
	// ListVotes returns the active roster of target, newest first.
	ListVotes(ctx context.Context, target domain.Ref) ([]domain.Vote, error)

	HasActiveComment(ctx context.Context, target domain.Ref, userID int64, text string) (bool, error)
	CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	// SoftDeleteComment reports false when no live comment matched all keys.
	SoftDeleteComment(ctx context.Context, postID, commentID, userID int64) (bool, error)
	ListComments(ctx context.Context, target domain.Ref) ([]domain.Comment, error)
}

// FeedStore reads the aggregated feed.
type FeedStore interface {
	Feed(ctx context.Context, filter domain.FeedFilter, now time.Time) (domain.Feed, error)
	FeedItem(ctx context.Context, ref domain.Ref, now time.Time) (domain.FeedItem, bool, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	UserStore
	CategoryStore
	ContentStore
	EngagementStore
	FeedStore
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(user domain.User) (string, error)
	GetUserIDByToken(token string) (int64, bool, error)
	DeleteSession(token string) error
}

// UserSessionRevoker is an optional capability that revokes all sessions
// issued for a user up to a cutoff time.
type UserSessionRevoker interface {
	RevokeUserSessions(userID int64, since time.Time) error
}

// JWK represents a JSON Web Key entry used by JWKS endpoints.
type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n,omitempty"`
	E   string `json:"e,omitempty"`
}

// JWKSProvider is an optional capability exposed by session stores that can
// publish JSON Web Keys.
type JWKSProvider interface {
	JWKS() []JWK
}
