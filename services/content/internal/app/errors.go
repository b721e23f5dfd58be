package app

import (
	"fmt"

	"inspirestack/pkg/domain"
)

// Every error below wraps a domain kind so handlers can branch with errors.Is
// and show the message as-is.
var (
	ErrInvalidCategory = fmt.Errorf("%w: invalid category", domain.ErrInvalidArgument)
	// ErrAllCategory is returned when content is filed under the "all"
	// pseudo-category.
	ErrAllCategory      = fmt.Errorf("%w: category %q cannot hold content", domain.ErrInvalidArgument, domain.AllCategorySlug)
	ErrInvalidContentID = fmt.Errorf("%w: invalid content id", domain.ErrInvalidArgument)
	ErrInvalidCommentID = fmt.Errorf("%w: invalid comment id", domain.ErrInvalidArgument)
	ErrCommentRequired  = fmt.Errorf("%w: comment text is required", domain.ErrInvalidArgument)
	ErrInvalidPaging    = fmt.Errorf("%w: limit must be between 1 and %d and page must be positive", domain.ErrInvalidArgument, MaxPageLimit)

	ErrContentNotFound = fmt.Errorf("%w: content not found", domain.ErrNotFound)
	// ErrContentNotOwned conflates a missing item with one owned by someone
	// else.
	ErrContentNotOwned = fmt.Errorf("%w: no record found or unauthorized to change this content", domain.ErrNotFound)
	ErrCommentNotFound = fmt.Errorf("%w: comment not found or already deleted", domain.ErrNotFound)

	ErrDuplicateComment = fmt.Errorf("%w: duplicate comment", domain.ErrConflict)
	ErrDuplicateVote    = fmt.Errorf("%w: duplicate vote ignored", domain.ErrConflict)
)

func duplicateContentError(t domain.ContentType) error {
	return fmt.Errorf("%w: %s already exists", domain.ErrConflict, domain.TypePresentation(t).Label)
}
