package domain

import (
	"math"
	"time"
)

// FeedItem is a content item enriched for display.
type FeedItem struct {
	Type ContentType `json:"type"`
	ID   int64       `json:"id"`
	Fields
	CategoryID    int64     `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	CreatedAt     time.Time `json:"created_at"`
	Tags          []string  `json:"tags"`
	Comments      []Comment `json:"comments"`
	Votes         []Vote    `json:"points"`
	UpCount       int       `json:"up_count"`
	DownCount     int       `json:"down_count"`
	PointsCount   int       `json:"points_count"`
	CommentsCount int       `json:"comments_count"`
	RankScore     float64   `json:"rank_score"`
}

// Ref returns the (type, id) pair of the item.
func (f FeedItem) Ref() Ref {
	return Ref{Type: f.Type, ID: f.ID}
}

// TypeCounts holds the number of live items per content type.
type TypeCounts struct {
	Quote    int `json:"quote_count"`
	Article  int `json:"article_count"`
	Book     int `json:"book_count"`
	Video    int `json:"video_count"`
	AIPrompt int `json:"aiprompt_count"`
}

// Add increments the counter of t.
func (c *TypeCounts) Add(t ContentType, n int) {
	switch t {
	case TypeQuote:
		c.Quote += n
	case TypeArticle:
		c.Article += n
	case TypeBook:
		c.Book += n
	case TypeVideo:
		c.Video += n
	case TypePrompt:
		c.AIPrompt += n
	}
}

// Feed is the aggregated result. Counts is only set for the unfiltered feed.
type Feed struct {
	Items  []FeedItem  `json:"items"`
	Counts *TypeCounts `json:"counts,omitempty"`
}

// FeedFilter selects a feed view. Nil fields mean "no filter".
// Limit <= 0 disables paging.
type FeedFilter struct {
	CategoryID *int64
	Type       *ContentType
	Page       int
	Limit      int
}

// Unfiltered reports whether neither category nor type is set.
func (f FeedFilter) Unfiltered() bool {
	return f.CategoryID == nil && f.Type == nil
}

// Offset returns the row offset for the requested page. It saturates at
// math.MaxInt instead of wrapping.
func (f FeedFilter) Offset() int {
	if f.Limit <= 0 || f.Page <= 1 {
		return 0
	}
	if f.Page-1 > math.MaxInt/f.Limit {
		return math.MaxInt
	}
	return (f.Page - 1) * f.Limit
}
