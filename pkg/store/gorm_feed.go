package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"inspirestack/pkg/domain"
)

// feedRow is one row of the aggregated feed statement. Tags and rosters
// arrive as JSON arrays built in SQL.
type feedRow struct {
	Type         string         `gorm:"column:type"`
	ID           int64          `gorm:"column:id"`
	Title        string         `gorm:"column:title"`
	Content      string         `gorm:"column:content"`
	Author       string         `gorm:"column:author"`
	URL          string         `gorm:"column:url"`
	CategoryID   int64          `gorm:"column:category_id"`
	CategoryName string         `gorm:"column:category_name"`
	UserID       int64          `gorm:"column:user_id"`
	Username     string         `gorm:"column:username"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	Tags         datatypes.JSON `gorm:"column:tags"`
	Comments     datatypes.JSON `gorm:"column:comments"`
	Votes        datatypes.JSON `gorm:"column:votes"`
	UpCount      int            `gorm:"column:up_count"`
	DownCount    int            `gorm:"column:down_count"`
	PointsCount  int            `gorm:"column:points_count"`
	RankScore    float64        `gorm:"column:rank_score"`
}

func (r feedRow) toDomain() (domain.FeedItem, error) {
	item := domain.FeedItem{
		Type: domain.ContentType(r.Type),
		ID:   r.ID,
		Fields: domain.Fields{
			Title:   r.Title,
			Content: r.Content,
			Author:  r.Author,
			URL:     r.URL,
		},
		CategoryID:   r.CategoryID,
		CategoryName: r.CategoryName,
		UserID:       r.UserID,
		Username:     r.Username,
		CreatedAt:    r.CreatedAt,
		Tags:         []string{},
		Comments:     []domain.Comment{},
		Votes:        []domain.Vote{},
		UpCount:      r.UpCount,
		DownCount:    r.DownCount,
		PointsCount:  r.PointsCount,
		RankScore:    r.RankScore,
	}
	if err := decodeJSONColumn(r.Tags, &item.Tags); err != nil {
		return domain.FeedItem{}, fmt.Errorf("decode tags of %s: %w", item.Ref(), err)
	}
	if err := decodeJSONColumn(r.Comments, &item.Comments); err != nil {
		return domain.FeedItem{}, fmt.Errorf("decode comments of %s: %w", item.Ref(), err)
	}
	if err := decodeJSONColumn(r.Votes, &item.Votes); err != nil {
		return domain.FeedItem{}, fmt.Errorf("decode votes of %s: %w", item.Ref(), err)
	}
	item.CommentsCount = len(item.Comments)
	return item, nil
}

func decodeJSONColumn(raw datatypes.JSON, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

type countRow struct {
	Type  string `gorm:"column:type"`
	Total int    `gorm:"column:total"`
}

// Feed returns the aggregated feed for filter. The per-type counts are only
// computed for the unfiltered view and run alongside the main query.
func (s *GormStore) Feed(ctx context.Context, filter domain.FeedFilter, now time.Time) (domain.Feed, error) {
	if filter.Type != nil && !filter.Type.Valid() {
		return domain.Feed{Items: []domain.FeedItem{}}, nil
	}
	q := buildFeedQuery(feedScope{filter: filter}, now)

	var (
		rows   []feedRow
		counts []countRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.db.WithContext(gctx).Raw(q.sql, q.args...).Scan(&rows).Error; err != nil {
			return fmt.Errorf("query feed: %w", err)
		}
		return nil
	})
	if filter.Unfiltered() {
		g.Go(func() error {
			if err := s.db.WithContext(gctx).Raw(buildCountsQuery()).Scan(&counts).Error; err != nil {
				return fmt.Errorf("count content: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.Feed{}, err
	}

	feed := domain.Feed{Items: make([]domain.FeedItem, 0, len(rows))}
	for _, r := range rows {
		item, err := r.toDomain()
		if err != nil {
			return domain.Feed{}, err
		}
		feed.Items = append(feed.Items, item)
	}
	if filter.Unfiltered() {
		totals := &domain.TypeCounts{}
		for _, c := range counts {
			totals.Add(domain.ContentType(c.Type), c.Total)
		}
		feed.Counts = totals
	}
	return feed, nil
}

// FeedItem returns the aggregated view of one live item.
func (s *GormStore) FeedItem(ctx context.Context, ref domain.Ref, now time.Time) (domain.FeedItem, bool, error) {
	if !ref.Type.Valid() {
		return domain.FeedItem{}, false, nil
	}
	q := buildFeedQuery(feedScope{ref: &ref}, now)
	var rows []feedRow
	if err := s.db.WithContext(ctx).Raw(q.sql, q.args...).Scan(&rows).Error; err != nil {
		return domain.FeedItem{}, false, fmt.Errorf("query feed item: %w", err)
	}
	if len(rows) == 0 {
		return domain.FeedItem{}, false, nil
	}
	item, err := rows[0].toDomain()
	if err != nil {
		return domain.FeedItem{}, false, err
	}
	return item, true, nil
}
