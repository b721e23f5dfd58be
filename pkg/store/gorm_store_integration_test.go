package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"inspirestack/pkg/domain"
	"inspirestack/pkg/ranking"
)

// newPostgresStore starts a throwaway Postgres and opens a migrated GormStore
// on it. The test is skipped when no container runtime is reachable.
func newPostgresStore(t *testing.T) *GormStore {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("inspirestack"),
		postgres.WithUsername("inspire"),
		postgres.WithPassword("inspire"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	s, err := NewGormStore(dsn)
	if err != nil {
		t.Fatalf("new gorm store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := s.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return s
}

func pgUser(t *testing.T, s *GormStore, username string) domain.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Kind:         domain.AccountLocal,
		Theme:        domain.ThemeLight,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

func pgCategory(t *testing.T, s *GormStore, slug string) domain.Category {
	t.Helper()
	categories, err := s.ListCategories(context.Background())
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	for _, c := range categories {
		if c.Slug == slug {
			return c
		}
	}
	t.Fatalf("category %q not seeded", slug)
	return domain.Category{}
}

func TestGormStoreAgainstPostgres(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	mindset := pgCategory(t, s, "mindset")

	t.Run("quote vote scenario", func(t *testing.T) {
		author := pgUser(t, s, "einstein_fan")
		voter := pgUser(t, s, "curious_voter")
		item, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     author.ID,
			Body:       domain.QuoteBody{Quote: "Stay curious.", Author: "A.Einstein"},
		}, nil)
		if err != nil {
			t.Fatalf("create quote: %v", err)
		}
		ref := item.Ref()

		feed, err := s.Feed(ctx, domain.FeedFilter{}, time.Now())
		if err != nil {
			t.Fatalf("feed: %v", err)
		}
		if feed.Counts == nil || feed.Counts.Quote < 1 {
			t.Fatalf("unfiltered feed must count quotes: %+v", feed.Counts)
		}
		var got domain.FeedItem
		for _, it := range feed.Items {
			if it.Ref() == ref {
				got = it
			}
		}
		if got.ID == 0 || got.PointsCount != 0 || got.Content != "Stay curious." || got.CategoryName != mindset.Name {
			t.Fatalf("unexpected fresh item: %+v", got)
		}

		if err := s.InsertVote(ctx, ref, voter.ID, domain.VoteUp); err != nil {
			t.Fatalf("upvote: %v", err)
		}
		got, _, err = s.FeedItem(ctx, ref, time.Now())
		if err != nil || got.PointsCount != 1 || len(got.Votes) != 1 {
			t.Fatalf("after upvote: points=%d votes=%d err=%v", got.PointsCount, len(got.Votes), err)
		}
		if got.Votes[0].Username != voter.Username || got.Votes[0].Direction != domain.VoteUp || got.Votes[0].CreatedAt.IsZero() {
			t.Fatalf("vote roster not decoded: %+v", got.Votes[0])
		}

		current, found, err := s.GetVote(ctx, ref, voter.ID)
		if err != nil || !found {
			t.Fatalf("get vote: found=%v err=%v", found, err)
		}
		if err := s.UpdateVote(ctx, current.ID, current.Direction, true); err != nil {
			t.Fatalf("toggle off: %v", err)
		}
		got, _, _ = s.FeedItem(ctx, ref, time.Now())
		if got.PointsCount != 0 || len(got.Votes) != 0 {
			t.Fatalf("after toggle off: points=%d votes=%d", got.PointsCount, len(got.Votes))
		}

		if _, err := s.CreateContent(ctx, item, nil); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("duplicate quote should conflict, got %v", err)
		}
	})

	t.Run("concurrent identical votes keep one row", func(t *testing.T) {
		author := pgUser(t, s, "race_author")
		voter := pgUser(t, s, "race_voter")
		item, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     author.ID,
			Body:       domain.PromptBody{Prompt: "Plan my deep work block."},
		}, nil)
		if err != nil {
			t.Fatalf("create prompt: %v", err)
		}

		var (
			wg        sync.WaitGroup
			inserted  atomic.Int32
			conflicts atomic.Int32
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.InsertVote(ctx, item.Ref(), voter.ID, domain.VoteUp)
				switch {
				case err == nil:
					inserted.Add(1)
				case errors.Is(err, domain.ErrConflict):
					conflicts.Add(1)
				default:
					t.Errorf("insert vote: %v", err)
				}
			}()
		}
		wg.Wait()
		if inserted.Load() != 1 || conflicts.Load() != 7 {
			t.Fatalf("inserted=%d conflicts=%d", inserted.Load(), conflicts.Load())
		}
		var active int64
		if err := s.db.Model(&VoteModel{}).
			Where("post_id = ? AND post_type = ? AND user_id = ? AND is_deleted = false", item.ID, string(item.Type()), voter.ID).
			Count(&active).Error; err != nil {
			t.Fatalf("count votes: %v", err)
		}
		if active != 1 {
			t.Fatalf("expected one active vote row, got %d", active)
		}
	})

	t.Run("tags normalize across junction tables", func(t *testing.T) {
		author := pgUser(t, s, "tagger")
		tags := domain.NormalizeTags([]string{"Mindset", " mindset ", "MINDSET"})
		quote, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     author.ID,
			Body:       domain.QuoteBody{Quote: "Focus is a muscle.", Author: "Unknown"},
		}, tags)
		if err != nil {
			t.Fatalf("create quote: %v", err)
		}
		book, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     author.ID,
			Body:       domain.BookBody{Title: "Mindset", Summary: "Growth beats fixed.", Author: "C. Dweck"},
		}, []string{"mindset", "psychology"})
		if err != nil {
			t.Fatalf("create book: %v", err)
		}

		if got, err := s.ListTags(ctx, quote.Ref()); err != nil || len(got) != 1 || got[0] != "mindset" {
			t.Fatalf("quote tags = %v, %v", got, err)
		}
		if got, err := s.ListTags(ctx, book.Ref()); err != nil || len(got) != 2 {
			t.Fatalf("book tags = %v, %v", got, err)
		}
		var rows int64
		if err := s.db.Model(&TagModel{}).Where("name = ?", "mindset").Count(&rows).Error; err != nil {
			t.Fatalf("count tags: %v", err)
		}
		if rows != 1 {
			t.Fatalf("expected one mindset tag row, got %d", rows)
		}

		patch := domain.ContentPatch{
			CategoryID: mindset.ID,
			Body:       domain.QuoteBody{Quote: "Focus is a muscle.", Author: "Unknown"},
			Tags:       []string{"mindset"},
		}
		if ok, err := s.UpdateContent(ctx, quote.Ref(), author.ID, patch); err != nil || !ok {
			t.Fatalf("relink update: ok=%v err=%v", ok, err)
		}
		item, _, err := s.FeedItem(ctx, quote.Ref(), time.Now())
		if err != nil || len(item.Tags) != 1 || item.Tags[0] != "mindset" {
			t.Fatalf("feed tags after relink = %v, %v", item.Tags, err)
		}
	})

	t.Run("update and delete are owner scoped", func(t *testing.T) {
		owner := pgUser(t, s, "video_owner")
		stranger := pgUser(t, s, "video_stranger")
		video, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     owner.ID,
			Body:       domain.VideoBody{Title: "Morning routine", URL: "https://example.com/routine"},
		}, nil)
		if err != nil {
			t.Fatalf("create video: %v", err)
		}
		patch := domain.ContentPatch{
			CategoryID: mindset.ID,
			Body:       domain.VideoBody{Title: "Hijacked title", URL: "https://example.com/other"},
		}
		if ok, err := s.UpdateContent(ctx, video.Ref(), stranger.ID, patch); err != nil || ok {
			t.Fatalf("stranger update: ok=%v err=%v", ok, err)
		}
		got, found, err := s.GetContent(ctx, video.Ref())
		if err != nil || !found || got.Body.Fields().Title != "Morning routine" {
			t.Fatalf("row changed by stranger: %+v %v", got.Body, err)
		}
		if ok, err := s.SoftDeleteContent(ctx, video.Ref(), stranger.ID); err != nil || ok {
			t.Fatalf("stranger delete: ok=%v err=%v", ok, err)
		}
		if ok, err := s.UpdateContent(ctx, video.Ref(), owner.ID, patch); err != nil || !ok {
			t.Fatalf("owner update: ok=%v err=%v", ok, err)
		}
		if ok, err := s.SoftDeleteContent(ctx, video.Ref(), owner.ID); err != nil || !ok {
			t.Fatalf("owner delete: ok=%v err=%v", ok, err)
		}
		if _, found, _ := s.FeedItem(ctx, video.Ref(), time.Now()); found {
			t.Fatalf("deleted video still in feed")
		}
	})

	t.Run("rank score and comment roster", func(t *testing.T) {
		author := pgUser(t, s, "rank_author")
		now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
		article, err := s.CreateContent(ctx, domain.ContentItem{
			CategoryID: mindset.ID,
			UserID:     author.ID,
			CreatedAt:  now,
			Body:       domain.ArticleBody{Title: "Ranking by gravity", URL: "https://example.com/gravity"},
		}, nil)
		if err != nil {
			t.Fatalf("create article: %v", err)
		}
		for _, name := range []string{"rank_v1", "rank_v2", "rank_v3", "rank_v4", "rank_v5"} {
			if err := s.InsertVote(ctx, article.Ref(), pgUser(t, s, name).ID, domain.VoteUp); err != nil {
				t.Fatalf("vote %s: %v", name, err)
			}
		}
		comment, err := s.CreateComment(ctx, domain.Comment{
			PostID:   article.ID,
			PostType: domain.TypeArticle,
			UserID:   author.ID,
			Text:     "Thanks for reading.",
		})
		if err != nil {
			t.Fatalf("create comment: %v", err)
		}

		item, found, err := s.FeedItem(ctx, article.Ref(), now)
		if err != nil || !found {
			t.Fatalf("feed item: found=%v err=%v", found, err)
		}
		if item.RankScore != 1.414214 || item.RankScore != ranking.Score(5, 0) {
			t.Fatalf("rank score = %v", item.RankScore)
		}
		if item.CommentsCount != 1 || item.Comments[0].ID != comment.ID ||
			item.Comments[0].Username != author.Username || item.Comments[0].Text != "Thanks for reading." {
			t.Fatalf("comment roster not decoded: %+v", item.Comments)
		}
		later, _, _ := s.FeedItem(ctx, article.Ref(), now.Add(10*time.Hour))
		if later.RankScore != ranking.ScoreAt(5, now, now.Add(10*time.Hour)) || later.RankScore >= item.RankScore {
			t.Fatalf("aged rank score = %v", later.RankScore)
		}
	})
}
