package store

import (
	"strings"
	"testing"
	"time"

	"inspirestack/pkg/domain"
)

func TestBuildFeedQueryUnfilteredRanksAllTypes(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := buildFeedQuery(feedScope{}, now)

	for _, ct := range domain.ContentTypes {
		if !strings.Contains(q.sql, "FROM "+ct.Table()+" WHERE is_deleted = false") {
			t.Fatalf("expected branch for %s", ct)
		}
		if !strings.Contains(q.sql, "FROM "+ct.TagTable()) {
			t.Fatalf("expected tag branch for %s", ct)
		}
	}
	if !strings.Contains(q.sql, "ORDER BY rank_score DESC") {
		t.Fatalf("expected rank ordering, got:\n%s", q.sql)
	}
	if strings.Contains(q.sql, "WHERE c.") || strings.Contains(q.sql, "LIMIT") {
		t.Fatalf("unfiltered feed must not filter or page")
	}
	if len(q.args) != 1 {
		t.Fatalf("expected only the clock arg, got %v", q.args)
	}
	if got, ok := q.args[0].(time.Time); !ok || !got.Equal(now) {
		t.Fatalf("unexpected clock arg: %v", q.args[0])
	}
}

func TestBuildFeedQueryFilteredOrdersByRecency(t *testing.T) {
	category := int64(3)
	ct := domain.TypeBook
	q := buildFeedQuery(feedScope{filter: domain.FeedFilter{
		CategoryID: &category,
		Type:       &ct,
		Page:       3,
		Limit:      20,
	}}, time.Now())

	if strings.Contains(q.sql, "FROM quotes") || strings.Contains(q.sql, "FROM videos") {
		t.Fatalf("type filter should prune other tables:\n%s", q.sql)
	}
	if !strings.Contains(q.sql, "WHERE c.category_id = ? AND c.type = ?") {
		t.Fatalf("expected category and type predicates:\n%s", q.sql)
	}
	if !strings.Contains(q.sql, "ORDER BY c.created_at DESC") || strings.Contains(q.sql, "ORDER BY rank_score") {
		t.Fatalf("filtered feed orders by recency:\n%s", q.sql)
	}
	if !strings.HasSuffix(q.sql, "LIMIT ? OFFSET ?") {
		t.Fatalf("expected paging clause:\n%s", q.sql)
	}
	want := []any{int64(3), "book", 20, 40}
	got := q.args[1:]
	if len(got) != len(want) {
		t.Fatalf("unexpected args: %v", q.args)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("arg %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBuildFeedQuerySingleItem(t *testing.T) {
	ref := domain.Ref{Type: domain.TypePrompt, ID: 9}
	q := buildFeedQuery(feedScope{ref: &ref}, time.Now())
	if !strings.Contains(q.sql, "FROM aiprompts") || strings.Contains(q.sql, "FROM articles") {
		t.Fatalf("single item reads only its own table:\n%s", q.sql)
	}
	if strings.Contains(q.sql, "LIMIT") {
		t.Fatalf("single item query must not page")
	}
	if len(q.args) != 3 || q.args[1] != "aiprompt" || q.args[2] != int64(9) {
		t.Fatalf("unexpected args: %v", q.args)
	}
}

func TestBuildFeedQueryKeepsUserInputOutOfSQL(t *testing.T) {
	category := int64(1)
	q := buildFeedQuery(feedScope{filter: domain.FeedFilter{CategoryID: &category, Limit: 5}}, time.Now())
	if strings.Contains(q.sql, "= 1") {
		t.Fatalf("category id must be bound, not inlined:\n%s", q.sql)
	}
}

func TestBuildCountsQueryCoversEveryType(t *testing.T) {
	sql := buildCountsQuery()
	if n := strings.Count(sql, "COUNT(*)"); n != len(domain.ContentTypes) {
		t.Fatalf("expected %d count branches, got %d", len(domain.ContentTypes), n)
	}
}
