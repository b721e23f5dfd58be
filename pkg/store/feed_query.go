package store

import (
	"fmt"
	"strings"
	"time"

	"inspirestack/pkg/domain"
)

// feedBranch projects one content table onto the unified column set.
type feedBranch struct {
	title   string
	content string
	author  string
	url     string
}

var feedBranches = map[domain.ContentType]feedBranch{
	domain.TypeQuote:   {title: "''", content: "quote", author: "author", url: "''"},
	domain.TypeArticle: {title: "title", content: "''", author: "''", url: "url"},
	domain.TypeBook:    {title: "title", content: "summary", author: "author", url: "url"},
	domain.TypeVideo:   {title: "title", content: "''", author: "''", url: "url"},
	domain.TypePrompt:  {title: "''", content: "prompt", author: "''", url: "''"},
}

// feedQuery is a parameterized statement. Identifiers come only from the
// fixed content-type table; every user value travels in args.
type feedQuery struct {
	sql  string
	args []any
}

// feedScope narrows the aggregated view. Ref selects a single item.
type feedScope struct {
	filter domain.FeedFilter
	ref    *domain.Ref
}

func (s feedScope) types() []domain.ContentType {
	switch {
	case s.ref != nil:
		return []domain.ContentType{s.ref.Type}
	case s.filter.Type != nil:
		return []domain.ContentType{*s.filter.Type}
	}
	return domain.ContentTypes
}

func (s feedScope) ranked() bool {
	return s.ref == nil && s.filter.Unfiltered()
}

func unifiedContentSQL(types []domain.ContentType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		b := feedBranches[t]
		parts = append(parts, fmt.Sprintf(
			"SELECT '%s'::text AS type, id, %s::text AS title, %s::text AS content, %s::text AS author, %s::text AS url, category_id, user_id, created_at, updated_at FROM %s WHERE is_deleted = false",
			t, b.title, b.content, b.author, b.url, t.Table(),
		))
	}
	return strings.Join(parts, "\n\t\tUNION ALL\n\t\t")
}

func unifiedTagsSQL(types []domain.ContentType) string {
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf(
			"SELECT '%s'::text AS type, %s AS content_id, tag_id FROM %s",
			t, t.TagColumn(), t.TagTable(),
		))
	}
	return strings.Join(parts, "\n\t\tUNION ALL\n\t\t")
}

const displayNameSQL = "COALESCE(NULLIF(%[1]s.first_name, ''), %[1]s.username, '')"

// buildFeedQuery assembles the unified feed statement:
// union of the live content tables, tag and vote aggregations joined per
// (type, id), category and author metadata, nested comment and vote rosters,
// and the rank score computed against now.
func buildFeedQuery(scope feedScope, now time.Time) feedQuery {
	types := scope.types()
	var b strings.Builder
	args := make([]any, 0, 6)

	fmt.Fprintf(&b, `WITH unified_content AS (
		%s
	),
	unified_tags AS (
		%s
	),
	tags_agg AS (
		SELECT ut.type, ut.content_id, json_agg(t.name ORDER BY t.name) AS tags
		FROM unified_tags ut
		JOIN tags t ON t.id = ut.tag_id AND t.is_deleted = false
		GROUP BY ut.type, ut.content_id
	),
	votes_agg AS (
		SELECT post_type, post_id,
			COUNT(*) FILTER (WHERE vote_type = 'up') AS up_count,
			COUNT(*) FILTER (WHERE vote_type = 'down') AS down_count
		FROM votes
		WHERE is_deleted = false
		GROUP BY post_type, post_id
	)
	SELECT
		c.type, c.id, c.title, c.content, c.author, c.url,
		c.category_id, COALESCE(cat.name, '') AS category_name,
		c.user_id, %s AS username,
		c.created_at,
		COALESCE(ta.tags, '[]'::json) AS tags,
		COALESCE((
			SELECT json_agg(json_build_object(
				'id', cm.id,
				'post_id', cm.post_id,
				'post_type', cm.post_type,
				'user_id', cm.user_id,
				'username', %s,
				'comment', cm.comment,
				'created_at', cm.created_at
			) ORDER BY cm.created_at DESC, cm.id DESC)
			FROM comments cm
			JOIN users u2 ON u2.id = cm.user_id
			WHERE cm.post_type = c.type AND cm.post_id = c.id AND cm.is_deleted = false
		), '[]'::json) AS comments,
		COALESCE((
			SELECT json_agg(json_build_object(
				'id', v.id,
				'user_id', v.user_id,
				'username', %s,
				'vote_type', v.vote_type,
				'created_at', v.created_at
			) ORDER BY v.created_at DESC, v.id DESC)
			FROM votes v
			JOIN users u3 ON u3.id = v.user_id
			WHERE v.post_type = c.type AND v.post_id = c.id AND v.is_deleted = false
		), '[]'::json) AS votes,
		COALESCE(va.up_count, 0) AS up_count,
		COALESCE(va.down_count, 0) AS down_count,
		COALESCE(va.up_count, 0) - COALESCE(va.down_count, 0) AS points_count,
		ROUND(CAST(
			(COALESCE(va.up_count, 0) - COALESCE(va.down_count, 0) - 1)::float8
			/ POWER(GREATEST(EXTRACT(EPOCH FROM (CAST(? AS timestamptz) - c.created_at))::float8 / 3600.0, 0) + 2, 1.5)
		AS numeric), 6)::float8 AS rank_score
	FROM unified_content c
	LEFT JOIN tags_agg ta ON ta.type = c.type AND ta.content_id = c.id
	LEFT JOIN votes_agg va ON va.post_type = c.type AND va.post_id = c.id
	LEFT JOIN categories cat ON cat.id = c.category_id
	LEFT JOIN users u ON u.id = c.user_id`,
		unifiedContentSQL(types),
		unifiedTagsSQL(types),
		fmt.Sprintf(displayNameSQL, "u"),
		fmt.Sprintf(displayNameSQL, "u2"),
		fmt.Sprintf(displayNameSQL, "u3"),
	)
	args = append(args, now.UTC())

	conds := make([]string, 0, 2)
	switch {
	case scope.ref != nil:
		conds = append(conds, "c.type = ?", "c.id = ?")
		args = append(args, string(scope.ref.Type), scope.ref.ID)
	default:
		if scope.filter.CategoryID != nil {
			conds = append(conds, "c.category_id = ?")
			args = append(args, *scope.filter.CategoryID)
		}
		if scope.filter.Type != nil {
			conds = append(conds, "c.type = ?")
			args = append(args, string(*scope.filter.Type))
		}
	}
	if len(conds) > 0 {
		b.WriteString("\n\tWHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if scope.ranked() {
		b.WriteString("\n\tORDER BY rank_score DESC, c.created_at DESC, c.type ASC, c.id DESC")
	} else {
		b.WriteString("\n\tORDER BY c.created_at DESC, c.type ASC, c.id DESC")
	}
	if scope.ref == nil && scope.filter.Limit > 0 {
		b.WriteString("\n\tLIMIT ? OFFSET ?")
		args = append(args, scope.filter.Limit, scope.filter.Offset())
	}
	return feedQuery{sql: b.String(), args: args}
}

// buildCountsQuery counts live rows per content type.
func buildCountsQuery() string {
	parts := make([]string, 0, len(domain.ContentTypes))
	for _, t := range domain.ContentTypes {
		parts = append(parts, fmt.Sprintf(
			"SELECT '%s'::text AS type, COUNT(*) AS total FROM %s WHERE is_deleted = false",
			t, t.Table(),
		))
	}
	return strings.Join(parts, "\nUNION ALL\n")
}
