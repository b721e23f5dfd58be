package domain

import (
	"errors"
	"math"
	"testing"
)

func TestParseContentType(t *testing.T) {
	tests := []struct {
		raw     string
		want    ContentType
		wantErr bool
	}{
		{raw: "quote", want: TypeQuote},
		{raw: " Article ", want: TypeArticle},
		{raw: "prompt", want: TypePrompt},
		{raw: "aiprompt", want: TypePrompt},
		{raw: "podcast", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseContentType(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidArgument) {
					t.Fatalf("expected invalid argument, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parse %q: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("parse %q = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestContentTypeTables(t *testing.T) {
	if got := TypePrompt.Table(); got != "aiprompts" {
		t.Fatalf("aiprompt table = %q", got)
	}
	if got := TypeQuote.Table(); got != "quotes" {
		t.Fatalf("quote table = %q", got)
	}
	if got := TypeBook.TagTable(); got != "book_tags" {
		t.Fatalf("book tag table = %q", got)
	}
	if got := TypeVideo.TagColumn(); got != "video_id" {
		t.Fatalf("video tag column = %q", got)
	}
}

func TestParseVoteActionIsCaseSensitive(t *testing.T) {
	if d, err := ParseVoteAction("upvote"); err != nil || d != VoteUp {
		t.Fatalf("upvote: %q %v", d, err)
	}
	if d, err := ParseVoteAction("downvote"); err != nil || d != VoteDown {
		t.Fatalf("downvote: %q %v", d, err)
	}
	for _, raw := range []string{"Upvote", "up", "", "DOWNVOTE"} {
		if _, err := ParseVoteAction(raw); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("expected %q to be rejected, got %v", raw, err)
		}
	}
}

func TestNormalizeTagsCollapsesVariants(t *testing.T) {
	got := NormalizeTags([]string{"Mindset", " mindset ", "MINDSET", "", "  ", "Focus"})
	if len(got) != 2 || got[0] != "mindset" || got[1] != "focus" {
		t.Fatalf("unexpected tags: %#v", got)
	}
}

func TestNewBodyMapsFieldsPerType(t *testing.T) {
	body, err := NewBody(TypeBook, Fields{Title: " Deep Work ", Content: "Rules for focus", Author: "Cal Newport"})
	if err != nil {
		t.Fatalf("new book body: %v", err)
	}
	book, ok := body.(BookBody)
	if !ok {
		t.Fatalf("expected BookBody, got %T", body)
	}
	if book.Title != "Deep Work" || book.Summary != "Rules for focus" {
		t.Fatalf("unexpected book body: %+v", book)
	}
	if got := body.Fields().Content; got != "Rules for focus" {
		t.Fatalf("summary should surface as content, got %q", got)
	}

	if _, err := NewBody(TypeArticle, Fields{Title: "No link"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("article without url should fail, got %v", err)
	}
	if _, err := NewBody(TypeQuote, Fields{Author: "Anon"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("quote without text should fail, got %v", err)
	}
}

func TestPoints(t *testing.T) {
	votes := []Vote{{Direction: VoteUp}, {Direction: VoteUp}, {Direction: VoteDown}}
	if got := Points(votes); got != 1 {
		t.Fatalf("points = %d, want 1", got)
	}
}

func TestFeedFilterOffset(t *testing.T) {
	tests := []struct {
		filter FeedFilter
		want   int
	}{
		{FeedFilter{}, 0},
		{FeedFilter{Page: 3}, 0},
		{FeedFilter{Page: 1, Limit: 20}, 0},
		{FeedFilter{Page: 3, Limit: 20}, 40},
		{FeedFilter{Page: 92233720368547760, Limit: 100}, math.MaxInt},
		{FeedFilter{Page: math.MaxInt, Limit: 2}, math.MaxInt},
	}
	for _, tt := range tests {
		if got := tt.filter.Offset(); got != tt.want {
			t.Fatalf("Offset(%+v) = %d, want %d", tt.filter, got, tt.want)
		}
	}
}
