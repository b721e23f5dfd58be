package domain

import (
	"fmt"
	"strings"
	"time"
)

// Fields is the flat, type-agnostic view of a content payload. It is what
// clients submit and what the feed returns.
type Fields struct {
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Author  string `json:"author,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Body is the type-specific payload of a content item.
type Body interface {
	Type() ContentType
	Fields() Fields
	// DuplicateKey returns the values that make two items of the same type,
	// category and owner exact duplicates.
	DuplicateKey() []string
	Validate() error
}

type QuoteBody struct {
	Quote  string
	Author string
}

type ArticleBody struct {
	Title string
	URL   string
}

type BookBody struct {
	Title   string
	Summary string
	Author  string
	URL     string
}

type VideoBody struct {
	Title string
	URL   string
}

type PromptBody struct {
	Prompt string
}

func (QuoteBody) Type() ContentType   { return TypeQuote }
func (ArticleBody) Type() ContentType { return TypeArticle }
func (BookBody) Type() ContentType    { return TypeBook }
func (VideoBody) Type() ContentType   { return TypeVideo }
func (PromptBody) Type() ContentType  { return TypePrompt }

func (b QuoteBody) Fields() Fields   { return Fields{Content: b.Quote, Author: b.Author} }
func (b ArticleBody) Fields() Fields { return Fields{Title: b.Title, URL: b.URL} }
func (b BookBody) Fields() Fields {
	return Fields{Title: b.Title, Content: b.Summary, Author: b.Author, URL: b.URL}
}
func (b VideoBody) Fields() Fields  { return Fields{Title: b.Title, URL: b.URL} }
func (b PromptBody) Fields() Fields { return Fields{Content: b.Prompt} }

func (b QuoteBody) DuplicateKey() []string   { return []string{b.Quote, b.Author} }
func (b ArticleBody) DuplicateKey() []string { return []string{b.Title, b.URL} }
func (b BookBody) DuplicateKey() []string    { return []string{b.Title, b.Summary, b.Author} }
func (b VideoBody) DuplicateKey() []string   { return []string{b.Title, b.URL} }
func (b PromptBody) DuplicateKey() []string  { return []string{b.Prompt} }

func (b QuoteBody) Validate() error {
	return require(TypeQuote, "content", b.Quote)
}

func (b ArticleBody) Validate() error {
	if err := require(TypeArticle, "title", b.Title); err != nil {
		return err
	}
	return require(TypeArticle, "url", b.URL)
}

func (b BookBody) Validate() error {
	return require(TypeBook, "title", b.Title)
}

func (b VideoBody) Validate() error {
	if err := require(TypeVideo, "title", b.Title); err != nil {
		return err
	}
	return require(TypeVideo, "url", b.URL)
}

func (b PromptBody) Validate() error {
	return require(TypePrompt, "content", b.Prompt)
}

func require(t ContentType, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s requires %s", ErrInvalidArgument, t, field)
	}
	return nil
}

// NewBody builds the payload variant for t from flat fields and validates
// the per-type required fields.
func NewBody(t ContentType, f Fields) (Body, error) {
	b, err := BodyFromFields(t, f)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// BodyFromFields maps flat fields onto the payload variant of t without
// checking required fields.
func BodyFromFields(t ContentType, f Fields) (Body, error) {
	f = Fields{
		Title:   strings.TrimSpace(f.Title),
		Content: strings.TrimSpace(f.Content),
		Author:  strings.TrimSpace(f.Author),
		URL:     strings.TrimSpace(f.URL),
	}
	switch t {
	case TypeQuote:
		return QuoteBody{Quote: f.Content, Author: f.Author}, nil
	case TypeArticle:
		return ArticleBody{Title: f.Title, URL: f.URL}, nil
	case TypeBook:
		return BookBody{Title: f.Title, Summary: f.Content, Author: f.Author, URL: f.URL}, nil
	case TypeVideo:
		return VideoBody{Title: f.Title, URL: f.URL}, nil
	case TypePrompt:
		return PromptBody{Prompt: f.Content}, nil
	}
	return nil, fmt.Errorf("%w: invalid content type %q", ErrInvalidArgument, t)
}

// Ref is the only globally unique identifier of a content item.
type Ref struct {
	Type ContentType `json:"type"`
	ID   int64       `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%d", r.Type, r.ID)
}

// ContentItem is one row of any of the five content tables.
type ContentItem struct {
	ID         int64
	CategoryID int64
	UserID     int64
	Body       Body
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Type returns the discriminant of the item's payload.
func (c ContentItem) Type() ContentType {
	if c.Body == nil {
		return ""
	}
	return c.Body.Type()
}

// Ref returns the (type, id) pair identifying the item.
func (c ContentItem) Ref() Ref {
	return Ref{Type: c.Type(), ID: c.ID}
}

// ContentPatch is an owner's edit of an existing item.
type ContentPatch struct {
	Body       Body
	CategoryID int64
	Tags       []string
}
