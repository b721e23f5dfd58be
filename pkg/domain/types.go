package domain

import (
	"fmt"
	"strings"
)

// ContentType is the discriminant that tells which content table an id belongs to.
type ContentType string

const (
	TypeQuote   ContentType = "quote"
	TypeArticle ContentType = "article"
	TypeBook    ContentType = "book"
	TypeVideo   ContentType = "video"
	TypePrompt  ContentType = "aiprompt"
)

// promptAlias is the client-facing name of TypePrompt.
const promptAlias = "prompt"

// ContentTypes lists every content type in a fixed order.
var ContentTypes = []ContentType{TypeQuote, TypeArticle, TypeBook, TypeVideo, TypePrompt}

// ParseContentType normalizes raw input into a ContentType.
// "prompt" is accepted as an alias of "aiprompt".
func ParseContentType(raw string) (ContentType, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == promptAlias {
		return TypePrompt, nil
	}
	t := ContentType(v)
	if !t.Valid() {
		return "", fmt.Errorf("%w: invalid content type %q", ErrInvalidArgument, raw)
	}
	return t, nil
}

// Valid reports whether t is one of the five known content types.
func (t ContentType) Valid() bool {
	switch t {
	case TypeQuote, TypeArticle, TypeBook, TypeVideo, TypePrompt:
		return true
	}
	return false
}

// Table returns the physical table holding rows of this type.
func (t ContentType) Table() string {
	return string(t) + "s"
}

// TagTable returns the junction table linking rows of this type to tags.
func (t ContentType) TagTable() string {
	return string(t) + "_tags"
}

// TagColumn returns the content id column of TagTable.
func (t ContentType) TagColumn() string {
	return string(t) + "_id"
}

// Presentation is the badge shown next to an item of a given type.
type Presentation struct {
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

var presentations = map[ContentType]Presentation{
	TypeQuote:   {Label: "Quote", Icon: "💬"},
	TypeArticle: {Label: "Article", Icon: "📰"},
	TypeBook:    {Label: "Book", Icon: "📖"},
	TypeVideo:   {Label: "Video", Icon: "🎬"},
	TypePrompt:  {Label: "AI Prompt", Icon: "🤖"},
}

// TypePresentation returns the static badge for t.
func TypePresentation(t ContentType) Presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return Presentation{Label: string(t)}
}
