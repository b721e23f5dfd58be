package store

import (
	"fmt"
	"time"

	"inspirestack/pkg/domain"
)

// GORM models used for persistence. Every table carries an is_deleted flag;
// rows are never physically removed except through junction-table cascades.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"size:100;uniqueIndex;not null"`
	FirstName    string    `gorm:"size:100"`
	Email        string    `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash *string   `gorm:"size:255"`
	ExternalID   *string   `gorm:"size:255;index"`
	UserType     string    `gorm:"size:16;not null;default:local"`
	DisplayMode  string    `gorm:"size:16;not null;default:light"`
	IsDeleted    bool      `gorm:"not null;default:false;index:idx_users_deleted_created"`
	CreatedAt    time.Time `gorm:"not null;index:idx_users_deleted_created"`
	UpdatedAt    time.Time
}

func (UserModel) TableName() string { return "users" }

type CategoryModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:50;not null;index"`
	Slug      string `gorm:"size:50;not null;uniqueIndex"`
	Icon      string `gorm:"size:10"`
	Color     string `gorm:"size:500"`
	IsDeleted bool   `gorm:"not null;default:false;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (CategoryModel) TableName() string { return "categories" }

// ContentColumns is embedded by the five content models.
type ContentColumns struct {
	CategoryID int64     `gorm:"not null;index"`
	UserID     int64     `gorm:"not null;index"`
	CreatedAt  time.Time `gorm:"not null;index"`
	UpdatedAt  time.Time
	IsDeleted  bool `gorm:"not null;default:false;index"`
}

type QuoteModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Quote  string `gorm:"type:text;not null"`
	Author string `gorm:"size:255;not null;default:''"`
	ContentColumns
}

type ArticleModel struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Title string `gorm:"type:text;not null"`
	URL   string `gorm:"column:url;type:text;not null;default:''"`
	ContentColumns
}

type BookModel struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Title   string `gorm:"type:text;not null"`
	Summary string `gorm:"type:text;not null;default:''"`
	Author  string `gorm:"size:255;not null;default:''"`
	URL     string `gorm:"column:url;type:text;not null;default:''"`
	ContentColumns
}

type VideoModel struct {
	ID    int64  `gorm:"primaryKey;autoIncrement"`
	Title string `gorm:"type:text;not null"`
	URL   string `gorm:"column:url;type:text;not null;default:''"`
	ContentColumns
}

type PromptModel struct {
	ID     int64  `gorm:"primaryKey;autoIncrement"`
	Prompt string `gorm:"type:text;not null"`
	ContentColumns
}

func (QuoteModel) TableName() string   { return domain.TypeQuote.Table() }
func (ArticleModel) TableName() string { return domain.TypeArticle.Table() }
func (BookModel) TableName() string    { return domain.TypeBook.Table() }
func (VideoModel) TableName() string   { return domain.TypeVideo.Table() }
func (PromptModel) TableName() string  { return domain.TypePrompt.Table() }

type TagModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"size:100;not null;uniqueIndex"`
	IsDeleted bool      `gorm:"not null;default:false;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (TagModel) TableName() string { return "tags" }

type CommentModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PostID    int64     `gorm:"not null;index:idx_comments_post"`
	PostType  string    `gorm:"size:16;not null;index:idx_comments_post"`
	UserID    int64     `gorm:"not null;index"`
	Comment   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
	IsDeleted bool `gorm:"not null;default:false;index"`
}

func (CommentModel) TableName() string { return "comments" }

// VoteModel keeps one row per (post_id, post_type, user_id) whatever its
// soft-delete state; the row is toggled rather than duplicated.
type VoteModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	PostID    int64     `gorm:"not null;uniqueIndex:idx_votes_unique_vote,priority:1;index:idx_votes_post"`
	PostType  string    `gorm:"size:16;not null;uniqueIndex:idx_votes_unique_vote,priority:2;index:idx_votes_post"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_votes_unique_vote,priority:3;index"`
	VoteType  string    `gorm:"size:8;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time
	IsDeleted bool `gorm:"not null;default:false;index"`
}

func (VoteModel) TableName() string { return "votes" }

func userToModel(u domain.User) UserModel {
	m := UserModel{
		ID:          u.ID,
		Username:    u.Username,
		FirstName:   u.FirstName,
		Email:       u.Email,
		UserType:    string(u.Kind),
		DisplayMode: string(u.Theme),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
	if u.PasswordHash != "" {
		hash := u.PasswordHash
		m.PasswordHash = &hash
	}
	if u.ExternalID != "" {
		ext := u.ExternalID
		m.ExternalID = &ext
	}
	if m.UserType == "" {
		m.UserType = string(domain.AccountLocal)
	}
	if m.DisplayMode == "" {
		m.DisplayMode = string(domain.ThemeLight)
	}
	return m
}

func userFromModel(m UserModel) domain.User {
	u := domain.User{
		ID:        m.ID,
		Username:  m.Username,
		FirstName: m.FirstName,
		Email:     m.Email,
		Kind:      domain.AccountKind(m.UserType),
		Theme:     domain.Theme(m.DisplayMode),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.PasswordHash != nil {
		u.PasswordHash = *m.PasswordHash
	}
	if m.ExternalID != nil {
		u.ExternalID = *m.ExternalID
	}
	return u
}

func categoryFromModel(m CategoryModel) domain.Category {
	return domain.Category{ID: m.ID, Name: m.Name, Slug: m.Slug, Icon: m.Icon, Color: m.Color}
}

// contentModel builds the typed row for item.
func contentModel(item domain.ContentItem) (any, error) {
	cols := ContentColumns{
		CategoryID: item.CategoryID,
		UserID:     item.UserID,
		CreatedAt:  item.CreatedAt,
		UpdatedAt:  item.UpdatedAt,
	}
	switch b := item.Body.(type) {
	case domain.QuoteBody:
		return &QuoteModel{Quote: b.Quote, Author: b.Author, ContentColumns: cols}, nil
	case domain.ArticleBody:
		return &ArticleModel{Title: b.Title, URL: b.URL, ContentColumns: cols}, nil
	case domain.BookBody:
		return &BookModel{Title: b.Title, Summary: b.Summary, Author: b.Author, URL: b.URL, ContentColumns: cols}, nil
	case domain.VideoBody:
		return &VideoModel{Title: b.Title, URL: b.URL, ContentColumns: cols}, nil
	case domain.PromptBody:
		return &PromptModel{Prompt: b.Prompt, ContentColumns: cols}, nil
	}
	return nil, fmt.Errorf("%w: unsupported content body %T", domain.ErrInvalidArgument, item.Body)
}

func contentModelID(model any) int64 {
	switch m := model.(type) {
	case *QuoteModel:
		return m.ID
	case *ArticleModel:
		return m.ID
	case *BookModel:
		return m.ID
	case *VideoModel:
		return m.ID
	case *PromptModel:
		return m.ID
	}
	return 0
}

// bodyColumns returns the type-specific column values of body.
func bodyColumns(body domain.Body) map[string]any {
	switch b := body.(type) {
	case domain.QuoteBody:
		return map[string]any{"quote": b.Quote, "author": b.Author}
	case domain.ArticleBody:
		return map[string]any{"title": b.Title, "url": b.URL}
	case domain.BookBody:
		return map[string]any{"title": b.Title, "summary": b.Summary, "author": b.Author, "url": b.URL}
	case domain.VideoBody:
		return map[string]any{"title": b.Title, "url": b.URL}
	case domain.PromptBody:
		return map[string]any{"prompt": b.Prompt}
	}
	return nil
}

// duplicateColumns lists, per type, the columns matching Body.DuplicateKey.
var duplicateColumns = map[domain.ContentType][]string{
	domain.TypeQuote:   {"quote", "author"},
	domain.TypeArticle: {"title", "url"},
	domain.TypeBook:    {"title", "summary", "author"},
	domain.TypeVideo:   {"title", "url"},
	domain.TypePrompt:  {"prompt"},
}
