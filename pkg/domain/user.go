package domain

import "time"

// AccountKind tells how a user authenticates.
type AccountKind string

const (
	AccountLocal    AccountKind = "local"
	AccountExternal AccountKind = "external"
)

// Theme is the display preference of a user.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// ParseTheme validates a theme preference.
func ParseTheme(raw string) (Theme, bool) {
	switch t := Theme(raw); t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return t, true
	}
	return "", false
}

type User struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	FirstName    string      `json:"firstName,omitempty"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	ExternalID   string      `json:"-"`
	Kind         AccountKind `json:"userType"`
	Theme        Theme       `json:"displayMode"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// DisplayName is what other users see as the author of content.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

type Category struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// AllCategorySlug names the pseudo-category used by clients for "no filter".
const AllCategorySlug = "all"

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}
