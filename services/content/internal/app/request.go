package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"inspirestack/pkg/domain"
)

// CategoryRef is a category given either as a slug or a numeric id. JSON
// numbers and strings are both accepted.
type CategoryRef string

// UnmarshalJSON accepts "mindset", "3" and 3.
func (c *CategoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = CategoryRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("category must be a slug or an id: %w", err)
	}
	*c = CategoryRef(n.String())
	return nil
}

// ContentRequest is the body of create and update calls. Absent optional
// fields are empty strings.
type ContentRequest struct {
	Type     string      `json:"type" validate:"required,oneof=quote prompt aiprompt article video book"`
	Title    string      `json:"title" validate:"omitempty,min=5,max=500"`
	Content  string      `json:"content" validate:"omitempty,min=10,max=5000"`
	Author   string      `json:"author" validate:"omitempty,max=255"`
	URL      string      `json:"url" validate:"omitempty,url"`
	Category CategoryRef `json:"category" validate:"required"`
	Tags     []string    `json:"tags" validate:"max=10,dive,max=100"`
}

func (r *ContentRequest) normalize() {
	r.Type = strings.ToLower(strings.TrimSpace(r.Type))
	r.Title = strings.TrimSpace(r.Title)
	r.Content = strings.TrimSpace(r.Content)
	r.Author = strings.TrimSpace(r.Author)
	r.URL = strings.TrimSpace(r.URL)
	r.Category = CategoryRef(strings.TrimSpace(string(r.Category)))
}

func (r ContentRequest) fields() domain.Fields {
	return domain.Fields{Title: r.Title, Content: r.Content, Author: r.Author, URL: r.URL}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest checks req and reports the first failing field as an
// invalid-argument error.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, describeFieldError(verrs[0]))
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return "invalid " + field
	case "url":
		return field + " must be a valid URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("at most %s %s allowed", fe.Param(), field)
		}
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	}
	return "invalid " + field
}
