package auth

import (
	"errors"
	"testing"
)

func TestHashPasswordAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Curious#Mind42")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "Curious#Mind42" {
		t.Fatalf("expected opaque hash, got %q", hash)
	}
	if !CheckPassword("Curious#Mind42", hash) {
		t.Fatalf("expected password check to pass")
	}
	if CheckPassword("curious#mind42", hash) {
		t.Fatalf("expected password check to fail for different case")
	}
}

func TestCheckPasswordRejectsAccountsWithoutPassword(t *testing.T) {
	if CheckPassword("anything", "") {
		t.Fatalf("external accounts have no password and must never match")
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{name: "valid", password: "Str0ng#Password!"},
		{name: "short", password: "short1!A", want: ErrPasswordTooShort},
		{name: "no upper", password: "alllowercase123!", want: ErrPasswordWeak},
		{name: "no lower", password: "ALLUPPERCASE123!", want: ErrPasswordWeak},
		{name: "no digit", password: "NoDigitsHere!!!", want: ErrPasswordWeak},
		{name: "no symbol", password: "NoSpecials1234", want: ErrPasswordWeak},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePassword(tc.password)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected valid password, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
