package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"inspirestack/pkg/domain"
	"inspirestack/pkg/store"
)

const strongPassword = "Quotes&Books42"

func newTestApp(t *testing.T, now func() time.Time) *App {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "jwt.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	sessions, err := store.NewJWTRS256SessionStoreFromPEM(path, "", "test-key", nil, time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := New(Config{Store: store.NewMemoryStore(), Sessions: sessions, Now: now})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestSignUpIssuesUsableToken(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()

	user, token, err := a.SignUp(ctx, SignupRequest{Username: "ada_l", Email: " Ada@Example.COM ", Password: strongPassword})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("email = %q, want lower-cased", user.Email)
	}
	if user.FirstName != "ada_l" || user.Theme != domain.ThemeLight || user.Kind != domain.AccountLocal {
		t.Fatalf("unexpected defaults: %+v", user)
	}
	got, ok := a.UserFromToken(ctx, token)
	if !ok || got.ID != user.ID {
		t.Fatalf("token resolves to %+v ok=%v", got, ok)
	}
	if len(a.JWKS()) != 1 || a.JWKS()[0].Kid != "test-key" {
		t.Fatalf("unexpected jwks: %+v", a.JWKS())
	}
}

func TestSignUpValidation(t *testing.T) {
	a := newTestApp(t, nil)
	cases := []struct {
		name string
		req  SignupRequest
		msg  string
	}{
		{"short username", SignupRequest{Username: "ab", Email: "a@b.io", Password: strongPassword}, "username must be"},
		{"bad username", SignupRequest{Username: "no spaces", Email: "a@b.io", Password: strongPassword}, "username must be"},
		{"missing email", SignupRequest{Username: "grace", Password: strongPassword}, "email is required"},
		{"bad email", SignupRequest{Username: "grace", Email: "nope", Password: strongPassword}, "valid email"},
		{"weak password", SignupRequest{Username: "grace", Email: "g@h.io", Password: "alllowercase1!"}, "password must contain"},
		{"short password", SignupRequest{Username: "grace", Email: "g@h.io", Password: "Ab1!"}, "at least 10"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := a.SignUp(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not mention %q", err, tc.msg)
			}
		})
	}
}

func TestSignUpRejectsDuplicates(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	if _, _, err := a.SignUp(ctx, SignupRequest{Username: "linus", Email: "l@k.org", Password: strongPassword}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, _, err := a.SignUp(ctx, SignupRequest{Username: "linus", Email: "other@k.org", Password: strongPassword})
	if !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}
	_, _, err = a.SignUp(ctx, SignupRequest{Username: "linus2", Email: "L@K.org", Password: strongPassword})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
}

func TestLoginChecksCredentials(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	if _, _, err := a.SignUp(ctx, SignupRequest{Username: "margaret", Email: "mh@nasa.gov", Password: strongPassword}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, _, err := a.Login(ctx, "MH@nasa.gov", strongPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := a.Login(ctx, "mh@nasa.gov", "Wrong&Password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, _, err := a.Login(ctx, "nobody@nasa.gov", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got %v", err)
	}
	if _, _, err := a.Login(ctx, "", ""); !errors.Is(err, ErrEmailAndPasswordRequired) {
		t.Fatalf("expected required error, got %v", err)
	}
}

func TestLoginRejectsExternalAccounts(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	if _, err := a.store.CreateUser(ctx, domain.User{Username: "oauth_user", Email: "o@auth.io", Kind: domain.AccountExternal, ExternalID: "g-1"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, _, err := a.Login(ctx, "o@auth.io", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	_, token, err := a.SignUp(ctx, SignupRequest{Username: "barbara", Email: "b@l.io", Password: strongPassword})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if err := a.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := a.UserFromToken(ctx, token); ok {
		t.Fatalf("expected revoked token to be rejected")
	}
	if err := a.Logout("garbage"); err != nil {
		t.Fatalf("logout of invalid token should be a no-op: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	a := newTestApp(t, func() time.Time { return time.Now().UTC().Add(2 * time.Second) })
	ctx := context.Background()
	user, first, err := a.SignUp(ctx, SignupRequest{Username: "edsger", Email: "e@d.nl", Password: strongPassword})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	_, second, err := a.Login(ctx, "e@d.nl", strongPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := a.LogoutAll(user.ID); err != nil {
		t.Fatalf("logout all: %v", err)
	}
	for _, token := range []string{first, second} {
		if _, ok := a.UserFromToken(ctx, token); ok {
			t.Fatalf("expected every session to be revoked")
		}
	}
}

func TestUpdateTheme(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	user, _, err := a.SignUp(ctx, SignupRequest{Username: "alan_t", Email: "a@t.uk", Password: strongPassword})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	updated, err := a.UpdateTheme(ctx, user.ID, " DARK ")
	if err != nil {
		t.Fatalf("update theme: %v", err)
	}
	if updated.Theme != domain.ThemeDark {
		t.Fatalf("theme = %q, want dark", updated.Theme)
	}
	if _, err := a.UpdateTheme(ctx, user.ID, "neon"); !errors.Is(err, ErrInvalidTheme) {
		t.Fatalf("expected invalid theme, got %v", err)
	}
	if _, err := a.UpdateTheme(ctx, 999, "light"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEmailAvailable(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	if _, _, err := a.SignUp(ctx, SignupRequest{Username: "taken", Email: "taken@example.com", Password: strongPassword}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	for email, want := range map[string]bool{
		"taken@example.com":   false,
		" TAKEN@Example.com ": false,
		"free@example.com":    true,
	} {
		got, err := a.EmailAvailable(ctx, email)
		if err != nil || got != want {
			t.Fatalf("EmailAvailable(%q) = %v, %v; want %v", email, got, err, want)
		}
	}
	if _, err := a.EmailAvailable(ctx, "  "); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("blank email should be invalid, got %v", err)
	}
}
