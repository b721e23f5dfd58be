package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"inspirestack/internal/usertoken"
	"inspirestack/pkg/domain"
	"inspirestack/pkg/store"
	"inspirestack/services/auth/internal/app"
)

const strongPassword = "Quotes&Books42"

func newTestServer(t *testing.T, signupLimit int) (*Server, *miniredis.Miniredis) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyPath := filepath.Join(t.TempDir(), "jwt.pem")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	mr := miniredis.RunT(t)
	revoker := store.NewRedisTokenRevoker(mr.Addr(), "")
	t.Cleanup(func() { _ = revoker.Close() })
	sessions, err := store.NewJWTRS256SessionStoreFromPEM(keyPath, "", "auth-test", nil, time.Hour, revoker)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	core, err := app.New(app.Config{Store: store.NewMemoryStore(), Sessions: sessions})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{
		App:                      core,
		RedisAddr:                mr.Addr(),
		SignupRateLimitPerMinute: signupLimit,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, mr
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type authBody struct {
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	Message string      `json:"message"`
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authBody {
	t.Helper()
	var out authBody
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out["message"]
}

func TestSignupLoginMeTheme(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"ada_l","email":"ada@example.com","password":"`+strongPassword+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status %d: %s", rec.Code, rec.Body.String())
	}
	signup := decodeAuth(t, rec)
	if signup.Token == "" || signup.User.Username != "ada_l" || signup.Message != "User created successfully" {
		t.Fatalf("unexpected signup body: %+v", signup)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("signup response leaks password fields: %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"ada_l","email":"other@example.com","password":"`+strongPassword+`"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"ada@example.com","password":"Wrong&Password1"}`)
	if rec.Code != http.StatusUnauthorized || message(t, rec) != app.ErrInvalidCredentials.Error() {
		t.Fatalf("bad login status %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"ADA@example.com","password":"`+strongPassword+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", rec.Code, rec.Body.String())
	}
	token := decodeAuth(t, rec).Token

	rec = do(t, h, http.MethodGet, "/auth/me", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("me status %d", rec.Code)
	}
	var me domain.User
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil || me.Email != "ada@example.com" {
		t.Fatalf("unexpected me body %s: %v", rec.Body.String(), err)
	}

	rec = do(t, h, http.MethodPut, "/auth/me/theme", token, `{"theme":"dark"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"displayMode":"dark"`) {
		t.Fatalf("theme status %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPut, "/auth/me/theme", token, `{"theme":"sepia"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid theme status %d", rec.Code)
	}
}

func TestSignupValidationErrors(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"x","email":"x@example.com","password":"`+strongPassword+`"}`)
	if rec.Code != http.StatusBadRequest || !strings.HasPrefix(message(t, rec), "username must be") {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/auth/signup", "", `{"username":`)
	if rec.Code != http.StatusBadRequest || message(t, rec) != "invalid JSON body" {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"grace","email":"grace@example.com","password":"`+strongPassword+`"}`)
	token := decodeAuth(t, rec).Token

	if rec := do(t, h, http.MethodPost, "/auth/logout", token, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/auth/me", token, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout status %d", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/auth/logout", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("logout without token status %d", rec.Code)
	}
}

func TestLogoutAllRevokesOtherSessions(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"hopper","email":"hopper@example.com","password":"`+strongPassword+`"}`)
	first := decodeAuth(t, rec).Token
	rec = do(t, h, http.MethodPost, "/auth/login", "", `{"email":"hopper@example.com","password":"`+strongPassword+`"}`)
	second := decodeAuth(t, rec).Token

	if rec := do(t, h, http.MethodPost, "/auth/logout-all", second, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("logout-all status %d: %s", rec.Code, rec.Body.String())
	}
	for _, token := range []string{first, second} {
		if rec := do(t, h, http.MethodGet, "/auth/me", token, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("me after logout-all status %d", rec.Code)
		}
	}
}

func TestSignupRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, 1)
	h := srv.Router()

	do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"first","email":"first@example.com","password":"`+strongPassword+`"}`)
	rec := do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"second","email":"second@example.com","password":"`+strongPassword+`"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("missing rate limit headers: %v", rec.Header())
	}
}

func TestJWKSVerifiesIssuedTokens(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("get jwks: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Header.Get("Cache-Control"), "max-age=300") {
		t.Fatalf("jwks status %d cache %q", resp.StatusCode, resp.Header.Get("Cache-Control"))
	}

	rec := do(t, srv.Router(), http.MethodPost, "/auth/signup", "", `{"username":"linus","firstName":"Linus","email":"linus@example.com","password":"`+strongPassword+`"}`)
	signup := decodeAuth(t, rec)

	verifier, err := usertoken.NewVerifier(usertoken.Config{JWKSURL: ts.URL + "/auth/jwks"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	identity, err := verifier.Verify(context.Background(), signup.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.UserID != signup.User.ID || identity.Username != "linus" || identity.Email != "linus@example.com" {
		t.Fatalf("unexpected identity: %+v", identity)
	}
}

func TestUnknownRoute(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	rec := do(t, srv.Router(), http.MethodGet, "/auth/nope", "", "")
	if rec.Code != http.StatusNotFound || message(t, rec) != "route not found" {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckEmail(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	h := srv.Router()
	do(t, h, http.MethodPost, "/auth/signup", "", `{"username":"margaret","email":"margaret@example.com","password":"`+strongPassword+`"}`)

	for query, want := range map[string]string{
		"margaret@example.com": "false",
		"MARGARET@example.com": "false",
		"nobody@example.com":   "true",
	} {
		rec := do(t, h, http.MethodGet, "/auth/check-email?email="+url.QueryEscape(query), "", "")
		if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != want {
			t.Fatalf("check %q: status %d body %q, want %s", query, rec.Code, rec.Body.String(), want)
		}
	}
	rec := do(t, h, http.MethodGet, "/auth/check-email", "", "")
	if rec.Code != http.StatusBadRequest || message(t, rec) != "email is required" {
		t.Fatalf("missing email: status %d: %s", rec.Code, rec.Body.String())
	}
}
