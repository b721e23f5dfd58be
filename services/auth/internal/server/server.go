package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inspirestack/internal/ratelimit"
	"inspirestack/internal/servicetoken"
	"inspirestack/internal/util"
	"inspirestack/pkg/domain"
	"inspirestack/services/auth/internal/app"
)

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                          *app.App
	RedisAddr                    string
	RedisPassword                string
	SignupRateLimitPerMinute     int
	LoginRateLimitPerMinute      int
	CheckEmailRateLimitPerMinute int
	CORSAllowedOrigins           []string
	TrustedProxies               *util.TrustedProxies
}

// Server exposes HTTP endpoints for the auth service.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	cors           *util.CORSPolicy
	trustedProxies *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	emailLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("auth server requires app")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	emailLimit := cfg.CheckEmailRateLimitPerMinute
	if emailLimit <= 0 {
		emailLimit = 30
	}
	signupLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword,
		ratelimit.DefaultPrefix+":auth:signup", signupLimit, time.Minute)
	if err != nil {
		return nil, fmt.Errorf("init signup limiter: %w", err)
	}
	loginLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword,
		ratelimit.DefaultPrefix+":auth:login", loginLimit, time.Minute)
	if err != nil {
		_ = signupLimiter.Close()
		return nil, fmt.Errorf("init login limiter: %w", err)
	}
	emailLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword,
		ratelimit.DefaultPrefix+":auth:check_email", emailLimit, time.Minute)
	if err != nil {
		_ = signupLimiter.Close()
		_ = loginLimiter.Close()
		return nil, fmt.Errorf("init check-email limiter: %w", err)
	}

	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		cors:           util.NewCORSPolicy(cfg.CORSAllowedOrigins),
		trustedProxies: cfg.TrustedProxies,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		emailLimiter:   emailLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = util.WithRequestLog("auth", s.mux)
	h = util.WithSecurityHeaders(s.cors.Wrap(h))
	return util.WithRequestID(h)
}

// Close releases the limiter connections.
func (s *Server) Close() error {
	_ = s.loginLimiter.Close()
	_ = s.emailLimiter.Close()
	return s.signupLimiter.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleNotFound)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// auth
	s.mux.Handle("POST /auth/signup", s.limited(s.signupLimiter, "too many signup attempts", s.handleSignup))
	s.mux.Handle("POST /auth/login", s.limited(s.loginLimiter, "too many login attempts", s.handleLogin))
	s.mux.Handle("GET /auth/check-email", s.limited(s.emailLimiter, "too many email checks", s.handleCheckEmail))
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.mux.Handle("POST /auth/logout-all", s.authenticated(s.handleLogoutAll))
	s.mux.Handle("GET /auth/me", s.authenticated(s.handleMe))
	s.mux.Handle("PUT /auth/me/theme", s.authenticated(s.handleTheme))

	// keys
	s.mux.HandleFunc("GET /auth/jwks", s.handleJWKS)
	s.mux.HandleFunc("GET /.well-known/jwks.json", s.handleJWKS)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			s.audit(r, "auth.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, ok := s.app.UserFromToken(r.Context(), token)
		if !ok {
			s.audit(r, "auth.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", user.ID)
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)), user)
	})
}

func (s *Server) limited(limiter *ratelimit.FixedWindowLimiter, msg string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := limiter.Check(r.Context(), s.clientIP(r))
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			s.audit(r, "auth.rate_limit", "rate_limited")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			writeError(w, http.StatusTooManyRequests, msg)
			return
		}
		next(w, r)
	})
}

// auth handlers
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req app.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.SignUp(r.Context(), req)
	if err != nil {
		s.audit(r, "auth.signup", "fail")
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: user, Message: "User created successfully"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, token, err := s.app.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, app.ErrInvalidCredentials) {
		s.audit(r, "auth.login", "fail", "reason", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.login", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user, Message: "Login successful"})
}

// handleCheckEmail answers with a bare JSON boolean: true when the address is
// still free.
func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	available, err := s.app.EmailAvailable(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, available)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := servicetoken.BearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := s.app.Logout(token); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", "success")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request, user domain.User) {
	if err := s.app.LogoutAll(user.ID); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout_all", "success", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user domain.User) {
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req themeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateTheme(r.Context(), user.ID, req.Theme)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, map[string]any{"keys": s.app.JWKS()})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token   string      `json:"token"`
	User    domain.User `json:"user"`
	Message string      `json:"message"`
}

type themeRequest struct {
	Theme string `json:"theme"`
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trustedProxies)
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", s.clientIP(r),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Log(r.Context(), slog.LevelWarn, "security_event", logAttrs...)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range []struct {
		kind   error
		status int
	}{
		{domain.ErrInvalidArgument, http.StatusBadRequest},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrConflict, http.StatusConflict},
	} {
		if errors.Is(err, m.kind) {
			writeError(w, m.status, strings.TrimPrefix(err.Error(), m.kind.Error()+": "))
			return
		}
	}
	util.LoggerFromContext(r.Context()).Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
