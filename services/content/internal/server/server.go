package server

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"inspirestack/internal/ratelimit"
	"inspirestack/internal/servicetoken"
	"inspirestack/internal/usertoken"
	"inspirestack/internal/util"
	"inspirestack/services/content/internal/app"
)

// TokenVerifier validates user bearer tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (usertoken.Identity, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                       *app.App
	TokenVerifier             TokenVerifier
	InternalVerifier          *servicetoken.Verifier
	RedisAddr                 string
	RedisPassword             string
	WriteRateLimitPerMinute   int
	PreviewRateLimitPerMinute int
	RequestTimeout            time.Duration
	CORSAllowedOrigins        []string
	TrustedProxies            *util.TrustedProxies
}

// Server exposes the content HTTP API.
type Server struct {
	app              *app.App
	tokenVerifier    TokenVerifier
	internalVerifier *servicetoken.Verifier
	mux              *http.ServeMux
	cors             *util.CORSPolicy
	trustedProxies   *util.TrustedProxies
	requestTimeout   time.Duration
	writeLimiter     *ratelimit.FixedWindowLimiter
	previewLimiter   *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("content server requires app")
	}
	if cfg.TokenVerifier == nil {
		return nil, fmt.Errorf("content server requires token verifier")
	}
	writeLimit := cfg.WriteRateLimitPerMinute
	if writeLimit <= 0 {
		writeLimit = 60
	}
	previewLimit := cfg.PreviewRateLimitPerMinute
	if previewLimit <= 0 {
		previewLimit = 20
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := ratelimit.DefaultPrefix + ":content:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	writeLimiter, err := newLimiter("write", writeLimit)
	if err != nil {
		return nil, err
	}
	previewLimiter, err := newLimiter("preview", previewLimit)
	if err != nil {
		_ = writeLimiter.Close()
		return nil, err
	}

	s := &Server{
		app:              cfg.App,
		tokenVerifier:    cfg.TokenVerifier,
		internalVerifier: cfg.InternalVerifier,
		mux:              http.NewServeMux(),
		cors:             util.NewCORSPolicy(cfg.CORSAllowedOrigins),
		trustedProxies:   cfg.TrustedProxies,
		requestTimeout:   cfg.RequestTimeout,
		writeLimiter:     writeLimiter,
		previewLimiter:   previewLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithRequestTimeout(s.requestTimeout, h)
	h = util.WithRequestLog("content", h)
	h = util.WithSecurityHeaders(s.cors.Wrap(h))
	return util.WithRequestID(h)
}

// Close releases the limiter connections.
func (s *Server) Close() error {
	_ = s.previewLimiter.Close()
	return s.writeLimiter.Close()
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleNotFound)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	// feed
	s.mux.HandleFunc("GET /{$}", s.handleFeed)
	s.mux.HandleFunc("GET /content", s.handleFeed)
	s.mux.HandleFunc("GET /content-type", s.handleFilteredFeed)
	s.mux.HandleFunc("GET /content-type/{type}/{id}", s.handleItem)
	s.mux.HandleFunc("GET /content-type/{type}/{id}/comments", s.handleItemComments)
	s.mux.HandleFunc("GET /content-type/{type}/{id}/tags", s.handleItemTags)
	s.mux.HandleFunc("GET /content-types", s.handleContentTypes)
	s.mux.HandleFunc("GET /categories", s.handleCategories)
	s.mux.Handle("GET /og-preview", s.limited(s.previewLimiter, "too many preview requests", http.HandlerFunc(s.handlePreview)))

	// writes (auth required)
	s.mux.Handle("PUT /content-type/{id}/vote", s.authenticated(s.handleVote))
	s.mux.Handle("POST /posts/addContent", s.authenticated(s.handleCreateContent))
	s.mux.Handle("PUT /posts/{id}/updateContent", s.authenticated(s.handleUpdateContent))
	s.mux.Handle("DELETE /posts/{id}/deleteContent", s.authenticated(s.handleDeleteContent))
	s.mux.Handle("POST /posts/{id}/comments", s.authenticated(s.handleAddComment))
	s.mux.Handle("DELETE /posts/deleteComment/{id}/comments/{commentId}", s.authenticated(s.handleDeleteComment))

	// internal
	if s.internalVerifier != nil {
		s.mux.Handle("POST /internal/categories/refresh", s.internalVerifier.Require(http.HandlerFunc(s.handleRefreshCategories)))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, usertoken.Identity)

// authenticated verifies the bearer token and applies the write quota of
// the caller's address.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			s.audit(r, "content.authorize", "fail", "reason", "missing_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		identity, err := s.tokenVerifier.Verify(r.Context(), token)
		if err != nil {
			s.audit(r, "content.authorize", "fail", "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.allowRate(w, r, s.writeLimiter, "too many requests") {
			s.audit(r, "content.write", "rate_limited", "user_id", identity.UserID)
			return
		}
		logger := util.LoggerFromContext(r.Context()).With("user_id", identity.UserID)
		next(w, r.WithContext(util.ContextWithLogger(r.Context(), logger)), identity)
	})
}

func (s *Server) limited(limiter *ratelimit.FixedWindowLimiter, msg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.allowRate(w, r, limiter, msg) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.Pattern + "|" + s.clientIP(r)
	decision := limiter.Check(r.Context(), key)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	if decision.Allowed {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
	writeError(w, http.StatusTooManyRequests, msg)
	return false
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
