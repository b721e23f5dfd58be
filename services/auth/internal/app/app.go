package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"inspirestack/internal/util"
	"inspirestack/pkg/auth"
	"inspirestack/pkg/domain"
	"inspirestack/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL         string
	RedisAddr           string
	RedisPassword       string
	SessionTTL          time.Duration
	JWTPrivateKeyPath   string
	JWTPublicKeyPath    string
	JWTKeyID            string
	JWTVerifyPublicKeys map[string]string
	JWTIssuer           string
	JWTAudience         string
	JWTLeeway           time.Duration
	Store               store.UserStore
	Sessions            store.SessionStore
	Now                 func() time.Time
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	store    store.UserStore
	sessions store.SessionStore
	now      func() time.Time
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 7 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		if strings.TrimSpace(cfg.JWTPrivateKeyPath) == "" {
			return nil, fmt.Errorf("jwtPrivateKeyPath is required")
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for jwt+redis session strategy")
		}
		revoker := store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword).WithUserCutoffTTL(cfg.SessionTTL)
		rsStore, err := store.NewJWTRS256SessionStoreFromPEMWithOptions(
			cfg.JWTPrivateKeyPath,
			cfg.JWTPublicKeyPath,
			cfg.JWTKeyID,
			cfg.JWTVerifyPublicKeys,
			cfg.SessionTTL,
			revoker,
			store.JWTOptions{
				Issuer:   cfg.JWTIssuer,
				Audience: cfg.JWTAudience,
				Leeway:   cfg.JWTLeeway,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("init rs256 jwt session store: %w", err)
		}
		sessionStore = rsStore
	}

	return &App{
		store:    dataStore,
		sessions: sessionStore,
		now:      cfg.Now,
	}, nil
}

// SignupRequest is the body of a signup call.
type SignupRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50,username"`
	FirstName string `json:"firstName" validate:"omitempty,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required"`
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

func validateSignup(req SignupRequest) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "username" && fe.Tag() != "required":
		return fmt.Errorf("%w: username must be 3-50 characters, letters, numbers, underscores only", domain.ErrInvalidArgument)
	case fe.Tag() == "required":
		return fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, fe.Field())
	case fe.Tag() == "email":
		return fmt.Errorf("%w: email must be a valid email address", domain.ErrInvalidArgument)
	}
	return fmt.Errorf("%w: invalid %s", domain.ErrInvalidArgument, fe.Field())
}

// SignUp registers a local account and issues its first session token.
func (a *App) SignUp(ctx context.Context, req SignupRequest) (domain.User, string, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateSignup(req); err != nil {
		return domain.User{}, "", err
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return domain.User{}, "", fmt.Errorf("%w: %s", domain.ErrInvalidArgument, err.Error())
	}
	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	firstName := req.FirstName
	if firstName == "" {
		firstName = req.Username
	}
	user, err := a.store.CreateUser(ctx, domain.User{
		Username:     req.Username,
		FirstName:    firstName,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Kind:         domain.AccountLocal,
		Theme:        domain.ThemeLight,
	})
	if errors.Is(err, domain.ErrConflict) {
		return domain.User{}, "", ErrUserAlreadyExists
	}
	if err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	util.LoggerFromContext(ctx).Info("user signed up", "user_id", user.ID)
	return a.issueSession(user)
}

// Login validates credentials and issues a session token.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !user.HasPassword() {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	return a.issueSession(user)
}

func (a *App) issueSession(user domain.User) (domain.User, string, error) {
	token, err := a.sessions.NewSession(user)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue access token: %w", err)
	}
	return user, token, nil
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(ctx context.Context, token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(ctx, uid)
	if err != nil || !found {
		return domain.User{}, false
	}
	return user, true
}

// EmailAvailable reports whether no account is registered under email.
func (a *App) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, ErrEmailRequired
	}
	_, found, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return false, fmt.Errorf("fetch user: %w", err)
	}
	return !found, nil
}

// Logout revokes one session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// LogoutAll revokes every session of userID issued up to now.
func (a *App) LogoutAll(userID int64) error {
	revoker, ok := a.sessions.(store.UserSessionRevoker)
	if !ok {
		return fmt.Errorf("session store does not support user token revocation")
	}
	return revoker.RevokeUserSessions(userID, a.now())
}

// UpdateTheme stores the display preference of userID.
func (a *App) UpdateTheme(ctx context.Context, userID int64, raw string) (domain.User, error) {
	theme, ok := domain.ParseTheme(strings.ToLower(strings.TrimSpace(raw)))
	if !ok {
		return domain.User{}, ErrInvalidTheme
	}
	user, found, err := a.store.UpdateUserTheme(ctx, userID, theme)
	if err != nil {
		return domain.User{}, fmt.Errorf("update theme: %w", err)
	}
	if !found {
		return domain.User{}, ErrUserNotFound
	}
	return user, nil
}

// JWKS returns public signing keys when session store supports it.
func (a *App) JWKS() []store.JWK {
	provider, ok := a.sessions.(store.JWKSProvider)
	if !ok {
		return nil
	}
	return provider.JWKS()
}
