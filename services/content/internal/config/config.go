package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with CONFIG_PATH.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                      string   `yaml:"port"`
	LogLevel                  string   `yaml:"logLevel"`
	DatabaseURL               string   `yaml:"databaseURL"`
	DBMaxOpenConns            int      `yaml:"dbMaxOpenConns"`
	DBAcquireTimeout          string   `yaml:"dbAcquireTimeout"`
	RequestTimeout            string   `yaml:"requestTimeout"`
	RedisAddr                 string   `yaml:"redisAddr"`
	RedisPassword             string   `yaml:"redisPassword"`
	JWKSURL                   string   `yaml:"jwksURL"`
	JWTIssuer                 string   `yaml:"jwtIssuer"`
	JWTAudience               string   `yaml:"jwtAudience"`
	JWTLeeway                 string   `yaml:"jwtLeeway"`
	WriteRateLimitPerMinute   int      `yaml:"writeRateLimitPerMinute"`
	PreviewRateLimitPerMinute int      `yaml:"previewRateLimitPerMinute"`
	PreviewTimeout            string   `yaml:"previewTimeout"`
	InternalPublicKeyPath     string   `yaml:"internalPublicKeyPath"`
	InternalAllowedIssuers    []string `yaml:"internalAllowedIssuers"`
	CORSAllowedOrigins        []string `yaml:"corsAllowedOrigins"`
	TrustedProxies            []string `yaml:"trustedProxies"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("CONTENT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("CONTENT_DB_MAX_OPEN_CONNS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.DBMaxOpenConns = n
		}
	}
	if v := os.Getenv("CONTENT_DB_ACQUIRE_TIMEOUT"); v != "" {
		cfg.DBAcquireTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONTENT_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CONTENT_JWKS_URL"); v != "" {
		cfg.JWKSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("CONTENT_WRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WriteRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONTENT_PREVIEW_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PreviewRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("CONTENT_PREVIEW_TIMEOUT"); v != "" {
		cfg.PreviewTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONTENT_INTERNAL_PUBLIC_KEY_PATH"); v != "" {
		cfg.InternalPublicKeyPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("CONTENT_INTERNAL_ALLOWED_ISSUERS"); v != "" {
		cfg.InternalAllowedIssuers = splitCSV(v)
	}
	if v := os.Getenv("CONTENT_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("CONTENT_TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return errors.New("config: jwksURL is required (set in config.yaml or CONTENT_JWKS_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.DBMaxOpenConns < 0 {
		return errors.New("config: dbMaxOpenConns must be >= 0")
	}
	if cfg.WriteRateLimitPerMinute < 0 || cfg.PreviewRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if strings.TrimSpace(cfg.InternalPublicKeyPath) != "" && len(cfg.InternalAllowedIssuers) == 0 {
		return errors.New("config: internalAllowedIssuers is required when internalPublicKeyPath is set")
	}
	for name, raw := range map[string]string{
		"dbAcquireTimeout": cfg.DBAcquireTimeout,
		"requestTimeout":   cfg.RequestTimeout,
		"previewTimeout":   cfg.PreviewTimeout,
		"jwtLeeway":        cfg.JWTLeeway,
	} {
		if _, err := ParseDuration(name, raw, 0); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration string, returning fallback when
// it is empty.
func ParseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}
