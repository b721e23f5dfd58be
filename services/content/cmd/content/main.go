package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"inspirestack/internal/servicetoken"
	"inspirestack/internal/usertoken"
	"inspirestack/internal/util"
	"inspirestack/services/content/internal/app"
	"inspirestack/services/content/internal/config"
	"inspirestack/services/content/internal/server"
)

// internalAudience is the audience service tokens must carry to reach the
// internal routes of this service.
const internalAudience = "content"

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	requestTimeout, err := config.ParseDuration("requestTimeout", cfg.RequestTimeout, 10*time.Second)
	if err != nil {
		log.Fatalf("failed to parse request timeout: %v", err)
	}
	storeTimeout, err := config.ParseDuration("dbAcquireTimeout", cfg.DBAcquireTimeout, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to parse db acquire timeout: %v", err)
	}
	previewTimeout, err := config.ParseDuration("previewTimeout", cfg.PreviewTimeout, 8*time.Second)
	if err != nil {
		log.Fatalf("failed to parse preview timeout: %v", err)
	}
	jwtLeeway, err := config.ParseDuration("jwtLeeway", cfg.JWTLeeway, 0)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		DBMaxOpenConns: cfg.DBMaxOpenConns,
		StoreTimeout:   storeTimeout,
		PreviewTimeout: previewTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.JWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	var internalVerifier *servicetoken.Verifier
	if cfg.InternalPublicKeyPath != "" {
		internalVerifier, err = servicetoken.NewVerifierWithOptions(servicetoken.VerifierOptions{
			PublicKeyPath:  cfg.InternalPublicKeyPath,
			Audience:       internalAudience,
			AllowedIssuers: cfg.InternalAllowedIssuers,
		})
		if err != nil {
			log.Fatalf("failed to init internal verifier: %v", err)
		}
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                       appCore,
		TokenVerifier:             tokenVerifier,
		InternalVerifier:          internalVerifier,
		RedisAddr:                 cfg.RedisAddr,
		RedisPassword:             cfg.RedisPassword,
		WriteRateLimitPerMinute:   cfg.WriteRateLimitPerMinute,
		PreviewRateLimitPerMinute: cfg.PreviewRateLimitPerMinute,
		RequestTimeout:            requestTimeout,
		CORSAllowedOrigins:        cfg.CORSAllowedOrigins,
		TrustedProxies:            trusted,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "service", "content")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
