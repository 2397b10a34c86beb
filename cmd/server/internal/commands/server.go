package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"filippo.io/csrf"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/questdeck/questdeck/internal/httpx"
	"github.com/questdeck/questdeck/internal/logger"
	"github.com/questdeck/questdeck/internal/ratelimit"
	"github.com/questdeck/questdeck/internal/security"
	"github.com/questdeck/questdeck/internal/server"
	"github.com/questdeck/questdeck/internal/session"
	"github.com/questdeck/questdeck/internal/store"
	"github.com/questdeck/questdeck/internal/upstream"
)

type ServerCmd struct {
	// Server configuration
	Listen      string   `help:"HTTP server listen address" default:"127.0.0.1:3000" env:"QUESTDECK_LISTEN"`
	DataDir     string   `help:"directory for persisted user profiles" default:"data" env:"QUESTDECK_DATA_DIR"`
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"QUESTDECK_CORS_ORIGINS"`

	// Access gate configuration
	AccessCodeHash string `help:"hex SHA-256 of the canonicalized access code" default:"" env:"ACCESS_CODE_HASH"`
	AccessCode     string `help:"plaintext access code (hashed at startup; prefer ACCESS_CODE_HASH)" default:"" env:"ACCESS_CODE"`
	UserID         string `help:"fixed user identity bound on login" default:"" env:"QUESTDECK_USER_ID"`
	SecureCookies  bool   `help:"set the Secure attribute on cookies (enable behind TLS)" default:"false" env:"QUESTDECK_SECURE_COOKIES"`

	// Upstream providers
	GNewsAPIKey     string `help:"GNews API key" default:"" env:"GNEWS_API_KEY"`
	TranslateSource string `help:"source language for translations" default:"ko" env:"QUESTDECK_TRANSLATE_SOURCE"`
	FeedsConfig     string `help:"YAML file listing digest RSS feeds (built-in list when empty)" default:"" env:"QUESTDECK_FEEDS_CONFIG"`

	RateLimit RateLimitFlags `embed:"" prefix:"rate-limit-"`
}

type RateLimitFlags struct {
	Store         string        `help:"rate limit store (memory or redis)" default:"memory" env:"QUESTDECK_RATE_LIMIT_STORE" enum:"memory,redis"`
	RedisAddr     string        `help:"Redis address for the redis store" default:"localhost:6379" env:"QUESTDECK_REDIS_ADDR"`
	SweepInterval time.Duration `help:"eviction period for the memory store" default:"1m" env:"QUESTDECK_RATE_LIMIT_SWEEP"`
}

// Validate fails fast when no access code secret is configured: the gate
// must never start in an open state.
func (c *ServerCmd) Validate() error {
	if c.AccessCodeHash == "" && c.AccessCode == "" {
		return errors.New("an access code is required (--access-code-hash / ACCESS_CODE_HASH, or --access-code / ACCESS_CODE)")
	}
	return nil
}

// Per-endpoint fixed-window budgets. Stock history and info are
// deliberately unlimited, matching the documented gap in the HTTP surface.
const rateWindow = time.Minute

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx := context.Background()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	configuredHash := c.AccessCodeHash
	if configuredHash == "" {
		configuredHash = security.Hash(session.Canonicalize(c.AccessCode))
	}

	gate, err := session.NewGate(configuredHash, c.UserID, c.SecureCookies)
	if err != nil {
		return fmt.Errorf("failed to configure session gate: %w", err)
	}

	// Rate limit store
	var limiter ratelimit.Store
	switch c.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RateLimit.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", c.RateLimit.RedisAddr, err)
		}
		limiter = ratelimit.NewRedisStore(client, nil)
		log.Info().Str("addr", c.RateLimit.RedisAddr).Msg("Using Redis rate limit store")
	default:
		limiter = ratelimit.NewMemoryStore(ratelimit.WithSweepInterval(c.RateLimit.SweepInterval))
		log.Info().Msg("Using in-memory rate limit store")
	}
	if err := limiter.Start(); err != nil {
		return fmt.Errorf("failed to start rate limit store: %w", err)
	}
	defer func() {
		if err := limiter.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop rate limit store")
		}
	}()

	// Profile store
	profiles, err := store.NewFileProfileStore(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}

	// Upstream clients
	if !security.ValidateAPIKey(c.GNewsAPIKey) {
		log.Warn().Msg("GNews API key missing or placeholder; /api/news will report a configuration error")
	}
	cachingClient := upstream.NewCachingHTTPClient(15 * time.Second)
	plainClient := &http.Client{}

	newsClient := upstream.NewNewsClient(c.GNewsAPIKey, cachingClient)
	stockClient := upstream.NewStockClient(cachingClient)
	translateClient := upstream.NewTranslateClient(c.TranslateSource, plainClient, upstream.NewTranslationCache())

	feeds, err := upstream.LoadFeedSources(c.FeedsConfig)
	if err != nil {
		return fmt.Errorf("failed to load feeds config: %w", err)
	}
	digestClient := upstream.NewDigestClient(feeds, plainClient)

	srv := server.New(gate, profiles, newsClient, stockClient, translateClient, digestClient)

	mux := http.NewServeMux()

	limit := func(op string, max int) func(http.Handler) http.Handler {
		return ratelimit.Limit(limiter, op, max, rateWindow)
	}
	authed := gate.RequireSession

	// Requests pass the rate limiter first, then the session check.
	mux.Handle("POST /api/auth", limit("auth", 5)(http.HandlerFunc(srv.HandleAuth)))
	mux.Handle("GET /api/news", limit("news", 30)(authed(http.HandlerFunc(srv.HandleNews))))
	mux.Handle("GET /api/stock-price", limit("stock-price", 30)(authed(http.HandlerFunc(srv.HandleStockPrice))))
	mux.Handle("GET /api/stock-history", authed(http.HandlerFunc(srv.HandleStockHistory)))
	mux.Handle("GET /api/stock-info", authed(http.HandlerFunc(srv.HandleStockInfo)))
	mux.Handle("POST /api/translate", limit("translate", 20)(authed(http.HandlerFunc(srv.HandleTranslate))))
	mux.Handle("GET /api/user-data", limit("user-data-get", 30)(authed(http.HandlerFunc(srv.HandleUserDataGet))))
	mux.Handle("POST /api/user-data", limit("user-data-save", 20)(authed(http.HandlerFunc(srv.HandleUserDataSave))))
	mux.Handle("POST /api/devops-digest", limit("digest", 5)(authed(http.HandlerFunc(srv.HandleDigest))))

	// Minimal landing page; the real UI is served elsewhere. Everything
	// that is not the landing page goes through the navigation guard.
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != session.LandingPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingPage))
	})

	// CSRF protection for HTML pages, CORS for API routes.
	protection := csrf.New()
	pageHandler := protection.Handler(gate.Guard(mux))
	apiHandler := withCORS(c.CORSOrigins, mux)

	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			apiHandler.ServeHTTP(w, r)
			return
		}
		pageHandler.ServeHTTP(w, r)
	})

	handler := logger.Requests(log)(
		httpx.RequestID()(
			httpx.ClientIP()(
				httpx.SecurityHeaders()(
					httpx.Compress(routed)))))

	httpServer := configureHTTPServer(c.Listen, handler)

	shutdownCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-shutdownCtx.Done():
		log.Info().Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	return nil
}

// withCORS adds CORS support for the API routes. Credentials are allowed
// because authentication rides on cookies.
func withCORS(allowedOrigins []string, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

const landingPage = `<!doctype html>
<html>
<head><meta charset="utf-8"><title>questdeck</title></head>
<body>
<h1>questdeck</h1>
<p>Enter the access code to continue.</p>
</body>
</html>
`
