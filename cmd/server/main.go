package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/iudanet/keywitness/internal/server/authn"
	"github.com/iudanet/keywitness/internal/server/handlers"
	"github.com/iudanet/keywitness/internal/server/middleware"
	"github.com/iudanet/keywitness/internal/server/nonce"
	"github.com/iudanet/keywitness/internal/server/storage/sqlite"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

const (
	shutdownTimeout      = 10 * time.Second
	nonceCleanupInterval = time.Minute
)

func main() {
	showVersion := pflag.Bool("version", false, "Show version information")
	addr := pflag.String("addr", ":8080", "Address to listen on")
	dbPath := pflag.String("db", "keywitness.db", "Path to SQLite database")
	jwtSecret := pflag.String("jwt-secret", "", "Secret for signing session tokens (or KEYWITNESS_JWT_SECRET)")
	tokenTTL := pflag.Duration("token-ttl", 15*time.Minute, "Session token lifetime")
	logLevel := pflag.String("log-level", "info", "Log level: debug, info, warn, error")

	pflag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	logger := newLogger(*logLevel)

	secret := *jwtSecret
	if secret == "" {
		secret = os.Getenv("KEYWITNESS_JWT_SECRET")
	}
	if secret == "" {
		logger.Error("JWT secret is not set, use --jwt-secret or KEYWITNESS_JWT_SECRET")
		os.Exit(1)
	}

	if err := run(*addr, *dbPath, secret, *tokenTTL, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(addr, dbPath, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	jwtConfig := handlers.JWTConfig{
		Secret:         []byte(jwtSecret),
		AccessTokenTTL: tokenTTL,
	}

	authHandler := handlers.NewAuthHandler(logger, store, store, store, store, jwtConfig)
	devicesHandler := handlers.NewDevicesHandler(logger, store, store)
	healthHandler := handlers.NewHealthHandler(logger, store)

	signed := authn.New(store, store, logger).Middleware
	session := middleware.SessionAuthMiddleware(logger, jwtConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/signup", authHandler.Signup)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/v1/auth/backup/{username}", authHandler.Backup)
	mux.Handle("GET /api/v1/auth/session", session(http.HandlerFunc(authHandler.Session)))
	mux.Handle("GET /api/v1/auth/devices", signed(http.HandlerFunc(devicesHandler.List)))
	mux.Handle("POST /api/v1/auth/devices", signed(http.HandlerFunc(devicesHandler.Add)))
	mux.Handle("DELETE /api/v1/auth/devices/{kid}", signed(http.HandlerFunc(devicesHandler.Revoke)))
	mux.Handle("PATCH /api/v1/auth/devices/{kid}", signed(http.HandlerFunc(devicesHandler.Rename)))
	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	// Регистрация и вход дороже обычных запросов (Argon2, создание аккаунта),
	// поэтому лимиты для них жестче
	rateLimits := []middleware.PathRateLimit{
		{Path: "/api/v1/auth/signup", Rate: 10, Window: 5 * time.Minute},
		{Path: "/api/v1/auth/login", Rate: 20, Window: 5 * time.Minute},
	}

	var handler http.Handler = mux
	handler = middleware.RateLimitByPathMiddleware(rateLimits, 100, time.Minute, logger)(handler)
	handler = middleware.LoggingWithSkip(logger, []string{"/api/v1/health"})(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	cleaner := nonce.NewCleaner(store, nonceCleanupInterval, logger)
	cleaner.Start(ctx)
	defer cleaner.Stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "version", Version)
		errC <- server.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	if err := <-errC; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func printVersion() {
	fmt.Printf("Keywitness Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
