package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PhilHem/go-pattern-auth/backend/auth"
	"github.com/PhilHem/go-pattern-auth/backend/config"
	"github.com/PhilHem/go-pattern-auth/backend/database"
	"github.com/PhilHem/go-pattern-auth/backend/handlers"
	"github.com/PhilHem/go-pattern-auth/backend/identity"
	"github.com/PhilHem/go-pattern-auth/backend/logger"
	"github.com/PhilHem/go-pattern-auth/backend/middleware"
	"github.com/PhilHem/go-pattern-auth/backend/notify"

	ghandlers "github.com/gorilla/handlers"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const usage = `usage: pattern-auth [command]

commands:
  serve   run the HTTP API (default)
  seed    create the demo users
  notify  email a setup link to every user without a pattern`

type app struct {
	db        *gorm.DB
	store     *database.Store
	svc       *auth.Service
	reminders *notify.Reminders
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := config.Load(); err != nil {
		log.Fatal("Failed to load config:", err)
	}
	if err := config.C.Validate(); err != nil {
		log.Fatal("Invalid config:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup()
	if err != nil {
		log.Fatal("Failed to start:", err)
	}

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "seed":
		err = seed(ctx, a.svc)
	case "notify":
		var res notify.Result
		res, err = a.reminders.Run(ctx)
		if err == nil {
			fmt.Printf("Reminders sent: %d of %d (%d failed)\n", res.SuccessCount, res.TotalUsers, res.FailureCount)
		}
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func setup() (*app, error) {
	db, err := database.Open(config.C.DatabaseURL, config.C.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Everything constructed below picks up the DB-backed default logger.
	slog.SetDefault(slog.New(logger.NewDBHandler(db)))

	provider, local := identity.New(config.C.Identity)
	store := database.NewStore(db)
	svc := auth.NewService(
		store,
		auth.Hasher{Cost: config.C.Auth.BcryptCost},
		auth.NewTokens(config.C.Auth.JWTSecret, config.C.Auth.TokenTTL, config.C.Auth.SetupTokenTTL),
		auth.NewLockout(store, config.C.Auth.MaxFailedAttempts, config.C.Auth.LockoutWindow),
		identity.NewFacade(provider, local),
	)
	reminders := notify.NewReminders(store, svc, notify.NewSender(config.C.Mail),
		config.C.PublicURL, config.C.Mail.From, config.C.Mail.FromName)

	slog.Info("identity provider selected", "source", "main", "provider", provider.Name(), "local_fallback", local)
	return &app{db: db, store: store, svc: svc, reminders: reminders}, nil
}

func newRateLimiter() (*middleware.RateLimiter, error) {
	rl := config.C.RateLimit
	if rl.RedisURL == "" {
		return middleware.NewRateLimiter(rl.Requests, rl.Window), nil
	}
	opts, err := redis.ParseURL(rl.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	counter := middleware.NewRedisCounter(redis.NewClient(opts))
	return middleware.NewRateLimiterWithCounter(counter, rl.Requests, rl.Window), nil
}

// logRequest writes one access log line per request through slog.
func logRequest(_ io.Writer, p ghandlers.LogFormatterParams) {
	slog.Info("request",
		"source", "http",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"size", p.Size,
		"duration_ms", time.Since(p.TimeStamp).Milliseconds(),
	)
}

func (a *app) serve(ctx context.Context) error {
	go logger.CleanupOldLogs(ctx, a.db, config.C.Logs.Retention)

	sessions, err := handlers.NewSessionStore(config.C.Session.Secret, config.C.Session.Timeout, config.C.TLS.Enabled)
	if err != nil {
		return err
	}
	limiter, err := newRateLimiter()
	if err != nil {
		return err
	}

	api := handlers.New(a.svc, sessions, a.reminders, a.db, config.C.Logs.MaxDBSize)
	mux := api.Routes(limiter, config.C.Cron.APIKey)

	var handler http.Handler = middleware.SecurityHeaders(mux)
	handler = ghandlers.CORS(
		ghandlers.AllowedOrigins(config.C.CORS.AllowedOrigins),
		ghandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		ghandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-API-Key"}),
		ghandlers.AllowCredentials(),
	)(handler)
	handler = ghandlers.CustomLoggingHandler(io.Discard, handler, logRequest)
	handler = ghandlers.RecoveryHandler(
		ghandlers.RecoveryLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)),
	)(handler)

	srv := &http.Server{
		Addr:         config.C.Listen,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "source", "main", "listen", config.C.Listen, "public_url", config.C.PublicURL, "tls", config.C.TLS.Enabled)
		fmt.Printf("Server running at %s (public: %s)\n", config.C.Listen, config.C.PublicURL)
		if config.C.TLS.Enabled {
			errc <- srv.ListenAndServeTLS(config.C.TLS.Cert, config.C.TLS.Key)
		} else {
			errc <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "source", "main")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
