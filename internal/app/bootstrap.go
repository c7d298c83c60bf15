package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/auth"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/category"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/db"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/maintenance"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/observability"
	"github.com/Gon-jpg/TaskManagerFullstack/internal/task"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

// Build is the composition root: every service is wired here by explicit
// constructor injection, nothing resolves its own dependencies.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	tokenIssuer := auth.NewTokenIssuer(jwtSecret, envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15))
	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, tokenIssuer)
	authService.WithSecurityConfig(
		envIntOrDefault("BCRYPT_COST", 10),
		envIntOrDefault("LOGIN_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
	)
	authHandler := auth.NewHandler(authService)

	taskHandler := task.NewHandler(task.NewRepository(database))
	categoryHandler := category.NewHandler(category.NewRepository(database))

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("AUTH_TOMBSTONE_RETENTION_DAYS", 14),
		envDaysOrDefault("AUTH_LOGIN_ATTEMPT_RETENTION_DAYS", 30),
		envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
	)

	credentialLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(tokenIssuer, h)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", credentialLimiter.Middleware(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/login", credentialLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.Handle("GET /auth/me", protected(authHandler.Me))
	mux.HandleFunc("POST /auth/refreshtoken", authHandler.Refresh)
	mux.Handle("GET /auth/validate-token", protected(authHandler.ValidateToken))
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)

	mux.Handle("POST /tasks", protected(taskHandler.Create))
	mux.Handle("GET /tasks", protected(taskHandler.List))
	mux.Handle("GET /tasks/{id}", protected(taskHandler.Get))
	mux.Handle("PUT /tasks/{id}", protected(taskHandler.Update))
	mux.Handle("PATCH /tasks/{id}/complete", protected(taskHandler.ToggleComplete))
	mux.Handle("DELETE /tasks/{id}", protected(taskHandler.Delete))

	mux.Handle("GET /categories", protected(categoryHandler.List))
	mux.Handle("POST /categories", protected(categoryHandler.Create))
	mux.Handle("GET /categories/{id}", protected(categoryHandler.Get))
	mux.Handle("PUT /categories/{id}", protected(categoryHandler.Update))
	mux.Handle("DELETE /categories/{id}", protected(categoryHandler.Delete))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

// EnvBoolOrDefault is used by the serverless entrypoint.
func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
