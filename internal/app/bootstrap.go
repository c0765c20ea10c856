// Package app assembles the whole backend: configuration from the
// environment, database, migrations, services, and the HTTP route table.
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
	"github.com/sirupsen/logrus"

	"github.com/lekimminhquan/Online-Vina-BE/internal/auth"
	"github.com/lekimminhquan/Online-Vina-BE/internal/category"
	"github.com/lekimminhquan/Online-Vina-BE/internal/db"
	"github.com/lekimminhquan/Online-Vina-BE/internal/emails"
	"github.com/lekimminhquan/Online-Vina-BE/internal/landing"
	"github.com/lekimminhquan/Online-Vina-BE/internal/media"
	"github.com/lekimminhquan/Online-Vina-BE/internal/observability"
	"github.com/lekimminhquan/Online-Vina-BE/internal/order"
	"github.com/lekimminhquan/Online-Vina-BE/internal/product"
	"github.com/lekimminhquan/Online-Vina-BE/internal/taxcode"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Logger  *logrus.Logger
	Close   func() error
}

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

	if err := observability.InitSentry(
		os.Getenv("SENTRY_DSN"),
		envOrDefault("APP_ENV", "development"),
		os.Getenv("APP_VERSION"),
	); err != nil {
		logger.WithError(err).Error("init_sentry_failed")
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
		if err := db.RunMigrations(context.Background(), database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	mailer, err := buildMailer(logger)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	repo := auth.NewRepository(database)
	hasher := auth.NewPasswordHasher(envIntOrDefault("BCRYPT_COST", 0))
	issuer := auth.NewTokenIssuer(jwtSecret).WithTTLs(
		envHoursOrDefault("ACCESS_TOKEN_TTL_HOURS", 12),
		envHoursOrDefault("RESET_TOKEN_TTL_HOURS", 12),
	)
	authService := auth.NewService(repo, repo, hasher, issuer, mailer).
		WithRefreshTTL(envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 30)).
		WithFrontendURL(os.Getenv("BASE_FE_URL"))
	authHandler := auth.NewHandler(authService)

	productRepo := product.NewRepository(database)
	productHandler := product.NewHandler(productRepo)
	categoryRepo := category.NewRepository(database)
	categoryHandler := category.NewHandler(categoryRepo)
	orderRepo := order.NewRepository(database)
	orderHandler := order.NewHandler(orderRepo)
	landingRepo := landing.NewRepository(database)
	landingHandler := landing.NewHandler(landingRepo)
	taxcodeHandler := taxcode.NewHandler(taxcode.NewClient(os.Getenv("TAXCODE_API_URL")))

	var mediaHandler *media.UploadHandler
	if cloudinaryURL := strings.TrimSpace(os.Getenv("CLOUDINARY_URL")); cloudinaryURL != "" {
		cloudinaryClient, err := media.NewCloudinary(cloudinaryURL, os.Getenv("CLOUDINARY_FOLDER"))
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		mediaHandler = media.NewUploadHandler(cloudinaryClient)
	}

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	guard := func(next http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, next)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /users/register", authHandler.Register)
	mux.Handle("POST /users/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /users/refresh-token", authHandler.Refresh)
	mux.HandleFunc("POST /users/logout", authHandler.Logout)
	mux.Handle("POST /users/request-forgot-password", loginLimiter.Middleware(http.HandlerFunc(authHandler.RequestForgotPassword)))
	mux.HandleFunc("POST /users/reset-password", authHandler.ResetPassword)
	mux.Handle("POST /users/send-welcome", guard(authHandler.SendWelcome))

	mux.Handle("GET /users/me", guard(authHandler.Me))
	mux.Handle("GET /users", guard(authHandler.ListUsers))
	mux.Handle("GET /users/stats", guard(authHandler.UserStats))
	mux.Handle("GET /users/{id}", guard(authHandler.GetUser))
	mux.Handle("POST /users", guard(authHandler.CreateUser))
	mux.Handle("PUT /users/{id}", guard(authHandler.UpdateUser))
	mux.Handle("PATCH /users/{id}/disable", guard(authHandler.DisableUser))
	mux.Handle("DELETE /users/{id}", guard(authHandler.DeleteUser))

	mux.HandleFunc("GET /products", productHandler.List)
	mux.HandleFunc("GET /products/{id}", productHandler.Get)
	mux.Handle("POST /products", guard(productHandler.Create))
	mux.Handle("PUT /products/{id}", guard(productHandler.Update))
	mux.Handle("PUT /products/{id}/variants", guard(productHandler.UpdateVariants))
	mux.Handle("DELETE /products/{id}", guard(productHandler.Delete))

	mux.HandleFunc("GET /categories", categoryHandler.List)
	mux.HandleFunc("GET /categories/{id}", categoryHandler.Get)
	mux.Handle("POST /categories", guard(categoryHandler.Create))
	mux.Handle("PUT /categories/{id}", guard(categoryHandler.Update))
	mux.Handle("DELETE /categories/{id}", guard(categoryHandler.Delete))

	mux.Handle("POST /orders", guard(orderHandler.Create))
	mux.Handle("GET /orders", guard(orderHandler.List))
	mux.Handle("GET /orders/{id}", guard(orderHandler.Get))
	mux.Handle("PATCH /orders/{id}/status", guard(orderHandler.UpdateStatus))

	mux.HandleFunc("GET /tax-code/info", taxcodeHandler.Info)

	mux.HandleFunc("GET /landingpage", landingHandler.GetAll)
	mux.HandleFunc("GET /landingpage/{page}", landingHandler.GetPage)
	mux.Handle("PUT /landingpage/{page}", guard(landingHandler.Upsert))

	if mediaHandler != nil {
		mux.Handle("POST /media/upload", guard(mediaHandler.Upload))
	}

	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func buildMailer(logger *logrus.Logger) (auth.Mailer, error) {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		logger.Warn("smtp_unconfigured_using_log_mailer")
		return emails.NewLogMailer(logger), nil
	}

	mailer, err := emails.NewMailer(emails.Config{
		Host:     host,
		Port:     envIntOrDefault("SMTP_PORT", 587),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("MAIL_FROM"),
	})
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	return mailer, nil
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
