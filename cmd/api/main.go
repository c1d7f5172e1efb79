package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5"

	"github.com/mstrand/foyer/internal/auth"
	"github.com/mstrand/foyer/internal/config"
	"github.com/mstrand/foyer/internal/database"
	"github.com/mstrand/foyer/internal/events"
	"github.com/mstrand/foyer/internal/handlers"
	"github.com/mstrand/foyer/internal/jobs"
	middlewareCustom "github.com/mstrand/foyer/internal/middleware"
	"github.com/mstrand/foyer/internal/models"
	"github.com/mstrand/foyer/internal/repositories"
	"github.com/mstrand/foyer/internal/routes"
	"github.com/mstrand/foyer/internal/services"
	"github.com/mstrand/foyer/internal/storage"
	pkglogger "github.com/mstrand/foyer/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Repository with the allow-list elevation hook attached: every
	// persisted mutation re-checks the superuser invariant.
	repo := repositories.NewAccountRepository(db,
		repositories.SuperuserElevationHook(cfg.Auth.Superusers, cfg.Auth.SuperuserDefaultPassword, logger))

	txStore := func(tx pgx.Tx) services.AccountStore {
		if tx == nil {
			return repo
		}
		return repo.WithTx(tx)
	}

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Error("failed to initialize blob store", slog.Any("error", err))
		os.Exit(1)
	}

	sender, err := services.NewSESSender(context.Background(), cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize SES sender", slog.Any("error", err))
		os.Exit(1)
	}

	mailer := services.NewMailer(repo, sender, cfg.Email.Domain, logger)
	avatarService := services.NewAvatarService(repo, blobs, cfg.Avatar.FetchTimeout, logger)

	workers, err := jobs.NewWorkers(mailer, avatarService, logger)
	if err != nil {
		logger.Error("failed to register workers", slog.Any("error", err))
		os.Exit(1)
	}

	riverClient, err := jobs.NewClient(db.Pool, workers, cfg.Jobs.MaxWorkers, logger)
	if err != nil {
		logger.Error("failed to initialize job client", slog.Any("error", err))
		os.Exit(1)
	}

	// Events raised inside account transactions become transactional job
	// inserts; the jobs never outrun (or survive the rollback of) the
	// mutations that caused them.
	notifier := events.NewNotifier()
	jobs.RegisterReceivers(notifier, riverClient)

	accountService := services.NewAccountService(db, txStore, notifier, logger, cfg.Auth.EmailConfirmation)

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionExpiry)
	cookieCfg := auth.CookieConfig{
		Secure:   cfg.Server.Env == "production",
		SameSite: "lax",
	}

	authHandler := handlers.NewAuthHandler(accountService, avatarService, tokenManager, cookieCfg)
	accountHandler := handlers.NewAccountHandler(accountService, avatarService, tokenManager, cookieCfg)

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureSuperusers(bootCtx, repo, cfg, logger); err != nil {
		logger.Error("failed to bootstrap superusers", slog.Any("error", err))
	}
	bootCancel()

	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, accountHandler, tokenManager)

	// Local avatar files are served directly when the filesystem backend is
	// active with a same-host base URL; S3 and CDN setups serve their own.
	if cfg.Avatar.Backend == "fs" && strings.HasPrefix(cfg.Avatar.MediaBaseURL, "/") {
		prefix := strings.TrimRight(cfg.Avatar.MediaBaseURL, "/")
		router.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(cfg.Avatar.MediaDir))))
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := riverClient.Start(context.Background()); err != nil {
		logger.Error("failed to start job client", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
	}

	// Running jobs get the rest of the shutdown window to finish.
	if err := riverClient.Stop(shutdownCtx); err != nil {
		logger.Error("job client shutdown error", slog.Any("error", err))
	}

	logger.Info("server stopped gracefully")
}

func newBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	switch cfg.Avatar.Backend {
	case "s3":
		return storage.NewS3Store(context.Background(), cfg.Email.AWSRegion, cfg.Avatar.S3Bucket)
	case "fs":
		return storage.NewFSStore(cfg.Avatar.MediaDir, cfg.Avatar.MediaBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown avatar backend %q", cfg.Avatar.Backend)
	}
}

// ensureSuperusers creates a row for each allow-listed address that has no
// account yet. The elevation hook grants the privileges and the default
// credential on the way in.
func ensureSuperusers(ctx context.Context, repo *repositories.AccountRepository, cfg *config.Config, logger *slog.Logger) error {
	for _, email := range cfg.Auth.Superusers {
		if email == "" {
			continue
		}

		_, err := repo.GetByEmail(ctx, email)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check superuser %s: %w", pkglogger.SanitizedEmail(email), err)
		}

		_, err = repo.Create(ctx, &models.Account{
			Email:          email,
			FirstName:      "Admin",
			IsActive:       true,
			EmailConfirmed: true,
		})
		if err != nil {
			return fmt.Errorf("failed to create superuser %s: %w", pkglogger.SanitizedEmail(email), err)
		}
		logger.Info("superuser account created", slog.String("email", pkglogger.SanitizedEmail(email)))
	}
	return nil
}
