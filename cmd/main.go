package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"xfercache/internal/config"
	"xfercache/internal/domain"
	"xfercache/internal/handler"
	"xfercache/internal/notify"
	"xfercache/internal/queue"
	"xfercache/internal/repository"
	"xfercache/internal/service"
)

func connectWithRetry(dsn string, maxAttempts int, delay time.Duration, logger zerolog.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		logger.Warn().Err(err).Int("attempt", i+1).Int("max", maxAttempts).Msg("failed to connect to database")
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// app собирает все зависимости процесса. Никаких глобальных синглтонов:
// каталог и конфигурация передаются в каждый компонент явно.
type app struct {
	cfg    *config.Config
	db     *sqlx.DB
	logger zerolog.Logger

	users     *repository.UserRepository
	files     *repository.CachedFileRepository
	volumes   *repository.VolumeRepository
	locks     *repository.LockRepository
	deletions *repository.DeletionRepository

	lockManager *service.LockManager
	scanner     *service.Scanner
	quota       *service.QuotaCalculator
	scheduler   *service.Scheduler
	deleter     *service.Deleter
	predictor   *service.Predictor
	allocator   *service.Allocator
	pipeline    *service.Pipeline
	notifier    service.Notifier
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.NewConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.Daemon.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Daemon.LogLevel, err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	db, err := connectWithRetry(cfg.Database.GetDSN(), 5, 5*time.Second, logger)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(cfg); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}

	// Репозитории
	a.users = repository.NewUserRepository(db)
	a.files = repository.NewCachedFileRepository(db)
	a.volumes = repository.NewVolumeRepository(db)
	a.locks = repository.NewLockRepository(db)
	a.deletions = repository.NewDeletionRepository(db)

	// Сервисы
	a.notifier = notify.NewMailer(cfg.Mail)
	a.lockManager = service.NewLockManager(a.locks)
	a.scanner = service.NewScanner(a.files, a.volumes, logger)
	a.quota = service.NewQuotaCalculator(a.files, a.users, a.volumes, logger)
	a.scheduler = service.NewScheduler(a.files, a.deletions, a.volumes, a.notifier,
		cfg.Cache.GracePeriod(), cfg.Cache.MaxPersistenceDays, logger)
	a.deleter = service.NewDeleter(a.files, a.deletions, a.volumes, a.quota, a.notifier, logger)
	a.predictor = service.NewPredictor(a.files, a.volumes, cfg.Cache.GracePeriod())
	a.allocator = service.NewAllocator(a.users, a.volumes,
		cfg.Cache.DefaultQuotaSize, cfg.Cache.DefaultHardLimit, logger)
	a.pipeline = service.NewPipeline(a.users, a.lockManager, logger)

	return a, nil
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Error().Err(err).Msg("error closing database connection")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func (a *app) serve(ctx context.Context) error {
	userHandler := handler.NewUserHandler(a.users, a.volumes, a.locks, a.allocator)
	fileHandler := handler.NewFileHandler(a.users, a.files, a.volumes)
	deletionHandler := handler.NewDeletionHandler(a.users, a.volumes, a.deletions, a.predictor)

	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/users", userHandler.ListUsers)
		r.Post("/users", userHandler.CreateUser)
		r.Get("/users/{name}", userHandler.GetUser)
		r.Delete("/users/{name}/lock", userHandler.UnlockUser)

		r.Get("/files", fileHandler.ListFiles)
		r.Get("/deletions", deletionHandler.ListDeletions)
		r.Get("/predict", deletionHandler.Predict)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("port", a.cfg.Server.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:           "xfercache",
		Short:         "Transfer cache manager: quota tracking, scheduled eviction and prediction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "xfercache.yaml", "path to config file")

	withApp := func(run func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfgPath)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, cancel := signalContext()
			defer cancel()

			return run(ctx, a)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP query/administration API",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.serve(ctx)
			}),
		},
		&cobra.Command{
			Use:   "scan",
			Short: "Reconcile cached file records against the filesystem",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.pipeline.Run(ctx, "scan", a.cfg.Daemon, func(ctx context.Context, user *domain.User) error {
					if err := a.scanner.Scan(ctx, user); err != nil {
						return err
					}
					return a.quota.RecomputeAndPropagate(ctx, user)
				})
			}),
		},
		&cobra.Command{
			Use:   "schedule",
			Short: "Schedule deletions for users over their budgets",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.pipeline.Run(ctx, "schedule", a.cfg.Daemon, a.scheduler.Schedule)
			}),
		},
		&cobra.Command{
			Use:   "delete",
			Short: "Execute scheduled deletions past their grace deadline",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.pipeline.Run(ctx, "delete", a.cfg.Daemon, a.deleter.Delete)
			}),
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Publish scan requests for the least recently scanned users",
			RunE: withApp(func(ctx context.Context, a *app) error {
				sweeper := queue.NewSweeper(a.users, a.volumes, a.cfg.Queue.URL,
					time.Duration(a.cfg.Cache.SweepIntervalSecond)*time.Second, a.logger)
				return sweeper.Run(ctx)
			}),
		},
		&cobra.Command{
			Use:   "consume",
			Short: "Consume scan results from the work queue",
			RunE: withApp(func(ctx context.Context, a *app) error {
				consumer := queue.NewConsumer(a.users, a.volumes, a.notifier, a.cfg.Queue.URL, a.logger)
				return consumer.Run(ctx)
			}),
		},
		&cobra.Command{
			Use:   "fix-quotas",
			Short: "Recompute all user usages and volume aggregates from scratch",
			RunE: withApp(func(ctx context.Context, a *app) error {
				return a.quota.RepairAll(ctx)
			}),
		},
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
