package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"attendance-service/internal/attendance"
	"attendance-service/internal/auth"
	"attendance-service/internal/config"
	"attendance-service/internal/db"
	"attendance-service/internal/health"
	"attendance-service/internal/logger"
	"attendance-service/internal/messaging"
	"attendance-service/internal/middleware"
	"attendance-service/internal/telemetry"
	"attendance-service/internal/user"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/uptrace/bun"
)

var ErrMissingJWTSecret = errors.New("auth.jwt_secret must be set")

// refreshTokenPurgeInterval is how often expired refresh tokens are deleted.
const refreshTokenPurgeInterval = time.Hour

type App struct {
	config      *config.Config
	router      chi.Router
	server      *http.Server
	db          *bun.DB
	producer    messaging.Producer
	telemetry   *telemetry.Telemetry
	authService *auth.Service
	logger      *slog.Logger
	purgeCtx    context.Context
	stopPurge   context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	slogLogger, err := logger.NewWithServiceContext(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, ServiceName, Version, cfg.Env)
	if err != nil {
		return nil, err
	}

	// Set as default logger so slog.Info() uses the same handler
	slog.SetDefault(slogLogger)

	slogLogger.InfoContext(ctx, "initializing application", "env", cfg.Env, "commit", GitCommit, "built", BuildTime)

	if cfg.Auth.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}

	tel, err := telemetry.Init(ctx, cfg.Telemetry, ServiceName, Version, cfg.Env, slogLogger)
	if err != nil {
		return nil, err
	}

	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		_ = tel.Shutdown(ctx, slogLogger)
		return nil, err
	}

	if err := db.Migrate(ctx, database); err != nil {
		db.Close(database)
		_ = tel.Shutdown(ctx, slogLogger)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := tel.Metrics.Database.RegisterDB(database.DB, tel.Metrics.Meter()); err != nil {
		slogLogger.WarnContext(ctx, "failed to register db pool metrics", "error", err)
	}
	if err := tel.Metrics.Health.RegisterDependencies(tel.Metrics.Meter(), []string{"postgres"}); err != nil {
		slogLogger.WarnContext(ctx, "failed to register dependency metrics", "error", err)
	}

	producer, err := messaging.NewProducer(cfg.Events, tel.Metrics.Messaging, slogLogger)
	if err != nil {
		slogLogger.WarnContext(ctx, "failed to initialize event producer, events disabled", "driver", cfg.Events.Driver, "error", err)
		producer = messaging.NopProducer{}
	}

	app, err := newApp(cfg, database, producer, tel, slogLogger)
	if err != nil {
		_ = producer.Close()
		db.Close(database)
		_ = tel.Shutdown(ctx, slogLogger)
		return nil, err
	}

	slogLogger.InfoContext(ctx, "application initialized successfully")
	return app, nil
}

// newApp wires repositories, services and routes onto an open database.
func newApp(cfg *config.Config, database *bun.DB, producer messaging.Producer, tel *telemetry.Telemetry, slogLogger *slog.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid attendance timezone %q: %w", cfg.Attendance.Timezone, err)
	}

	m := tel.Metrics
	accessTTL := time.Duration(cfg.Auth.AccessTokenMinutes) * time.Minute
	refreshTTL := time.Duration(cfg.Auth.RefreshTokenHours) * time.Hour

	userRepo := user.NewRepository(database, m)
	userService := user.NewService(userRepo)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, accessTTL)
	authService := auth.NewService(auth.NewRepository(database, m), userService, tokens, refreshTTL)
	authHandler := auth.NewHandler(authService, auth.CookieOptions{Env: cfg.Env, MaxAge: accessTTL}, slogLogger)

	attendanceService := attendance.NewService(
		attendance.NewRepository(database, m),
		userService,
		producer,
		slogLogger,
		m,
		attendance.WithLocation(loc),
		attendance.WithPageSizes(cfg.Attendance.SelfPageSize, cfg.Attendance.StudentPageSize, cfg.Attendance.MaxPageSize),
	)
	attendanceHandler := attendance.NewHandler(attendanceService, slogLogger)

	healthHandler := health.NewHandler(database, m, slogLogger)

	purgeCtx, stopPurge := context.WithCancel(context.Background())

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(slogLogger))
	router.Use(chimw.Recoverer)
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	// Public endpoints
	healthHandler.RegisterRoutes(router)
	authHandler.RegisterRoutes(router)

	router.Route("/api", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokens, slogLogger))
		attendanceHandler.RegisterRoutes(r)
	})

	return &App{
		config: cfg,
		router: router,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
		db:          database,
		producer:    producer,
		telemetry:   tel,
		authService: authService,
		logger:      slogLogger,
		purgeCtx:    purgeCtx,
		stopPurge:   stopPurge,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.router
}

func (a *App) Run() error {
	go a.purgeRefreshTokens(a.purgeCtx, refreshTokenPurgeInterval)

	a.logger.Info("server starting", "port", a.config.Server.Port)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) purgeRefreshTokens(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.authService.PurgeExpired(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "failed to purge expired refresh tokens", "error", err)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "purged expired refresh tokens", "count", n)
			}
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfoContext(ctx, "shutting down server")

	a.stopPurge()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}

	if err := a.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("event producer: %w", err))
	}

	db.Close(a.db)

	if err := a.telemetry.Shutdown(ctx, a.logger); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
