package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/academic-records/config"
	"github.com/upb/academic-records/google"
	"github.com/upb/academic-records/handlers"
	"github.com/upb/academic-records/internal/observability"
	"github.com/upb/academic-records/middleware"
	"github.com/upb/academic-records/repositories"
	"github.com/upb/academic-records/repositories/postgres"
	"github.com/upb/academic-records/services/audit"
	authsvc "github.com/upb/academic-records/services/auth"
	"github.com/upb/academic-records/services/courses"
	"github.com/upb/academic-records/services/directory"
	"github.com/upb/academic-records/services/ratelimit"
	"github.com/upb/academic-records/services/session"
	"github.com/upb/academic-records/services/specialisations"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Users           repositories.UserRepository
	Courses         repositories.CourseRepository
	Specialisations repositories.SpecialisationRepository
	AuditLogs       repositories.AuditRepository
	TxManager       repositories.TransactionManager

	// Observability. Registry is nil when metrics are disabled.
	Registry *prometheus.Registry
	Metrics  observability.Metrics

	// Services
	Sessions              *session.Store
	Verifier              *google.Verifier
	Audit                 *audit.AuditService
	Directory             *directory.Directory
	Auth                  *authsvc.Service
	CourseService         *courses.Service
	SpecialisationService *specialisations.Service
	LoginLimiter          *ratelimit.RateLimitService

	// HTTP
	AuthHandler           *handlers.AuthHandler
	CourseHandler         *handlers.CourseHandler
	SpecialisationHandler *handlers.SpecialisationHandler
	AdminHandler          *handlers.AdminHandler
	HealthHandler         *handlers.HealthHandler
	AuthMiddleware        *middleware.AuthMiddleware
	RateLimitMiddleware   *middleware.RateLimitMiddleware

	stopCh    chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

// NewDependencies opens the database, applies migrations when enabled and wires everything on top.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := factory.GetDB().PingContext(ctx); err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize database: database ping failed: %w", err)
	}

	return NewDependenciesFromFactory(cfg, factory, logger), nil
}

// NewDependenciesFromFactory wires services, handlers and middleware around an open repository factory.
// Background workers are not running until Start is called.
func NewDependenciesFromFactory(cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) *Dependencies {
	d := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
		stopCh:      make(chan struct{}),
	}

	d.initRepositories()
	d.initMetrics()
	d.initServices()
	d.initHTTP()

	logger.Info("all dependencies initialized successfully")
	return d
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() {
	repos := d.RepoFactory.NewRepositories()

	d.Users = repos.Users
	d.Courses = repos.Courses
	d.Specialisations = repos.Specialisations
	d.AuditLogs = repos.AuditLogs
	d.TxManager = d.RepoFactory.GetTransactionManager()
}

func (d *Dependencies) initMetrics() {
	if !d.Config.Observability.MetricsEnabled {
		d.Metrics = observability.NopMetrics{}
		return
	}

	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewCollector(d.Registry)
}

func (d *Dependencies) initServices() {
	cfg := d.Config

	d.Audit = audit.NewAuditService(d.AuditLogs, d.Logger.Named("audit"), audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		WorkerCount: cfg.Audit.Workers,
		OnDrop:      d.Metrics.RecordAuditDropped,
	})

	d.Sessions = session.NewStore(cfg.Auth.SessionTTL, d.Metrics, d.Logger.Named("session"))

	d.Verifier = google.NewVerifier(google.Config{
		ClientID:    cfg.Google.ClientID,
		JWKSURL:     cfg.Google.JWKSURL,
		HTTPTimeout: cfg.Google.HTTPTimeout,
		CacheTTL:    cfg.Google.CacheTTL,
	}, d.Logger.Named("google"))
	if cfg.Google.ClientID == "" {
		d.Logger.Warn("GOOGLE_CLIENT_ID not set, every sign-in will be rejected")
	}

	d.Directory = directory.NewDirectory(d.Users, d.TxManager, cfg.Auth.AdminEmail, d.Audit, d.Logger.Named("directory"))
	d.Auth = authsvc.NewService(d.Verifier, d.Directory, d.Sessions, d.Audit, d.Metrics, d.Logger.Named("auth"))
	d.CourseService = courses.NewService(d.Courses, d.TxManager, d.Audit, d.Logger.Named("courses"))
	d.SpecialisationService = specialisations.NewService(d.Specialisations, d.Courses, d.TxManager, d.Audit, d.Logger.Named("specialisations"))

	d.LoginLimiter = ratelimit.NewRateLimitService(ratelimit.Config{
		RatePerMinute: cfg.Auth.LoginRatePerMinute,
		Burst:         cfg.Auth.LoginBurst,
	}, d.Logger.Named("ratelimit"))
}

func (d *Dependencies) initHTTP() {
	d.AuthHandler = handlers.NewAuthHandler(d.Auth, d.Logger)
	d.CourseHandler = handlers.NewCourseHandler(d.CourseService, d.Logger)
	d.SpecialisationHandler = handlers.NewSpecialisationHandler(d.SpecialisationService, d.Logger)
	d.AdminHandler = handlers.NewAdminHandler(d.Audit, d.Directory, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(handlers.ReadinessSources{
		Database:    d.DB,
		Sessions:    d.Sessions,
		SigningKeys: d.Verifier,
		Audit:       d.Audit,
	}, d.Auth, d.Logger)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Auth, d.Logger)
	d.RateLimitMiddleware = middleware.NewRateLimitMiddleware(d.LoginLimiter, d.Metrics, d.Logger)
}

// Start launches the audit writers and the session and rate limiter sweepers.
func (d *Dependencies) Start() error {
	var err error
	d.startOnce.Do(func() {
		if err = d.Audit.Start(); err != nil {
			return
		}
		go d.Sessions.StartCleanupWorker(d.Config.Auth.SessionCleanupInterval, d.stopCh)
		go d.LoginLimiter.StartCleanupWorker(d.stopCh)
	})
	return err
}

// Close gracefully shuts down all dependencies. Later calls return the first result.
func (d *Dependencies) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.close(ctx)
	})
	return d.closeErr
}

func (d *Dependencies) close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	close(d.stopCh)

	timeout := d.Config.Audit.ShutdownTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	if stats := d.Audit.GetStats(); stats.Started {
		if err := d.Audit.Stop(timeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	// Close database connection
	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
