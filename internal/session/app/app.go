package app

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

	httpapi "github.com/aussiebroadwan/sessionguard/internal/session/http"
	"github.com/aussiebroadwan/sessionguard/internal/session/metrics"
	"github.com/aussiebroadwan/sessionguard/internal/session/service"
	"github.com/aussiebroadwan/sessionguard/internal/session/store"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/memory"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/redis"
	"github.com/aussiebroadwan/sessionguard/internal/session/store/drivers/sqlite"
	"github.com/aussiebroadwan/sessionguard/pkg/cryptox"
	"github.com/aussiebroadwan/sessionguard/pkg/jwtx"
	"github.com/aussiebroadwan/sessionguard/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application wires the session service together.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	kv      store.KV
	ring    *jwtx.KeyRing
	metrics *metrics.Metrics

	// Services
	audit               *service.AuditLog
	tokenService        *service.TokenService
	refreshLedger       *service.RefreshLedger
	userService         *service.UserService
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "sessionguard",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	ring, err := InitKeyRing(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.ring = ring

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKV(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initMetrics()

	if err := app.initServices(); err != nil {
		app.closeStores()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("session service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the server, drains the audit writer and closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down session service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	// Pending entries must land before the database goes away.
	app.audit.Close()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("session service stopped")
	return nil
}

func (app *Application) closeStores() error {
	var errs []error
	if err := app.kv.Close(); err != nil {
		app.logger.Error("error closing kv store", "error", err)
		errs = append(errs, err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initKV selects Redis when REDIS_URL is set and the in-process store
// otherwise. The in-process store is per instance and lost on restart.
func (app *Application) initKV() error {
	if app.cfg.RedisURL == "" {
		app.kv = memory.NewKV(app.cfg.MemoryKVMaxEntries)
		app.logger.Warn("REDIS_URL not set, using in-memory kv store",
			"max_entries", app.cfg.MemoryKVMaxEntries,
		)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	kv, err := redis.Connect(ctx, redis.Options{
		URL:         app.cfg.RedisURL,
		DialTimeout: app.cfg.StoreTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.kv = kv

	app.logger.Info("connected to redis kv store")
	return nil
}

func (app *Application) initMetrics() {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.metrics = metrics.New(reg)
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	scope, err := service.ParseRefreshScope(app.cfg.RefreshScope)
	if err != nil {
		return err
	}
	policy, err := service.ParseAuditFailurePolicy(app.cfg.AuditFailurePolicy)
	if err != nil {
		return err
	}

	pepper, err := cryptox.LoadPepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}

	app.audit = service.NewAuditLog(app.db, app.metrics, service.AuditOptions{
		QueueSize:     app.cfg.AuditQueueSize,
		Async:         app.cfg.AuditAsync,
		FailurePolicy: policy,
		Retries:       app.cfg.AuditRetries,
		StoreTimeout:  app.cfg.StoreTimeout,
	})

	revocations := &service.RevocationStore{
		KV:      app.kv,
		Timeout: app.cfg.StoreTimeout,
		Metrics: app.metrics,
	}
	app.tokenService, err = service.NewTokenService(app.ring, revocations, service.TokenConfig{
		Issuer:    app.cfg.Issuer,
		Audience:  app.cfg.Audience,
		AccessTTL: app.cfg.AccessTTL,
		ClockSkew: app.cfg.ClockSkew,
	})
	if err != nil {
		app.audit.Close()
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	app.tokenService.Metrics = app.metrics

	app.refreshLedger = &service.RefreshLedger{
		KV:      app.kv,
		TTL:     app.cfg.RefreshTTL,
		Timeout: app.cfg.StoreTimeout,
		Scope:   scope,
		Audit:   app.audit,
		Metrics: app.metrics,
	}

	app.userService = &service.UserService{
		Store:            app.db,
		Hasher:           cryptox.PasswordHasher{Pepper: pepper},
		Timeout:          app.cfg.StoreTimeout,
		EnforceAdminMFA:  app.cfg.MFAEnforceAdmin,
		AllowAdminSignup: app.cfg.AllowAdminSignup,
		MFAIssuer:        app.cfg.Issuer,
	}

	app.sessionService = &service.SessionService{
		Users:  app.userService,
		Tokens: app.tokenService,
		Ledger: app.refreshLedger,
		Audit:  app.audit,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.audit,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	app.logger.Info("services initialized",
		"refresh_scope", scope,
		"audit_failure_policy", policy,
		"audit_async", app.cfg.AuditAsync,
		"mfa_enforce_admin", app.cfg.MFAEnforceAdmin,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.logger, app.metrics)

	router.Sessions = app.sessionService
	router.Tokens = app.tokenService
	router.Users = app.userService
	router.Audit = app.audit
	router.MetricsToken = app.cfg.MetricsToken
	router.Ready = map[string]httpapi.Pinger{
		"kv":       app.kv,
		"database": app.db,
		"keys":     httpapi.PingFunc(app.checkKeys),
	}
	router.ApplyRoutes()

	if app.cfg.MetricsToken == "" {
		app.logger.Warn("METRICS_TOKEN not set, /metrics is disabled")
	}

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

func (app *Application) checkKeys(context.Context) error {
	if _, err := app.ring.Secret(app.ring.ActiveKID()); err != nil {
		return fmt.Errorf("active signing key: %w", err)
	}
	return nil
}
