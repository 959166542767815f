// Package app assembles the daemon: configuration, logging, telemetry,
// storage, the authority and the HTTP server, with ordered shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"prudad/internal/authority"
	"prudad/internal/config"
	"prudad/internal/database"
	"prudad/internal/events"
	"prudad/internal/infrastructure"
	"prudad/internal/middleware"
	"prudad/internal/store"
	transporthttp "prudad/internal/transport/http"
)

// Version is stamped by the build.
var Version = "dev"

// Application owns every long-lived component of the daemon.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger
	otel   *infrastructure.OTelProviders

	db      *sql.DB
	bus     *events.Bus
	hub     *events.Hub
	sweeper *authority.Sweeper

	server      *http.Server
	sweepCancel context.CancelFunc
}

// New wires the application together. Nothing is running yet; call Run.
func New() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(logger)

	otelProviders, err := infrastructure.InitializeOTel(cfg.Logging.Development, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry: %w", err)
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	licenses := store.NewLicenseStore(db)
	settings := store.NewSettingsRegistry(db)
	users := store.NewUserStore(db)
	discord := store.NewDiscordStore(db)

	discordSink := events.NewDiscordSink(discord, logger)
	hub := events.NewHub(logger)
	bus := events.NewBus(cfg.Events.QueueSize, logger,
		events.NewAuditSink(logger),
		discordSink,
		hub,
	)

	auth := authority.New(licenses, settings, bus, logger,
		authority.WithTracer(otelProviders.Tracer))
	sweeper := authority.NewSweeper(auth, cfg.Sweep.Interval, cfg.Sweep.SoonWindow, logger)

	app := &Application{
		cfg:     cfg,
		logger:  logger,
		otel:    otelProviders,
		db:      db,
		bus:     bus,
		hub:     hub,
		sweeper: sweeper,
	}

	router := app.buildRouter(auth, settings, users, discord, discordSink)
	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

func (a *Application) buildRouter(
	auth *authority.Authority,
	settings *store.SettingsRegistry,
	users *store.UserStore,
	discord *store.DiscordStore,
	discordSink *events.DiscordSink,
) chi.Router {
	licenseHandler := transporthttp.NewLicenseHandler(auth, a.logger)
	settingsHandler := transporthttp.NewSettingsHandler(settings, a.logger)
	userHandler := transporthttp.NewUserHandler(users, a.logger)
	discordHandler := transporthttp.NewDiscordHandler(discord, discordSink, a.logger)
	healthHandler := transporthttp.NewHealthHandler(a.db, Version)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(a.logger))
	r.Use(middleware.Recoverer(a.logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders)

	adminOnly := middleware.AdminAuth(a.cfg.Admin.Token, a.logger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", healthHandler.Health)

		// Verify and activate stay open inside; everything else is
		// behind the admin token.
		api.Mount("/licenses", licenseHandler.Routes(adminOnly))

		api.Group(func(admin chi.Router) {
			admin.Use(adminOnly)
			admin.Mount("/settings", settingsHandler.Routes())
			admin.Mount("/users", userHandler.Routes())
			admin.Mount("/discord", discordHandler.Routes())
		})
	})

	r.Get("/metrics", a.otel.PrometheusHTTP.ServeHTTP)
	r.Get("/ws", a.hub.ServeWS)

	return r
}

// Run starts the bus, hub, sweep and HTTP server, then blocks until ctx
// is cancelled or the server fails. Shutdown is ordered: stop accepting
// requests, stop the sweep, drain the event queue, flush telemetry.
func (a *Application) Run(ctx context.Context) error {
	a.bus.Start()
	a.hub.Start()

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	go a.sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server listening",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.shutdown()
		return fmt.Errorf("server: %w", err)
	}

	return a.shutdown()
}

func (a *Application) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = fmt.Errorf("http shutdown: %w", err)
	}

	a.sweepCancel()
	a.sweeper.Wait()

	a.bus.Stop()
	a.hub.Stop()

	if err := a.otel.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("telemetry shutdown: %w", err)
	}
	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close database: %w", err)
	}

	a.logger.Info("shutdown complete")
	return firstErr
}
