// Package app provides the application initialization and lifecycle management
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tildaslashalef/mermaidnest/internal/catalog"
	"github.com/tildaslashalef/mermaidnest/internal/config"
	"github.com/tildaslashalef/mermaidnest/internal/connectivity"
	"github.com/tildaslashalef/mermaidnest/internal/database"
	"github.com/tildaslashalef/mermaidnest/internal/loggy"
	"github.com/tildaslashalef/mermaidnest/internal/store"
	"github.com/tildaslashalef/mermaidnest/internal/sync"
	"github.com/tildaslashalef/mermaidnest/internal/utils"
)

// App represents the application instance with its dependencies
type App struct {
	Config    *config.Config
	Store     *store.Store
	Catalog   *catalog.Catalog
	Account   *config.AccountService
	Client    *sync.Client
	Sync      *sync.Service
	Scheduler *sync.Scheduler

	db     *sql.DB
	logger *loggy.Logger
}

// New initializes a new application instance with all its dependencies
func New() (*App, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	if err := initLogger(cfg); err != nil {
		return nil, err
	}

	loggy.Info("Application initializing",
		"version", os.Getenv("VERSION"),
		"log_level", cfg.Logging.Level,
	)

	templates, err := catalog.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load template catalog: %w", err)
	}

	app := &App{
		Config:  cfg,
		Catalog: templates,
		logger:  loggy.GetGlobalLogger(),
	}

	app.initStore(context.Background())
	app.initSync()

	loggy.Info("Application initialized successfully", "store_available", app.Store.Available())
	return app, nil
}

// initConfig loads and sets up the application configuration
func initConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv("", "")
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	config.Set(cfg)
	return cfg, nil
}

// initLogger initializes the logging system
func initLogger(cfg *config.Config) error {
	err := loggy.Init(loggy.Config{
		Level:      config.ParseLogLevel(cfg.Logging.Level),
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// initStore opens the database. Any failure leaves the app running with an
// unavailable store: reads come back empty and writes are dropped.
func (app *App) initStore(ctx context.Context) {
	db, err := database.Open(ctx, &app.Config.Database)
	if err != nil {
		app.logger.Warn("Local storage unavailable", "error", err)
		app.Store = store.Unavailable(app.logger)
		return
	}

	if err := database.RunMigrations(db); err != nil {
		app.logger.Warn("Failed to apply migrations, local storage unavailable", "error", err)
		db.Close()
		app.Store = store.Unavailable(app.logger)
		return
	}

	app.db = db
	app.Store = store.New(db, app.logger)
	app.Account = config.NewAccountService(app.Store.Repository(), app.Config, app.logger)

	if err := app.Account.Load(ctx); err != nil {
		app.logger.Warn("Failed to load sync settings from database", "error", err)
	}

	if app.Config.Server.DeviceName == "" {
		if err := app.Account.SetDeviceName(ctx, utils.GenerateDeviceName()); err != nil {
			app.logger.Warn("Failed to save device name", "error", err)
		}
	}
}

// initSync builds the client, service and scheduler from the current config.
// It is called again after the account changes.
func (app *App) initSync() {
	if app.Scheduler != nil {
		app.Scheduler.Close()
	}

	var logs sync.Repository
	if app.db != nil {
		logs = sync.NewSQLRepository(app.db, app.logger)
	}

	app.Client = sync.NewClient(app.Config.Server, app.logger)
	app.Sync = sync.NewService(
		sync.NewExporter(app.Store, app.logger),
		sync.NewImporter(app.Store, app.logger),
		app.Client,
		logs,
		app.logger,
	)
	app.Scheduler = sync.NewScheduler(app.Sync, sync.SchedulerOptions{
		BackgroundDelay: app.Config.Sync.BackgroundDelay,
		Notifier: sync.NotifierFunc(func(message string) {
			utils.PrintWarning(message)
		}),
	}, app.logger)

	if !app.Config.IsAuthenticated() {
		app.Scheduler.Disable()
	}
}

// Reload rebuilds the sync stack after the account was linked or unlinked
func (app *App) Reload() {
	app.initSync()
}

// RequestSync asks for an immediate sync when an account is linked. Used by
// commands that edit templates; the sync completes before Shutdown returns.
func (app *App) RequestSync(reason sync.Reason) {
	if !app.Config.IsAuthenticated() {
		return
	}
	app.Scheduler.RequestSync(reason, sync.PriorityImmediate)
}

// NewManager builds a long-running sync manager with a connectivity monitor
func (app *App) NewManager(watchDir string) *sync.Manager {
	if watchDir == "" {
		watchDir = app.Config.Sync.WatchDir
	}

	// The monitor decides when the first sync runs
	app.Scheduler.Close()
	app.Scheduler = sync.NewScheduler(app.Sync, sync.SchedulerOptions{
		BackgroundDelay: app.Config.Sync.BackgroundDelay,
		StartOffline:    true,
		Notifier: sync.NotifierFunc(func(message string) {
			utils.PrintWarning(message)
		}),
	}, app.logger)

	monitor := connectivity.NewMonitor(app.Client, connectivity.Options{
		Interval:    app.Config.Sync.ProbeInterval,
		MaxInterval: app.Config.Sync.ProbeMaxInterval,
		Timeout:     app.Config.Server.Timeout,
	}, app.logger)

	return sync.NewManager(app.Scheduler, app.Store, sync.ManagerOptions{
		Authenticated: app.Config.IsAuthenticated(),
		Interval:      app.Config.Sync.Interval,
		WatchDir:      watchDir,
		Monitor:       monitor,
		Diagrams:      app.Store,
	}, app.logger)
}

// DB returns the database handle, or nil when local storage is unavailable
func (app *App) DB() *sql.DB {
	return app.db
}

// Shutdown gracefully shuts down the application
func (app *App) Shutdown() error {
	loggy.Info("Shutting down application")

	if app.Scheduler != nil {
		app.Scheduler.Close()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			loggy.Error("Error closing database connection", "error", err)
		}
	}

	return nil
}

// FromContext retrieves the App instance from the CLI context
func FromContext(c *cli.Context) (*App, error) {
	if c.App.Metadata == nil {
		return nil, fmt.Errorf("app metadata not found in context")
	}

	app, ok := c.App.Metadata["app"].(*App)
	if !ok {
		return nil, fmt.Errorf("app instance not found in context")
	}

	return app, nil
}
