package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/tenderdock/internal/common"
	"github.com/ternarybob/tenderdock/internal/engine"
	"github.com/ternarybob/tenderdock/internal/handlers"
	"github.com/ternarybob/tenderdock/internal/services/batches"
	"github.com/ternarybob/tenderdock/internal/services/files"
	"github.com/ternarybob/tenderdock/internal/services/refindex"
	"github.com/ternarybob/tenderdock/internal/services/submission"
	"github.com/ternarybob/tenderdock/internal/services/sweeper"
	"github.com/ternarybob/tenderdock/internal/services/users"
	"github.com/ternarybob/tenderdock/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Storage
	Store *storage.MetadataStore

	// Domain services
	FileService     *files.Service
	BatchService    *batches.Service
	RefIndexService *refindex.Service
	UserService     *users.Service
	EngineClient    *engine.Client
	Worker          *submission.Worker
	Sweeper         *sweeper.Sweeper

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	BatchHandler    *handlers.BatchHandler
	FileHandler     *handlers.FileHandler
	CallbackHandler *handlers.CallbackHandler
	StatusHandler   *handlers.StatusHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize storage
	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	// Start the retry sweeper AFTER everything is wired
	if cfg.Sweeper.Enabled {
		if err := app.Sweeper.Start(); err != nil {
			return nil, fmt.Errorf("failed to start sweeper: %w", err)
		}
	} else {
		logger.Warn().Msg("Retry sweeper disabled by configuration")
	}

	logger.Info().
		Str("storage_mode", string(app.Store.Mode())).
		Bool("sweeper_enabled", cfg.Sweeper.Enabled).
		Str("engine_url", cfg.Engine.BaseURL).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the metadata store per the configured migration mode
func (a *App) initStorage() error {
	store, err := storage.NewStore(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.Store = store

	a.Logger.Debug().
		Str("mode", string(store.Mode())).
		Msg("Storage layer initialized")

	return nil
}

// initServices builds the domain service graph
func (a *App) initServices() error {
	a.FileService = files.NewService(a.Store, a.Logger)
	a.RefIndexService = refindex.NewService(a.Store, a.Logger)
	a.BatchService = batches.NewService(a.Store, a.FileService, a.RefIndexService, a.Logger)
	a.UserService = users.NewService(a.Store, a.Logger)
	a.EngineClient = engine.NewClient(&a.Config.Engine, a.Logger)

	// Seed validation users from the users directory. Missing directory is
	// not fatal, registrations can also arrive at runtime.
	if err := a.UserService.LoadFromDir(context.Background(), a.Config.Users.Dir); err != nil {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Users.Dir).Msg("Failed to load users from files")
	}

	interval, err := a.Config.SweepInterval()
	if err != nil {
		return fmt.Errorf("invalid sweeper interval: %w", err)
	}

	// The sweep interval doubles as the staleness threshold for abandoned
	// in-progress attempts.
	a.Worker = submission.NewWorker(
		a.Store,
		a.BatchService,
		a.UserService,
		a.EngineClient,
		a.RefIndexService,
		a.Config.Engine.FolderID,
		interval,
		a.Logger,
	)
	a.Sweeper = sweeper.New(a.BatchService, a.Worker, interval, a.Logger)

	return nil
}

// initHandlers builds the HTTP handler layer
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler()
	a.BatchHandler = handlers.NewBatchHandler(a.BatchService, a.Worker, a.Logger)
	a.FileHandler = handlers.NewFileHandler(a.FileService, a.Logger)
	a.CallbackHandler = handlers.NewCallbackHandler(a.RefIndexService, a.FileService, a.BatchService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Store, a.Sweeper, a.Logger)
}

// Close shuts down the application components in reverse dependency order
func (a *App) Close() error {
	if a.Sweeper != nil {
		a.Sweeper.Stop()
		a.Logger.Info().Msg("Sweeper stopped")
	}

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
