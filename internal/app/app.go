package app

import (
	"context"
	"log/slog"
	"sync"

	cfg "github.com/webitel/batch-sync/config"
	rediscache "github.com/webitel/batch-sync/internal/cache/redis"
	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/executor"
	"github.com/webitel/batch-sync/internal/model"
	"github.com/webitel/batch-sync/internal/remote"
	"github.com/webitel/batch-sync/internal/server"
	"github.com/webitel/batch-sync/internal/service"
	"github.com/webitel/batch-sync/internal/store/postgres"
)

type App struct {
	Config       *cfg.AppConfig
	log          *slog.Logger
	exitCh       chan error
	shutdown     func(ctx context.Context) error
	Store        *postgres.Store
	Cache        *rediscache.RedisCache
	Remote       remote.Client
	Delegates    *executor.Registry
	Synchronizer *service.Synchronizer
	Sync         *SyncService
	scheduler    *Scheduler
	server       *server.Server

	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// New creates a fully initialized App.
func New(config *cfg.AppConfig, shutdown func(ctx context.Context) error) (*App, error) {
	app := &App{
		Config:   config,
		log:      slog.Default(),
		shutdown: shutdown,
		exitCh:   make(chan error, 1),
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}
	if err := app.initRedis(); err != nil {
		return nil, err
	}
	if err := app.initRemote(); err != nil {
		return nil, err
	}
	if err := app.initDelegates(); err != nil {
		return nil, err
	}
	if err := app.initSynchronizer(); err != nil {
		return nil, err
	}
	if err := app.initScheduler(); err != nil {
		return nil, err
	}
	if err := app.initServer(); err != nil {
		return nil, err
	}

	// --------- Service Registration (GRPC) ---------
	RegisterServices(app.server, app)

	return app, nil
}

// --------- Private init methods ---------

func (app *App) initStore() error {
	if app.Config.Database == nil {
		return errors.New("database config is nil")
	}
	app.Store = postgres.New(app.Config.Database)
	return nil
}

func (app *App) initRedis() error {
	redisCache, err := rediscache.NewRedisCache(app.Config.Redis.Addr, app.Config.Redis.Password, app.Config.Redis.DB)
	if err != nil {
		return errors.New("unable to initialize Redis", errors.WithCause(err))
	}
	app.Cache = redisCache
	return nil
}

func (app *App) initRemote() error {
	client, err := remote.New(context.Background(), app.Config.Remote)
	if err != nil {
		return errors.New("unable to initialize remote client", errors.WithCause(err))
	}
	app.Remote = client
	return nil
}

// initDelegates registers one table delegate per configured delegate, for
// both directions.
func (app *App) initDelegates() error {
	app.Delegates = executor.NewRegistry()
	for _, dc := range app.Config.Delegates {
		d, err := postgres.NewTableDelegate(app.Store, dc)
		if err != nil {
			return errors.New("unable to initialize delegate "+dc.Name, errors.WithCause(err))
		}
		app.Delegates.RegisterExport(d)
		app.Delegates.RegisterImport(d)
	}
	return nil
}

func (app *App) initSynchronizer() error {
	tasks := app.Store.Tasks()
	synchronizer, err := service.NewSynchronizer(
		tasks,
		executor.NewExportExecutor(app.Delegates, tasks, app.log),
		executor.NewImportExecutor(app.Delegates, tasks, app.log),
		app.Remote,
		app.log,
	)
	if err != nil {
		return errors.New("unable to initialize synchronizer", errors.WithCause(err))
	}
	app.Synchronizer = synchronizer

	app.Sync, err = NewSyncService(app.Cache, app.Store.History(), synchronizer, app.Config.Sync.LockTTL, app.log)
	if err != nil {
		return errors.New("unable to initialize sync service", errors.WithCause(err))
	}
	return nil
}

func (app *App) initScheduler() error {
	scheduler, err := NewScheduler(app.Config.Sync.Schedule, app.Sync, app.Config.Sync.Resources, app.log)
	if err != nil {
		return err
	}
	scheduler.SetStagingCleanup(app.Store.Tasks(), app.Config.Sync.StagingRetention)
	app.scheduler = scheduler
	return nil
}

func (app *App) initServer() error {
	srv, err := server.BuildServer(app.Config.Consul, app.exitCh)
	if err != nil {
		return errors.New("failed to build server", errors.WithCause(err))
	}
	app.server = srv
	return nil
}

// Start runs DB, gRPC server, sync workers and the scheduler. It blocks until
// the server exits.
func (app *App) Start(ctx context.Context) error {
	if err := app.Store.Open(); err != nil {
		return errors.New("failed to open store", errors.WithCause(err))
	}

	ctx, app.cancel = context.WithCancel(ctx)

	go app.server.Start()

	app.workers.Add(1)
	go func() {
		defer app.workers.Done()
		_ = app.Sync.RunWorkers(ctx, app.Config.Sync.Workers)
	}()

	app.scheduler.Start()
	if app.Config.Sync.RunOnStart {
		queued := app.scheduler.Run(ctx)
		app.log.InfoContext(ctx, "batch_sync.main.initial_sync_queued", slog.Int("jobs", queued))
	}

	return <-app.exitCh
}

// Stop gracefully shuts down all services
func (app *App) Stop() error {
	slog.Info("batch_sync.main.stop_starting")

	if app.scheduler != nil {
		app.scheduler.Stop()
		slog.Info("scheduler stopped")
	}

	if app.server != nil {
		app.server.Stop()
		slog.Info("server stopped")
	}

	if app.cancel != nil {
		app.cancel()
		app.workers.Wait()
		slog.Info("sync workers stopped")
	}

	if app.Cache != nil {
		if err := app.Cache.Close(); err != nil {
			slog.Error("redis close error", "err", err)
		} else {
			slog.Info("redis closed")
		}
	}

	if app.Store != nil {
		_ = app.Store.Close()
	}

	if app.shutdown != nil {
		if err := app.shutdown(context.Background()); err != nil {
			slog.Error("shutdown hook error", "err", err)
		} else {
			slog.Info("shutdown hook executed")
		}
	}

	slog.Info("batch_sync.main.stop_complete", slog.String("version", model.CurrentVersion))
	return nil
}
