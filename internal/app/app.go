// Package app wires the feed's adapters and services into one process.
package app

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/metrics/prom"
	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/pusher/spool"
	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-feed/internal/adapters/driven/sysmem"
	"github.com/custodia-labs/sercha-feed/internal/connectors"
	"github.com/custodia-labs/sercha-feed/internal/connectors/filesystem"
	"github.com/custodia-labs/sercha-feed/internal/core/services"
	"github.com/custodia-labs/sercha-feed/internal/logger"
)

// Options locate the process state. Empty directories use the defaults
// under ~/.sercha-feed.
type Options struct {
	ConfigDir string
	DataDir   string

	// MemoryReserve is host memory the load manager never counts as free.
	MemoryReserve uint64
}

// App holds the wired process.
type App struct {
	Config     *file.ConfigStore
	Settings   *services.SettingsService
	Store      *sqlite.Store
	Metrics    *prom.Metrics
	Sink       *spool.Factory
	Traversers *connectors.Factory
	Load       *services.HostLoadManager
	Queue      *services.WorkQueue
	Scheduler  *services.TraversalScheduler
	Connectors *services.ConnectorService

	watcher *file.Watcher
}

// New opens the configuration and database and wires every service.
func New(opts Options) (*App, error) {
	cfgStore, err := file.NewConfigStore(opts.ConfigDir)
	if err != nil {
		return nil, errors.Wrap(err, "open config")
	}
	settings := services.NewSettingsService(cfgStore)
	cfg, err := settings.FeedConfig()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.NewStore(opts.DataDir)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	sink, err := spool.NewFactory(cfg.Sink)
	if err != nil {
		store.Close()
		return nil, errors.Wrap(err, "open spool")
	}

	metrics := prom.New()

	traversers := connectors.NewFactory(store.ConnectorStore())
	traversers.Register(filesystem.Type, filesystem.Builder)

	load := services.NewHostLoadManager(cfg.Load, store.ScheduleStore(), sink, sysmem.NewProbe(opts.MemoryReserve))

	queue, err := services.NewWorkQueue(cfg.Queue, metrics)
	if err != nil {
		store.Close()
		return nil, err
	}

	scheduler := services.NewTraversalScheduler(cfg.Scheduler, cfg.Acceptor, services.SchedulerDeps{
		Schedules:   store.ScheduleStore(),
		Checkpoints: store.CheckpointStore(),
		History:     store.HistoryStore(),
		Traversers:  traversers,
		Pushers:     sink,
		Load:        load,
		Queue:       queue,
		Metrics:     metrics,
	})

	connectorSvc := services.NewConnectorService(
		store.ConnectorStore(),
		store.ScheduleStore(),
		store.CheckpointStore(),
		store.HistoryStore(),
		traversers,
		&forgetfulScheduler{TraversalScheduler: scheduler, metrics: metrics},
	)

	logger.Debug("app: config %s, database %s, spool %s", cfgStore.Path(), store.Path(), sink.Dir())

	return &App{
		Config:     cfgStore,
		Settings:   settings,
		Store:      store,
		Metrics:    metrics,
		Sink:       sink,
		Traversers: traversers,
		Load:       load,
		Queue:      queue,
		Scheduler:  scheduler,
		Connectors: connectorSvc,
	}, nil
}

// WatchConfig applies reloadable settings whenever the config file changes.
func (a *App) WatchConfig() error {
	if a.watcher != nil {
		return nil
	}
	w, err := file.NewWatcher(a.Config, file.DefaultDebounce)
	if err != nil {
		return errors.Wrap(err, "watch config")
	}
	w.OnReload(func(*file.ConfigStore) {
		if err := a.ApplyConfig(); err != nil {
			logger.Warn("config: reload rejected, keeping previous settings: %v", err)
		}
	})
	a.watcher = w
	return nil
}

// ApplyConfig pushes the reloadable settings into the running services.
// Queue and sink settings take effect on the next start.
func (a *App) ApplyConfig() error {
	cfg, err := a.Settings.FeedConfig()
	if err != nil {
		return err
	}
	a.Load.SetConfig(cfg.Load)
	a.Scheduler.SetAcceptorConfig(cfg.Acceptor)
	logger.Info("config: reloaded load and backpressure settings")
	return nil
}

// Close releases the watcher and the database.
func (a *App) Close() error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	errs = append(errs, a.Store.Close())
	logger.Sync()
	return errors.Join(errs...)
}

// forgetfulScheduler drops a removed connector's metric series.
type forgetfulScheduler struct {
	*services.TraversalScheduler
	metrics *prom.Metrics
}

func (s *forgetfulScheduler) RemoveConnector(ctx context.Context, name string) error {
	if err := s.TraversalScheduler.RemoveConnector(ctx, name); err != nil {
		return err
	}
	s.metrics.Forget(name)
	return nil
}
