package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"casework/internal/casework"
	"casework/internal/config"
	"casework/internal/dispatch"
	"casework/internal/hooks"
	"casework/internal/intake"
	"casework/internal/logging"
	"casework/internal/notifyqueue"
	"casework/internal/projections"
	"casework/internal/recipients"
	"casework/internal/server"
	"casework/internal/signal"
	"casework/internal/storage"
)

// daemon wires every background service over the shared store and enforces
// single-instance execution through a lock file.
type daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *storage.DB

	lockPath string
	lock     *flock.Flock

	registry   *hooks.Registry
	dispatcher *dispatch.Dispatcher
	pool       *dispatch.WorkerPool
	reconciler *casework.Reconciler
	api        *server.Server
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	db, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	signals := signal.NewStore(db)
	queue := notifyqueue.NewStore(db)
	registry := hooks.NewRegistry(
		hooks.NewSQLRepository(db),
		logging.NewComponentLogger(logger, "hooks"),
		time.Duration(cfg.Workflow.HookRefreshSeconds)*time.Second,
	)
	resolver := recipients.NewResolver(
		recipients.NewConfigDirectory(cfg),
		logging.NewComponentLogger(logger, "recipients"),
	)
	dispatcher := dispatch.NewDispatcher(signals, registry, resolver, queue, cfg,
		logging.NewComponentLogger(logger, "dispatch"))
	pool := dispatch.NewWorkerPool(queue, dispatch.NewProvider(cfg), cfg,
		logging.NewComponentLogger(logger, "delivery"))

	engine := casework.NewEngine(db, cfg.Readiness, logging.NewComponentLogger(logger, "workflow"))
	reconciler := casework.NewReconciler(engine,
		time.Duration(cfg.Workflow.ReconcileInterval)*time.Second,
		logging.NewComponentLogger(logger, "reconciler"))

	api := server.New(cfg.Paths.APIBind, projections.NewService(db),
		intake.NewService(signals, logging.NewComponentLogger(logger, "intake")),
		logging.NewComponentLogger(logger, "api"))

	lockPath := filepath.Join(cfg.Paths.DataDir, "caseworkd.lock")
	return &daemon{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		registry:   registry,
		dispatcher: dispatcher,
		pool:       pool,
		reconciler: reconciler,
		api:        api,
	}, nil
}

// Run acquires the instance lock, primes the hook snapshot, and drives every
// service until the context ends.
func (d *daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another caseworkd instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("releasing instance lock failed", logging.Error(err))
		}
	}()

	if err := d.registry.Refresh(ctx); err != nil {
		// An empty or unreadable hook table is not fatal; the refresh
		// loop keeps trying.
		d.logger.Warn("initial hook refresh failed", logging.Error(err))
	}

	d.logger.Info("caseworkd started",
		logging.String("db", d.db.Path()),
		logging.String("lock", d.lockPath),
		logging.String("api", d.cfg.Paths.APIBind))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(runCtx)
		}()
	}
	run(d.registry.Run)
	run(d.dispatcher.Run)
	run(d.pool.Run)
	run(d.reconciler.Run)

	apiErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		apiErr <- d.api.Run(runCtx)
	}()

	var exitErr error
	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			exitErr = fmt.Errorf("api server: %w", err)
		}
	}
	cancel()
	wg.Wait()
	return exitErr
}

func (d *daemon) Close() error {
	return d.db.Close()
}
