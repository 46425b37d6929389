package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"parish/internal/api"
	"parish/internal/config"
	"parish/internal/events"
	"parish/internal/logging"
	"parish/internal/progress"
	"parish/internal/runstate"
	"parish/internal/workflow"
)

// Daemon coordinates the workflow orchestrator and the HTTP API and enforces
// single-instance execution through a lock file under the log directory.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *runstate.Store
	events  *events.Manager
	tracker *progress.Tracker
	orch    *workflow.Orchestrator
	svc     *api.EventService

	lockPath string
	lock     *flock.Flock
	server   *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg *config.Config,
	store *runstate.Store,
	eventManager *events.Manager,
	tracker *progress.Tracker,
	orch *workflow.Orchestrator,
	logger *slog.Logger,
) (*Daemon, error) {
	if cfg == nil || store == nil || eventManager == nil || tracker == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, event manager, tracker, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "parishd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:    store,
		events:   eventManager,
		tracker:  tracker,
		orch:     orch,
		svc:      api.NewEventService(eventManager, store, tracker, orch),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.server = newAPIServer(cfg, d, d.logger)
	return d, nil
}

// Start acquires the daemon lock and brings up the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another parish daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.server.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("parish daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down the HTTP API and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.server.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("parish daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address, empty until Start succeeds.
func (d *Daemon) Addr() string {
	return d.server.addr()
}

// Status returns current daemon runtime information.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StateDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
	if ids, err := d.events.List(); err == nil {
		status.Events = len(ids)
		for _, id := range ids {
			if d.orch.Running(id) {
				status.ActiveRuns = append(status.ActiveRuns, id)
			}
		}
	}
	for _, health := range d.orch.Health(ctx) {
		status.ModuleHealth = append(status.ModuleHealth, api.ModuleHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	return status
}
