package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"flowq/internal/api"
	"flowq/internal/cleanup"
	"flowq/internal/config"
	"flowq/internal/logging"
	"flowq/internal/queue"
	"flowq/internal/scheduler"
	"flowq/internal/supervisor"
	"flowq/internal/telemetry"
)

// Daemon runs the background services against one store and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	scheduler  *scheduler.Service
	supervisor *supervisor.Supervisor
	cleanup    *cleanup.Service
	api        *api.Server

	lockPath string
	lock     *flock.Flock

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool
	APIAddress     string
	DatabasePath   string
	LockFilePath   string
	Totals         queue.HealthSummary
	SweepsEnabled  bool
	CleanupEnabled bool
}

// New constructs a daemon with initialized services.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	svc, err := scheduler.New(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	sup, err := supervisor.New(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("create supervisor: %w", err)
	}
	maint, err := cleanup.New(cfg, store, logger)
	if err != nil {
		return nil, fmt.Errorf("create cleanup service: %w", err)
	}
	server, err := api.New(svc, maint, cfg.Paths.APIToken, logger)
	if err != nil {
		return nil, fmt.Errorf("create api server: %w", err)
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		scheduler:  svc,
		supervisor: sup,
		cleanup:    maint,
		api:        server,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, launches the enabled background loops and
// begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another flowq daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.Start(runCtx, d.cfg.Paths.APIBind); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}

	if d.cfg.Supervisor.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.supervisor.Run(runCtx)
		}()
	}
	if d.cfg.Cleanup.Enabled {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.cleanup.Run(runCtx)
		}()
	}

	telemetry.SetInFlightSource(d.countInFlight)
	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("flowq daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.Addr()),
		logging.Bool("supervisor_enabled", d.cfg.Supervisor.Enabled),
		logging.Bool("cleanup_enabled", d.cfg.Cleanup.Enabled),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.wg.Wait()
	telemetry.SetInFlightSource(nil)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("flowq daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// countInFlight reports in_progress items across every queue for the
// in-flight gauge.
func (d *Daemon) countInFlight() float64 {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("in-flight count failed", logging.Error(err))
		return 0
	}
	return float64(stats[queue.StatusInProgress])
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Scheduler exposes the queue service the daemon serves.
func (d *Daemon) Scheduler() *scheduler.Service {
	return d.scheduler
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:        d.running.Load(),
		DatabasePath:   d.cfg.DatabasePath(),
		LockFilePath:   d.lockPath,
		SweepsEnabled:  d.cfg.Supervisor.Enabled,
		CleanupEnabled: d.cfg.Cleanup.Enabled,
	}
	if status.Running {
		status.APIAddress = d.api.Addr()
	}
	if totals, err := d.store.Health(ctx); err == nil {
		status.Totals = totals
	} else {
		d.logger.Warn("queue totals unavailable", logging.Error(err))
	}
	return status
}
