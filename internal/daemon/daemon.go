package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/database"
	"streamkeep/internal/logging"
	"streamkeep/internal/merger"
	"streamkeep/internal/metrics"
	"streamkeep/internal/monitor"
	"streamkeep/internal/notifications"
	"streamkeep/internal/preflight"
	"streamkeep/internal/queue"
	"streamkeep/internal/recorder"
	"streamkeep/internal/replication"
	"streamkeep/internal/scheduler"
	"streamkeep/internal/sources"
)

// Option customizes daemon construction.
type Option func(*options)

type options struct {
	runner       capture.Runner
	prober       capture.Prober
	mergeExec    merger.Executor
	targets      []replication.Target
	notifier     notifications.Service
	monitorEvery time.Duration
}

// WithRunner replaces the capture process runner.
func WithRunner(r capture.Runner) Option {
	return func(o *options) { o.runner = r }
}

// WithProber replaces the liveness probe used by the monitor and CheckLive.
func WithProber(p capture.Prober) Option {
	return func(o *options) { o.prober = p }
}

// WithMergeExecutor replaces how the concat tool is run.
func WithMergeExecutor(e merger.Executor) Option {
	return func(o *options) { o.mergeExec = e }
}

// WithReplicationTargets fixes replication targets instead of reading them
// from configuration.
func WithReplicationTargets(targets ...replication.Target) Option {
	return func(o *options) { o.targets = targets }
}

// WithNotifier replaces the ntfy-backed notification service.
func WithNotifier(svc notifications.Service) Option {
	return func(o *options) { o.notifier = svc }
}

// WithMonitorInterval overrides the configured probe interval.
func WithMonitorInterval(d time.Duration) Option {
	return func(o *options) { o.monitorEvery = d }
}

// Daemon owns every long-running component.
type Daemon struct {
	holder     *config.Holder
	db         *database.DB
	logger     *slog.Logger
	sources    *sources.Store
	queue      *queue.Store
	recorder   *recorder.Controller
	merger     *merger.Merger
	trigger    *merger.SmartTrigger
	scheduler  *scheduler.Scheduler
	monitor    *monitor.Monitor
	replicator *replication.Replicator
	metrics    *metrics.Metrics
	notifier   *notifications.Dispatcher
	prober     capture.Prober

	metricsServer metrics.Server

	lockPath string
	lock     *flock.Flock

	lifecycle sync.Mutex
	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New constructs a daemon with initialized dependencies. It does not start
// any background work.
func New(holder *config.Holder, db *database.DB, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if holder == nil || db == nil {
		return nil, errors.New("daemon requires config holder and database")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := holder.Current()
	m := metrics.New()
	notifier := notifications.NewDispatcher(holder.Current, logger)
	if o.notifier != nil {
		notifier.WithService(o.notifier)
	}

	replOpts := []replication.Option{
		replication.WithObserver(func(r replication.Result) {
			m.ObserveReplication(r.Target, r.OK())
			notifier.ReplicationObserved(r)
		}),
	}
	if len(o.targets) > 0 {
		replOpts = append(replOpts, replication.WithTargets(o.targets...))
	}
	replicator := replication.New(holder.Current, logger, replOpts...)

	runner := o.runner
	if runner == nil {
		runner = graceRunner{holder: holder, logger: logging.NewComponentLogger(logger, "capture")}
	}

	queueStore := queue.NewStore(db)
	sourceStore := sources.NewStore(db)

	rec := recorder.New(runner, queueStore, logger,
		recorder.WithReplicator(replicator),
		recorder.WithCurrentConfig(holder.Current),
	)

	mergeOpts := []merger.Option{
		merger.WithReplicator(replicator),
		merger.WithObserver(func(outcome merger.Outcome, took time.Duration) { m.ObserveMerge(string(outcome), took) }),
		merger.WithPassObserver(notifier.QueueProcessed),
	}
	if o.mergeExec != nil {
		mergeOpts = append(mergeOpts, merger.WithExecutor(o.mergeExec))
	}
	mrg := merger.New(queueStore, holder.Current, logger, mergeOpts...)

	trigger := merger.NewSmartTrigger(mrg, holder.Current, logger)
	rec.Subscribe(trigger)
	rec.Subscribe(recorder.ListenerFunc(func(_ context.Context, event recorder.SessionEnded) {
		m.ObserveSessionEnded(string(event.Mode), string(event.Outcome))
	}))
	rec.Subscribe(notifier)

	sched, err := scheduler.Daily(cfg.Processing.AutoProcessTime, mrg, logger)
	if err != nil {
		return nil, fmt.Errorf("configure scheduler: %w", err)
	}

	monOpts := []monitor.Option{
		monitor.WithProbeObserver(func(outcome monitor.ProbeOutcome) { m.ObserveProbe(string(outcome)) }),
	}
	if o.prober != nil {
		monOpts = append(monOpts, monitor.WithProber(o.prober))
	}
	if o.monitorEvery > 0 {
		monOpts = append(monOpts, monitor.WithIntervals(o.monitorEvery, 0))
	}
	mon := monitor.New(sourceStore, rec, holder.Current, logger, monOpts...)

	lockPath := cfg.LockPath()
	return &Daemon{
		holder:     holder,
		db:         db,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		sources:    sourceStore,
		queue:      queueStore,
		recorder:   rec,
		merger:     mrg,
		trigger:    trigger,
		scheduler:  sched,
		monitor:    mon,
		replicator: replicator,
		metrics:    m,
		notifier:   notifier,
		prober:     o.prober,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches background components.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	cfg := d.holder.Current()
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another streamkeep daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.trigger.Bind(d.ctx)

	for _, failed := range preflight.Failed(preflight.RunAll(d.ctx, cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
		)
	}

	d.scheduler.Start()
	if cfg.Monitor.AutoCheckLive {
		if err := d.monitor.Start(d.ctx); err != nil {
			d.logger.Warn("monitor start failed", logging.Error(err))
		}
	}
	if cfg.Metrics.Enabled {
		if err := d.metricsServer.Start(cfg.Metrics.Bind, d.metrics.Handler(d.refreshGauges)); err != nil {
			logging.WarnWithContext(d.logger, "metrics server failed to start", "metrics_start_failed",
				logging.String("bind", cfg.Metrics.Bind),
				logging.Error(err),
				logging.String(logging.FieldImpact, "metrics are unavailable; recording is unaffected"),
			)
		} else {
			d.logger.Info("metrics listening", logging.String("addr", d.metricsServer.Addr()))
		}
	}

	d.running.Store(true)
	d.logger.Info("streamkeep daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("low_power_mode", cfg.Capture.LowPowerMode),
		logging.Bool("auto_check_live", cfg.Monitor.AutoCheckLive),
	)
	return nil
}

// Stop halts background work, ends every capture session, and releases the
// daemon lock. It waits for session post-processing to finish.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}

	d.monitor.Stop()
	d.scheduler.Stop()
	// Cancelling first interrupts a smart pass; its batch stays queued.
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.recorder.Drain()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := d.metricsServer.Stop(shutdownCtx); err != nil {
		d.logger.Warn("metrics server shutdown failed", logging.Error(err))
	}
	cancelShutdown()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("streamkeep daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.holder.Current().LogPath()
}

// ConfigPath returns the file settings are saved to, or "" when in memory.
func (d *Daemon) ConfigPath() string {
	return d.holder.Path()
}

// Metrics exposes the metric set.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

func (d *Daemon) refreshGauges() {
	queued, err := d.queue.Count(context.Background())
	if err != nil {
		queued = 0
	}
	d.metrics.SetGauges(d.recorder.Count(), queued, d.monitor.Running())
}

// applyConfig reconciles running components with a freshly swapped config.
func (d *Daemon) applyConfig(cfg *config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	if err := d.scheduler.Reschedule(cfg.Processing.AutoProcessTime); err != nil {
		return fmt.Errorf("reschedule processing: %w", err)
	}
	if !d.running.Load() {
		return nil
	}
	switch {
	case cfg.Monitor.AutoCheckLive && !d.monitor.Running():
		if err := d.monitor.Start(d.ctx); err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}
	case !cfg.Monitor.AutoCheckLive && d.monitor.Running():
		d.monitor.Stop()
	}
	return nil
}

// graceRunner reads the stop grace period from the live config on each start.
type graceRunner struct {
	holder *config.Holder
	logger *slog.Logger
}

func (r graceRunner) Start(ctx context.Context, binary string, args []string) (capture.Process, error) {
	grace := time.Duration(r.holder.Current().Capture.StopGrace) * time.Second
	return capture.ExecRunner{Grace: grace, Logger: r.logger}.Start(ctx, binary, args)
}

// PID returns the daemon's process id.
func PID() int {
	return os.Getpid()
}
