package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/recorder"
	"streamkeep/internal/services"
	"streamkeep/internal/sources"
)

// SourceLister returns the sources eligible for probing.
type SourceLister interface {
	ListActive(ctx context.Context) ([]sources.Source, error)
}

// Starter is the recorder surface the monitor drives.
type Starter interface {
	Start(ctx context.Context, src sources.Source, cfg *config.Config) (recorder.SessionInfo, error)
	IsRecording(name string) bool
}

// ProbeOutcome labels a single probe for observers.
type ProbeOutcome string

const (
	ProbeLive    ProbeOutcome = "live"
	ProbeOffline ProbeOutcome = "offline"
	ProbeError   ProbeOutcome = "error"
)

// TickResult summarizes one polling pass.
type TickResult struct {
	Checked int
	Live    int
	Started int
	Skipped int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithProber fixes the prober instead of building one from configuration.
func WithProber(p capture.Prober) Option {
	return func(m *Monitor) {
		if p != nil {
			m.prober = func(*config.Config) capture.Prober { return p }
		}
	}
}

// WithIntervals overrides the polling interval and error backoff read from
// configuration.
func WithIntervals(interval, backoff time.Duration) Option {
	return func(m *Monitor) {
		m.interval = interval
		m.backoff = backoff
	}
}

// WithProbeObserver registers a callback invoked after every probe.
func WithProbeObserver(fn func(ProbeOutcome)) Option {
	return func(m *Monitor) {
		m.observe = fn
	}
}

// Monitor is the liveness polling loop.
type Monitor struct {
	sources  SourceLister
	starter  Starter
	current  func() *config.Config
	prober   func(*config.Config) capture.Prober
	observe  func(ProbeOutcome)
	interval time.Duration
	backoff  time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a monitor.
func New(lister SourceLister, starter Starter, current func() *config.Config, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		sources: lister,
		starter: starter,
		current: current,
		prober: func(cfg *config.Config) capture.Prober {
			return capture.NewProbe(cfg.Capture.Binary, time.Duration(cfg.Monitor.ProbeTimeout)*time.Second)
		},
		logger: logging.NewComponentLogger(logger, "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the polling loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(runCtx)
	m.logger.Info("stream monitor started")
	return nil
}

// Stop cancels the loop and waits for the current tick to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("stream monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		cfg := m.current()
		wait := m.intervalFor(cfg)
		if _, err := m.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = m.backoffFor(cfg)
			logging.WarnWithContext(m.logger, "monitor tick failed; backing off", "monitor_tick_failed",
				logging.Error(err),
				logging.Duration("backoff", wait),
				logging.String(logging.FieldImpact, "live sources are not detected until the next tick"),
			)
		}
		timer.Reset(wait)
	}
}

func (m *Monitor) intervalFor(cfg *config.Config) time.Duration {
	if m.interval > 0 {
		return m.interval
	}
	if cfg != nil && cfg.Monitor.CheckInterval > 0 {
		return time.Duration(cfg.Monitor.CheckInterval) * time.Second
	}
	return time.Minute
}

func (m *Monitor) backoffFor(cfg *config.Config) time.Duration {
	if m.backoff > 0 {
		return m.backoff
	}
	if cfg != nil && cfg.Monitor.ErrorBackoff > 0 {
		return time.Duration(cfg.Monitor.ErrorBackoff) * time.Second
	}
	return time.Minute
}

// Tick runs one polling pass. Errors are limited to failures that prevent
// the pass itself (registry reads, panics); per-source problems are logged.
func (m *Monitor) Tick(ctx context.Context) (result TickResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor tick panicked: %v", r)
		}
	}()

	cfg := m.current()
	if cfg == nil {
		return result, services.Wrap(services.ErrConfiguration, "monitor", "tick", "config unavailable", nil)
	}
	if !cfg.Monitor.AutoCheckLive {
		return result, nil
	}

	list, err := m.sources.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("list sources: %w", err)
	}
	prober := m.prober(cfg)

	for _, src := range list {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if m.starter.IsRecording(src.Name) {
			result.Skipped++
			continue
		}
		result.Checked++
		if !m.probe(ctx, prober, src) {
			continue
		}
		result.Live++
		if m.start(ctx, src, cfg) {
			result.Started++
		}
	}
	m.logger.Debug("monitor tick complete",
		logging.Int("checked", result.Checked),
		logging.Int("live", result.Live),
		logging.Int("started", result.Started),
	)
	return result, nil
}

func (m *Monitor) probe(ctx context.Context, prober capture.Prober, src sources.Source) bool {
	res, err := prober.Probe(ctx, src.Address)
	switch {
	case err != nil:
		m.notify(ProbeError)
		if ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "liveness probe failed", "probe_failed",
				logging.String(logging.FieldSource, src.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "treated as offline; check the address and capture binary"),
			)
		}
		return false
	case !res.Live:
		m.notify(ProbeOffline)
		return false
	default:
		m.notify(ProbeLive)
		return true
	}
}

func (m *Monitor) start(ctx context.Context, src sources.Source, cfg *config.Config) bool {
	info, err := m.starter.Start(ctx, src, cfg)
	switch {
	case err == nil:
		m.logger.Info("source is live; recording started",
			logging.String(logging.FieldSource, src.Name),
			logging.String(logging.FieldSessionID, info.ID),
		)
		return true
	case errors.Is(err, recorder.ErrAlreadyRecording):
		m.logger.Debug("source already recording", logging.String(logging.FieldSource, src.Name))
	case errors.Is(err, recorder.ErrDraining):
		m.logger.Debug("recorder shutting down; start skipped", logging.String(logging.FieldSource, src.Name))
	case errors.Is(err, recorder.ErrAtCapacity):
		logging.WarnWithContext(m.logger, "capture capacity reached; live source skipped", "capture_at_capacity",
			logging.String(logging.FieldSource, src.Name),
			logging.Int("max_concurrent", cfg.Capture.MaxConcurrent),
		)
	default:
		logging.WarnWithContext(m.logger, "recording start failed", "recording_start_failed",
			logging.String(logging.FieldSource, src.Name),
			logging.Error(err),
		)
	}
	return false
}

func (m *Monitor) notify(outcome ProbeOutcome) {
	if m.observe != nil {
		m.observe(outcome)
	}
}
