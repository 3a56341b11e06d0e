package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/queue"
	"streamkeep/internal/replication"
	"streamkeep/internal/services"
	"streamkeep/internal/sources"
)

// Enqueuer accepts finished low-power batches.
type Enqueuer interface {
	Enqueue(ctx context.Context, source string, batch queue.Batch) (*queue.Item, error)
}

// Replicator pushes a finished artifact to remote targets.
type Replicator interface {
	Replicate(ctx context.Context, path string) replication.Report
}

// SessionEnded is published after a session has been removed from the
// ActiveSet.
type SessionEnded struct {
	Session   SessionInfo
	Source    string
	Mode      Mode
	Outcome   Outcome
	Err       error
	Remaining int
}

// Listener receives SessionEnded events on the session's goroutine.
type Listener interface {
	SessionEnded(ctx context.Context, event SessionEnded)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, event SessionEnded)

// SessionEnded calls f.
func (f ListenerFunc) SessionEnded(ctx context.Context, event SessionEnded) { f(ctx, event) }

// Option configures a Controller.
type Option func(*Controller)

// WithClock overrides the time source used for file naming.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithReplicator sets the replicator used for normal-mode artifacts.
func WithReplicator(r Replicator) Option {
	return func(c *Controller) {
		c.replicator = r
	}
}

// WithCurrentConfig sets the source of live configuration consulted when a
// session ends. Without it the snapshot taken at Start is used.
func WithCurrentConfig(current func() *config.Config) Option {
	return func(c *Controller) {
		c.current = current
	}
}

// Controller starts, stops, and supervises capture sessions.
type Controller struct {
	runner     capture.Runner
	queue      Enqueuer
	replicator Replicator
	active     *ActiveSet
	logger     *slog.Logger
	now        func() time.Time
	current    func() *config.Config

	listenersMu sync.RWMutex
	listeners   []Listener

	// lifecycle is held shared by Start and exclusively by Drain, so no
	// session is added to wg while Drain is waiting on it.
	lifecycle sync.RWMutex
	draining  bool

	wg sync.WaitGroup
}

// New constructs a controller.
func New(runner capture.Runner, enqueuer Enqueuer, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		runner: runner,
		queue:  enqueuer,
		active: NewActiveSet(),
		logger: logging.NewComponentLogger(logger, "recorder"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a listener for session completion events.
func (c *Controller) Subscribe(l Listener) {
	if l == nil {
		return
	}
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, l)
	c.listenersMu.Unlock()
}

// Start begins capturing src using cfg. The session is registered before
// Start returns; a spawn failure releases the slot and returns a capture
// error.
func (c *Controller) Start(ctx context.Context, src sources.Source, cfg *config.Config) (SessionInfo, error) {
	if cfg == nil {
		return SessionInfo{}, services.Wrap(services.ErrConfiguration, "recorder", "start", "config is nil", nil)
	}
	if src.Name == "" || src.Address == "" {
		return SessionInfo{}, services.Wrap(services.ErrValidation, "recorder", "start", "source name and address are required", nil)
	}

	c.lifecycle.RLock()
	defer c.lifecycle.RUnlock()
	if c.draining {
		return SessionInfo{}, ErrDraining
	}

	start := c.now()
	mode := ModeNormal
	if cfg.Capture.LowPowerMode {
		mode = ModeLowPower
	}

	info := SessionInfo{
		ID:        uuid.NewString(),
		Source:    src.Name,
		Address:   src.Address,
		Mode:      mode,
		StartTime: start,
	}
	var (
		batch  *queue.Batch
		outDir string
	)
	if mode == ModeLowPower {
		b := queue.NewBatch(cfg.Paths.SegmentsDir, src.Name, cfg.Capture.Format, start)
		batch = &b
		info.Output = b.SegmentPattern()
		info.SegmentsDir = b.SegmentsDir
		outDir = b.SegmentsDir
	} else {
		info.Output = filepath.Join(cfg.Paths.RecordingsDir,
			fmt.Sprintf("%s_%s.%s", src.Name, start.Format(queue.TimestampLayout), cfg.Capture.Format))
		outDir = cfg.Paths.RecordingsDir
	}

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sessionCtx = services.WithSessionID(services.WithSource(sessionCtx, src.Name), info.ID)
	session := newSession(info, batch, cancel)

	if err := c.active.InsertIfAbsent(session, cfg.Capture.MaxConcurrent); err != nil {
		cancel()
		return SessionInfo{}, err
	}

	logger := logging.WithContext(sessionCtx, c.logger)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		c.abortStart(session, batch)
		return SessionInfo{}, services.Wrap(services.ErrCapture, "recorder", "start", "create output directory", err)
	}

	req := capture.Request{
		Address:         src.Address,
		Quality:         cfg.Capture.Quality,
		Output:          info.Output,
		LowPower:        mode == ModeLowPower,
		RetryStreams:    cfg.Capture.RetryStreams,
		RetryMax:        cfg.Capture.RetryMax,
		SegmentTimeout:  cfg.Capture.SegmentTimeout,
		SegmentAttempts: cfg.Capture.SegmentAttempts,
	}
	proc, err := c.runner.Start(sessionCtx, cfg.Capture.Binary, req.Args())
	if err != nil {
		c.abortStart(session, batch)
		logging.ErrorWithContext(logger, "capture spawn failed", "capture_spawn_failed",
			logging.String("binary", cfg.Capture.Binary),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the capture binary is installed and on PATH"),
		)
		return SessionInfo{}, services.Wrap(services.ErrCapture, "recorder", "start", "spawn "+cfg.Capture.Binary, err)
	}
	session.markRecording(proc.PID())

	logger.Info("recording started",
		logging.String("mode", string(mode)),
		logging.String("output", info.Output),
		logging.Int("pid", proc.PID()),
	)

	snapshot := *cfg
	c.wg.Add(1)
	go c.supervise(sessionCtx, session, proc, &snapshot, logger)

	return session.Info(), nil
}

// abortStart releases a slot reserved by Start before any process ran.
func (c *Controller) abortStart(s *Session, batch *queue.Batch) {
	s.mu.Lock()
	s.info.State = StateFailed
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if batch != nil {
		// Only removes the directory when nothing was written into it.
		_ = os.Remove(batch.SegmentsDir)
	}
	c.active.Remove(s)
}

// Stop requests termination of the session for name. It does not wait for
// the process to exit.
func (c *Controller) Stop(name string) error {
	session, ok := c.active.Get(name)
	if !ok {
		return ErrNotRecording
	}
	if session.requestStop() {
		c.logger.Info("recording stop requested",
			logging.String(logging.FieldSource, name),
			logging.String(logging.FieldSessionID, session.Info().ID),
		)
	}
	return nil
}

// StopAll requests termination of every session.
func (c *Controller) StopAll() {
	for _, info := range c.active.Snapshot() {
		_ = c.Stop(info.Source)
	}
}

// Wait blocks until every supervised session has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Drain stops every session and waits for all of them to finish. Starts
// during the drain fail with ErrDraining; afterwards the controller accepts
// sessions again.
func (c *Controller) Drain() {
	c.lifecycle.Lock()
	c.draining = true
	c.lifecycle.Unlock()

	c.StopAll()
	c.wg.Wait()

	c.lifecycle.Lock()
	c.draining = false
	c.lifecycle.Unlock()
}

// Active returns views of all sessions in the ActiveSet.
func (c *Controller) Active() []SessionInfo {
	return c.active.Snapshot()
}

// Count returns the number of sessions in the ActiveSet.
func (c *Controller) Count() int {
	return c.active.Len()
}

// IsRecording reports whether name has a session.
func (c *Controller) IsRecording(name string) bool {
	return c.active.Has(name)
}

// ActiveBatches returns the number of sessions currently writing segments.
func (c *Controller) ActiveBatches() int {
	n := 0
	for _, info := range c.active.Snapshot() {
		if info.Mode == ModeLowPower {
			n++
		}
	}
	return n
}

func (c *Controller) supervise(ctx context.Context, s *Session, proc capture.Process, cfg *config.Config, logger *slog.Logger) {
	defer c.wg.Done()
	defer s.cancel()

	waitErr := proc.Wait()
	outcome := s.finish(waitErr)
	info := s.Info()

	var sessionErr error
	switch outcome {
	case OutcomeFailed:
		sessionErr = services.Wrap(services.ErrCapture, "recorder", "capture", "capture process exited abnormally", waitErr)
		logging.WarnWithContext(logger, "recording failed", "capture_failed",
			logging.Error(waitErr),
			logging.Duration("elapsed", time.Since(info.StartTime)),
			logging.String(logging.FieldErrorHint, "inspect capture output at debug level"),
			logging.String(logging.FieldImpact, "recording ended early; partial output is still processed"),
		)
	default:
		logger.Info("recording ended",
			logging.String("outcome", string(outcome)),
			logging.Duration("elapsed", time.Since(info.StartTime)),
		)
	}

	// A stop cancels ctx; post-processing must still run to completion.
	finCtx := context.WithoutCancel(ctx)
	c.finalize(finCtx, s, cfg, logger)

	remaining, _ := c.active.Remove(s)

	c.publish(finCtx, SessionEnded{
		Session:   info,
		Source:    info.Source,
		Mode:      info.Mode,
		Outcome:   outcome,
		Err:       sessionErr,
		Remaining: remaining,
	}, logger)
}

// finalize routes session output. Panics are contained so the session entry
// is always removed afterwards.
func (c *Controller) finalize(ctx context.Context, s *Session, cfg *config.Config, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "session finalization panicked", "finalize_panic",
				logging.Any("panic", r))
		}
	}()

	info := s.Info()
	if info.Mode == ModeLowPower {
		if s.batch == nil || c.queue == nil {
			return
		}
		item, err := c.queue.Enqueue(ctx, info.Source, *s.batch)
		if err != nil {
			logging.ErrorWithContext(logger, "enqueue segment batch failed", "queue_enqueue_failed",
				logging.Error(err),
				logging.String("segments_dir", s.batch.SegmentsDir),
				logging.String(logging.FieldErrorHint, "segments remain on disk; merge them manually"),
			)
			return
		}
		logger.Info("segment batch queued",
			logging.Int64(logging.FieldQueueItemID, item.ID),
			logging.String("segments_dir", item.Batch.SegmentsDir),
		)
		return
	}

	if c.current != nil {
		if live := c.current(); live != nil {
			cfg = live
		}
	}
	if !cfg.Replication.AutoReplicate || c.replicator == nil {
		return
	}
	if _, err := os.Stat(info.Output); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Debug("no artifact to replicate", logging.String("output", info.Output))
			return
		}
		logging.WarnWithContext(logger, "artifact stat failed", "artifact_stat_failed", logging.Error(err))
		return
	}
	c.replicator.Replicate(ctx, info.Output)
}

func (c *Controller) publish(ctx context.Context, event SessionEnded, logger *slog.Logger) {
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.ErrorWithContext(logger, "session listener panicked", "listener_panic",
						logging.Any("panic", r))
				}
			}()
			l.SessionEnded(ctx, event)
		}()
	}
}
