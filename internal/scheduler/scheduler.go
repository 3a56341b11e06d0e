package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/merger"
)

// Scheduler owns one daily cron entry.
type Scheduler struct {
	mu       sync.Mutex
	cron     *cron.Cron
	clock    string
	schedule cron.Schedule
	job      merger.Processor
	logger   *slog.Logger
	running  bool
	now      func() time.Time
}

// Daily builds a scheduler for clock (HH:MM). An empty clock yields a
// disabled scheduler whose Start is a no-op.
func Daily(clock string, job merger.Processor, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		job:    job,
		logger: logging.NewComponentLogger(logger, "scheduler"),
		now:    time.Now,
	}
	if err := s.setClock(clock); err != nil {
		return nil, err
	}
	return s, nil
}

// Spec converts HH:MM into a standard five-field cron expression.
func Spec(clock string) (string, error) {
	hour, minute, err := config.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

func (s *Scheduler) setClock(clock string) error {
	clock = strings.TrimSpace(clock)
	if clock == "" {
		s.clock, s.schedule = "", nil
		return nil
	}
	spec, err := Spec(clock)
	if err != nil {
		return err
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	s.clock, s.schedule = clock, schedule
	return nil
}

// Enabled reports whether a daily time is configured.
func (s *Scheduler) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule != nil
}

// Clock returns the configured HH:MM value.
func (s *Scheduler) Clock() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock
}

// Start registers the cron entry and starts the cron goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *Scheduler) startLocked() {
	if s.running || s.schedule == nil {
		return
	}
	adapter := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(time.Local),
		cron.WithLogger(adapter),
		cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
	)
	c.Schedule(s.schedule, cron.FuncJob(s.run))
	c.Start()
	s.cron = c
	s.running = true
	s.logger.Info("daily processing scheduled",
		logging.String("time", s.clock),
		logging.String("next", s.schedule.Next(s.now()).Format(time.RFC3339)),
	)
}

// Stop removes the entry and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
}

// Reschedule swaps in a new daily time, restarting the cron goroutine when it
// was running. An invalid clock leaves the current schedule in place.
func (s *Scheduler) Reschedule(clock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(clock) == s.clock {
		return nil
	}
	prevClock, prevSchedule := s.clock, s.schedule
	if err := s.setClock(clock); err != nil {
		s.clock, s.schedule = prevClock, prevSchedule
		return err
	}
	if s.running {
		s.stopLocked()
		s.startLocked()
	}
	return nil
}

// Next returns the next fire time, or the zero time when disabled.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(s.now())
}

func (s *Scheduler) run() {
	s.logger.Info("scheduled processing started")
	result, err := s.job.ProcessQueue(context.Background())
	if err != nil {
		logging.WarnWithContext(s.logger, "scheduled processing failed", "scheduled_processing_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queued batches wait for the next trigger"),
		)
		return
	}
	s.logger.Info("scheduled processing finished",
		logging.Int("processed", result.Processed),
		logging.Int("merged", result.Merged),
		logging.Int("failed", result.Failed),
	)
}

// cronLogger routes cron's internal logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{logging.Error(err)}, keysAndValues...)...)
}
