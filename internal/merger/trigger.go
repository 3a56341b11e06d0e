package merger

import (
	"context"
	"log/slog"
	"sync"

	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/recorder"
	"streamkeep/internal/services"
)

// Processor runs a merge pass.
type Processor interface {
	ProcessQueue(ctx context.Context) (Result, error)
}

// SmartTrigger merges as soon as the active set drains after a low-power
// session.
type SmartTrigger struct {
	processor Processor
	current   func() *config.Config
	logger    *slog.Logger

	mu       sync.Mutex
	lifetime context.Context
}

// NewSmartTrigger builds a trigger. Subscribe it to the recorder.
func NewSmartTrigger(p Processor, current func() *config.Config, logger *slog.Logger) *SmartTrigger {
	return &SmartTrigger{
		processor: p,
		current:   current,
		logger:    logging.NewComponentLogger(logger, "merger"),
	}
}

// ShouldTrigger reports whether event warrants an immediate merge pass.
func ShouldTrigger(cfg *config.Config, event recorder.SessionEnded) bool {
	if cfg == nil || !cfg.Processing.SmartProcessing {
		return false
	}
	return event.Mode == recorder.ModeLowPower && event.Remaining == 0
}

// Bind ties triggered passes to ctx, normally the daemon's lifetime. Session
// contexts outlive a stop, so without Bind a pass cannot be interrupted.
func (t *SmartTrigger) Bind(ctx context.Context) {
	t.mu.Lock()
	t.lifetime = ctx
	t.mu.Unlock()
}

func (t *SmartTrigger) passContext(event context.Context, source string) context.Context {
	t.mu.Lock()
	lifetime := t.lifetime
	t.mu.Unlock()
	if lifetime == nil {
		return event
	}
	return services.WithSource(lifetime, source)
}

// SessionEnded implements recorder.Listener. The pass runs synchronously on
// the ending session's goroutine.
func (t *SmartTrigger) SessionEnded(ctx context.Context, event recorder.SessionEnded) {
	if !ShouldTrigger(t.current(), event) {
		return
	}
	ctx = t.passContext(ctx, event.Source)
	if ctx.Err() != nil {
		t.logger.Info("shutting down; queued batches wait for the next pass",
			logging.String(logging.FieldSource, event.Source),
		)
		return
	}
	t.logger.Info("last low-power session ended; processing queue",
		logging.String(logging.FieldSource, event.Source),
	)
	if _, err := t.processor.ProcessQueue(ctx); err != nil {
		logging.WarnWithContext(t.logger, "smart processing failed", "smart_processing_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "batches stay queued until the next pass"),
		)
	}
}
