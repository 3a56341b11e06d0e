package notifications

import (
	"context"
	"log/slog"
	"time"

	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/merger"
	"streamkeep/internal/recorder"
	"streamkeep/internal/replication"
)

// Dispatcher resolves the ntfy service from the live configuration on every
// event, so topic changes applied through the daemon take effect without a
// restart. Delivery failures are logged and never returned to the caller.
type Dispatcher struct {
	current func() *config.Config
	build   func(*config.Config) Service
	logger  *slog.Logger
}

// NewDispatcher constructs a dispatcher over current.
func NewDispatcher(current func() *config.Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		current: current,
		build:   NewService,
		logger:  logging.NewComponentLogger(logger, "notifications"),
	}
}

// WithService replaces the service factory. Used by tests.
func (d *Dispatcher) WithService(svc Service) *Dispatcher {
	d.build = func(*config.Config) Service { return svc }
	return d
}

func (d *Dispatcher) service() Service {
	var cfg *config.Config
	if d.current != nil {
		cfg = d.current()
	}
	return d.build(cfg)
}

func (d *Dispatcher) report(event string, err error) {
	if err == nil {
		return
	}
	logging.WarnWithContext(d.logger, "notification delivery failed", "notification_failed",
		logging.String("notification", event),
		logging.Error(err),
		logging.String(logging.FieldImpact, "notification dropped; recording is unaffected"),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
	)
}

// SessionEnded implements recorder.Listener.
func (d *Dispatcher) SessionEnded(ctx context.Context, event recorder.SessionEnded) {
	elapsed := time.Duration(0)
	if !event.Session.StartTime.IsZero() {
		elapsed = time.Since(event.Session.StartTime)
	}
	output := event.Session.Output
	if event.Mode == recorder.ModeLowPower {
		output = ""
	}
	err := d.service().NotifyRecordingEnded(ctx, event.Source, string(event.Outcome), output, elapsed, event.Err)
	d.report("recording_ended", err)
}

// QueueProcessed is a merger pass observer.
func (d *Dispatcher) QueueProcessed(result merger.Result, took time.Duration) {
	if result.Processed == 0 {
		return
	}
	err := d.service().NotifyQueueProcessed(context.Background(), result.Merged, result.Failed, result.Empty, took)
	d.report("queue_processed", err)
}

// ReplicationObserved notifies on failed replication attempts only.
func (d *Dispatcher) ReplicationObserved(result replication.Result) {
	if result.OK() {
		return
	}
	err := d.service().NotifyReplicationFailed(context.Background(), result.Target, result.Remote, result.Err)
	d.report("replication_failed", err)
}

// Test sends a test notification and reports whether one was delivered.
func (d *Dispatcher) Test(ctx context.Context) (bool, string, error) {
	var cfg *config.Config
	if d.current != nil {
		cfg = d.current()
	}
	if !Enabled(cfg) {
		return false, "ntfy topic not configured", nil
	}
	if err := d.build(cfg).TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
