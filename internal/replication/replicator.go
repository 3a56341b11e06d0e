package replication

import (
	"context"
	"log/slog"
	"os"
	"time"

	"streamkeep/internal/config"
	"streamkeep/internal/logging"
	"streamkeep/internal/services"
)

// Target is one remote destination.
type Target interface {
	Kind() string
	Host() string
	// Upload copies localPath and returns the remote location written.
	Upload(ctx context.Context, localPath string) (string, error)
}

// Result captures the outcome for a single target.
type Result struct {
	Target   string        `json:"target"`
	Host     string        `json:"host"`
	Remote   string        `json:"remote,omitempty"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
	Err      error         `json:"-"`
}

// OK reports whether the upload succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Report summarizes one Replicate call.
type Report struct {
	Path    string   `json:"path"`
	Results []Result `json:"results"`
}

// Failures counts targets that failed.
func (r Report) Failures() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// Option configures a Replicator.
type Option func(*Replicator)

// WithTargets replaces config-derived targets with a fixed list.
func WithTargets(targets ...Target) Option {
	return func(r *Replicator) {
		fixed := append([]Target(nil), targets...)
		r.targets = func(*config.Config) []Target { return fixed }
	}
}

// WithObserver registers a callback invoked after every target attempt.
func WithObserver(fn func(Result)) Option {
	return func(r *Replicator) {
		r.observe = fn
	}
}

// Replicator fans an artifact out to every enabled target.
type Replicator struct {
	current func() *config.Config
	targets func(*config.Config) []Target
	observe func(Result)
	logger  *slog.Logger
}

// New constructs a Replicator reading targets from current on each call.
func New(current func() *config.Config, logger *slog.Logger, opts ...Option) *Replicator {
	r := &Replicator{
		current: current,
		targets: TargetsFromConfig,
		logger:  logging.NewComponentLogger(logger, "replication"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TargetsFromConfig returns the enabled targets in configuration order.
func TargetsFromConfig(cfg *config.Config) []Target {
	if cfg == nil {
		return nil
	}
	var targets []Target
	if cfg.Replication.FTP.Enabled {
		targets = append(targets, NewFTPTarget(cfg.Replication.FTP))
	}
	if cfg.Replication.SMB.Enabled {
		targets = append(targets, NewSMBTarget(cfg.Replication.SMB))
	}
	if cfg.Replication.S3.Enabled {
		targets = append(targets, NewS3Target(cfg.Replication.S3))
	}
	return targets
}

// Replicate uploads path to each target independently.
func (r *Replicator) Replicate(ctx context.Context, path string) Report {
	report := Report{Path: path}
	var cfg *config.Config
	if r.current != nil {
		cfg = r.current()
	}
	targets := r.targets(cfg)
	if len(targets) == 0 {
		r.logger.Debug("no replication targets enabled", logging.String("path", path))
		return report
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	for _, target := range targets {
		started := time.Now()
		remote, err := target.Upload(ctx, path)
		result := Result{
			Target:   target.Kind(),
			Host:     target.Host(),
			Remote:   remote,
			Duration: time.Since(started),
		}
		if err != nil {
			result.Err = services.Wrap(services.ErrReplication, "replication", target.Kind(), "upload to "+target.Host(), err)
			result.Error = result.Err.Error()
			logging.WarnWithContext(r.logger, "replication failed", "replication_failed",
				logging.String("target", target.Kind()),
				logging.String("host", target.Host()),
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check target credentials and connectivity"),
				logging.String(logging.FieldImpact, "artifact remains available locally"),
			)
		} else {
			result.Bytes = size
			r.logger.Info("replication succeeded",
				logging.String("target", target.Kind()),
				logging.String("host", target.Host()),
				logging.String("remote", remote),
				logging.Int64("bytes", size),
				logging.Duration("duration", result.Duration),
			)
		}
		if r.observe != nil {
			r.observe(result)
		}
		report.Results = append(report.Results, result)
	}
	return report
}
