package merger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"streamkeep/internal/config"
	"streamkeep/internal/fileutil"
	"streamkeep/internal/logging"
	"streamkeep/internal/queue"
	"streamkeep/internal/replication"
	"streamkeep/internal/services"
)

// Store is the slice of the queue the merger consumes.
type Store interface {
	List(ctx context.Context) ([]queue.Item, error)
	Remove(ctx context.Context, id int64) error
}

// Replicator pushes merged artifacts to remote targets.
type Replicator interface {
	Replicate(ctx context.Context, path string) replication.Report
}

// Executor runs the concat tool and returns its combined output.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

// Outcome labels what happened to a single queue item.
type Outcome string

const (
	OutcomeMerged      Outcome = "merged"
	OutcomeFailed      Outcome = "failed"
	OutcomeEmpty       Outcome = "empty"
	OutcomeInterrupted Outcome = "interrupted"
)

// Result summarizes one ProcessQueue pass.
type Result struct {
	Processed   int `json:"processed"`
	Merged      int `json:"merged"`
	Failed      int `json:"failed"`
	Empty       int `json:"empty"`
	Interrupted int `json:"interrupted"`
}

// Option configures a Merger.
type Option func(*Merger)

// WithExecutor overrides how the concat tool is run.
func WithExecutor(exec Executor) Option {
	return func(m *Merger) {
		if exec != nil {
			m.exec = exec
		}
	}
}

// WithReplicator sets the replicator used for merged artifacts.
func WithReplicator(r Replicator) Option {
	return func(m *Merger) {
		m.replicator = r
	}
}

// WithObserver registers a callback invoked once per attempted item.
func WithObserver(fn func(Outcome, time.Duration)) Option {
	return func(m *Merger) {
		m.observe = fn
	}
}

// WithPassObserver registers a callback invoked after every pass that found
// at least one queued item.
func WithPassObserver(fn func(Result, time.Duration)) Option {
	return func(m *Merger) {
		m.observePass = fn
	}
}

// Merger drains the segment queue.
type Merger struct {
	mu          sync.Mutex
	store       Store
	current     func() *config.Config
	exec        Executor
	replicator  Replicator
	observe     func(Outcome, time.Duration)
	observePass func(Result, time.Duration)
	logger      *slog.Logger
}

// New constructs a Merger reading configuration through current at the start
// of every pass.
func New(store Store, current func() *config.Config, logger *slog.Logger, opts ...Option) *Merger {
	m := &Merger{
		store:   store,
		current: current,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(logger, "merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ProcessQueue runs one pass over the queue as it stands when the pass
// acquires the lock. It only returns an error when the queue cannot be read.
func (m *Merger) ProcessQueue(ctx context.Context) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := m.current()
	items, err := m.store.List(ctx)
	if err != nil {
		return Result{}, services.Wrap(services.ErrMerge, "merger", "list queue", "read segment queue", err)
	}
	result := Result{Processed: len(items)}
	if len(items) == 0 {
		m.logger.Debug("segment queue empty")
		return result, nil
	}
	m.logger.Info("processing segment queue", logging.Int("items", len(items)))

	passStarted := time.Now()
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		started := time.Now()
		outcome := m.processItem(ctx, cfg, item)
		switch outcome {
		case OutcomeMerged:
			result.Merged++
		case OutcomeFailed:
			result.Failed++
		case OutcomeEmpty:
			result.Empty++
		case OutcomeInterrupted:
			result.Interrupted++
		}
		if m.observe != nil {
			m.observe(outcome, time.Since(started))
		}
	}

	m.logger.Info("segment queue processed",
		logging.Int("processed", result.Processed),
		logging.Int("merged", result.Merged),
		logging.Int("failed", result.Failed),
		logging.Int("empty", result.Empty),
		logging.Int("interrupted", result.Interrupted),
	)
	if m.observePass != nil {
		m.observePass(result, time.Since(passStarted))
	}
	return result, nil
}

// processItem attempts a single batch and drops it from the queue, unless the
// pass was cancelled mid-merge; an interrupted batch stays queued intact.
func (m *Merger) processItem(ctx context.Context, cfg *config.Config, item queue.Item) (outcome Outcome) {
	itemCtx := services.WithSource(ctx, item.SourceName)
	logger := logging.WithContext(itemCtx, m.logger).With(
		logging.Int64(logging.FieldQueueItemID, item.ID),
		logging.String("segments_dir", item.Batch.SegmentsDir),
	)

	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "merge panicked", "merge_panic", logging.Any("panic", r))
			outcome = OutcomeFailed
		}
		if outcome == OutcomeInterrupted {
			return
		}
		if err := m.store.Remove(context.WithoutCancel(ctx), item.ID); err != nil {
			logging.ErrorWithContext(logger, "remove queue item failed", "queue_remove_failed", logging.Error(err))
		}
	}()

	segments, err := Segments(item.Batch)
	if err != nil {
		logging.WarnWithContext(logger, "segment directory unreadable", "segments_unreadable",
			logging.Error(err),
			logging.String(logging.FieldImpact, "queue item dropped without output"),
		)
		return OutcomeEmpty
	}
	if len(segments) == 0 {
		logger.Info("no segments to merge")
		return OutcomeEmpty
	}

	output := filepath.Join(cfg.Paths.RecordingsDir, item.Batch.FinalFilename)
	if err := m.merge(itemCtx, cfg, item.Batch, segments, output); err != nil {
		if ctx.Err() != nil {
			logger.Info("merge interrupted; batch stays queued", logging.Error(err))
			return OutcomeInterrupted
		}
		logging.ErrorWithContext(logger, "merge failed", "merge_failed",
			logging.Error(err),
			logging.Int("segments", len(segments)),
			logging.String(logging.FieldErrorHint, "segments were kept; concatenate them manually"),
		)
		return OutcomeFailed
	}

	if err := os.RemoveAll(item.Batch.SegmentsDir); err != nil {
		logging.WarnWithContext(logger, "segment cleanup failed", "segments_cleanup_failed", logging.Error(err))
	}
	logger.Info("segments merged",
		logging.String("output", output),
		logging.Int("segments", len(segments)),
	)

	if cfg.Replication.AutoReplicate && m.replicator != nil {
		m.replicator.Replicate(itemCtx, output)
	}
	return OutcomeMerged
}

func (m *Merger) merge(ctx context.Context, cfg *config.Config, batch queue.Batch, segments []string, output string) error {
	listPath := filepath.Join(batch.SegmentsDir, queue.ListFileName)
	if err := os.WriteFile(listPath, ConcatList(segments), 0o644); err != nil {
		return services.Wrap(services.ErrMerge, "merger", "write list", "write concat list", err)
	}
	if err := os.MkdirAll(cfg.Paths.RecordingsDir, 0o755); err != nil {
		return services.Wrap(services.ErrMerge, "merger", "prepare output", "create recordings directory", err)
	}

	args := []string{"-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", output, "-y"}
	out, err := m.exec.Run(ctx, cfg.Processing.FFmpegBinary, args)
	if err != nil {
		_ = os.Remove(output)
		msg := "concat failed"
		if tail := lastLine(out); tail != "" {
			msg = "concat failed: " + tail
		}
		return services.Wrap(services.ErrMerge, "merger", "concat", msg, err)
	}
	return nil
}

// Segments returns the batch's segment files in lexicographic order. A
// missing directory yields no segments and no error.
func Segments(batch queue.Batch) ([]string, error) {
	entries, err := fileutil.ListByExtension(batch.SegmentsDir, "."+batch.Format)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Name == queue.ListFileName {
			continue
		}
		abs, err := filepath.Abs(entry.Path)
		if err != nil {
			abs = entry.Path
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

// ConcatList renders an ffmpeg concat demuxer list.
func ConcatList(paths []string) []byte {
	var buf bytes.Buffer
	for _, path := range paths {
		fmt.Fprintf(&buf, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	return buf.Bytes()
}

func lastLine(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if idx := strings.LastIndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSpace(trimmed)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.CombinedOutput()
}
