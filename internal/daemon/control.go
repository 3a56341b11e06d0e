package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/deps"
	"streamkeep/internal/fileutil"
	"streamkeep/internal/logging"
	"streamkeep/internal/merger"
	"streamkeep/internal/preflight"
	"streamkeep/internal/queue"
	"streamkeep/internal/recorder"
	"streamkeep/internal/services"
	"streamkeep/internal/sources"
)

// recordingExtensions are the artifact types ListRecordings reports.
var recordingExtensions = []string{".mp4", ".mkv", ".flv"}

// SourceView is a registered source with its current recording state.
type SourceView struct {
	sources.Source
	Recording bool                  `json:"recording"`
	Session   *recorder.SessionInfo `json:"session,omitempty"`
}

// QueueEntry is a queued batch plus how many segments it currently holds.
type QueueEntry struct {
	queue.Item
	SegmentCount int `json:"segment_count"`
}

// Recording describes one finished artifact in the recordings directory.
type Recording struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Status is a snapshot of daemon runtime state.
type Status struct {
	Running         bool                   `json:"running"`
	PID             int                    `json:"pid"`
	ActiveCount     int                    `json:"active_count"`
	Sessions        []recorder.SessionInfo `json:"sessions"`
	QueueLength     int                    `json:"queue_length"`
	ActiveBatches   int                    `json:"active_batches"`
	MonitorRunning  bool                   `json:"monitor_running"`
	LowPowerMode    bool                   `json:"low_power_mode"`
	SmartProcessing bool                   `json:"smart_processing"`
	AutoReplicate   bool                   `json:"auto_replicate"`
	NextMerge       *time.Time             `json:"next_merge,omitempty"`
	DatabasePath    string                 `json:"database_path"`
	LockPath        string                 `json:"lock_path"`
	Dependencies    []deps.Status          `json:"dependencies"`
	Checks          []preflight.Result     `json:"checks,omitempty"`
	QueueBySource   map[string]int         `json:"queue_by_source,omitempty"`
}

// ListSources returns every registered source annotated with its session.
func (d *Daemon) ListSources(ctx context.Context) ([]SourceView, error) {
	list, err := d.sources.List(ctx)
	if err != nil {
		return nil, err
	}
	active := make(map[string]recorder.SessionInfo)
	for _, info := range d.recorder.Active() {
		active[info.Source] = info
	}
	views := make([]SourceView, 0, len(list))
	for _, src := range list {
		view := SourceView{Source: src}
		if info, ok := active[src.Name]; ok {
			view.Recording = true
			view.Session = &info
		}
		views = append(views, view)
	}
	return views, nil
}

// AddSource registers a new source.
func (d *Daemon) AddSource(ctx context.Context, name, address string) (*sources.Source, error) {
	src, err := d.sources.Add(ctx, name, address)
	if err != nil {
		return nil, err
	}
	d.logger.Info("source added",
		logging.String(logging.FieldSource, src.Name),
		logging.Int64("source_id", src.ID),
	)
	return src, nil
}

// RemoveSource deletes a source by numeric id or by name. A session in
// flight for the source is asked to stop first.
func (d *Daemon) RemoveSource(ctx context.Context, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return services.Wrap(services.ErrValidation, "daemon", "remove source", "source id or name is required", nil)
	}
	src, err := d.lookupSource(ctx, ref)
	if err != nil {
		return err
	}
	if d.recorder.IsRecording(src.Name) {
		_ = d.recorder.Stop(src.Name)
	}
	if _, err := d.sources.Remove(ctx, src.ID); err != nil {
		return err
	}
	d.logger.Info("source removed", logging.String(logging.FieldSource, src.Name))
	return nil
}

func (d *Daemon) lookupSource(ctx context.Context, ref string) (*sources.Source, error) {
	var (
		src *sources.Source
		err error
	)
	if id, convErr := strconv.ParseInt(ref, 10, 64); convErr == nil {
		src, err = d.sources.GetByID(ctx, id)
		if err == nil && src == nil {
			src, err = d.sources.GetByName(ctx, ref)
		}
	} else {
		src, err = d.sources.GetByName(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "lookup source", fmt.Sprintf("unknown source %q", ref), nil)
	}
	return src, nil
}

// StartRecording begins a capture for the named source.
func (d *Daemon) StartRecording(ctx context.Context, name string) (recorder.SessionInfo, error) {
	src, err := d.lookupSource(ctx, name)
	if err != nil {
		return recorder.SessionInfo{}, err
	}
	return d.recorder.Start(ctx, *src, d.holder.Current())
}

// StopRecording requests the named source's session to end.
func (d *Daemon) StopRecording(name string) error {
	return d.recorder.Stop(strings.TrimSpace(name))
}

// CheckLive probes the named source once.
func (d *Daemon) CheckLive(ctx context.Context, name string) (capture.ProbeResult, error) {
	src, err := d.lookupSource(ctx, name)
	if err != nil {
		return capture.ProbeResult{}, err
	}
	prober := d.prober
	if prober == nil {
		cfg := d.holder.Current()
		prober = capture.NewProbe(cfg.Capture.Binary, time.Duration(cfg.Monitor.ProbeTimeout)*time.Second)
	}
	return prober.Probe(ctx, src.Address)
}

// Status reports runtime state. Dependency and target checks are included
// only when withChecks is set because they shell out and dial.
func (d *Daemon) Status(ctx context.Context, withChecks bool) Status {
	cfg := d.holder.Current()
	status := Status{
		Running:         d.running.Load(),
		PID:             PID(),
		ActiveCount:     d.recorder.Count(),
		Sessions:        d.recorder.Active(),
		ActiveBatches:   d.recorder.ActiveBatches(),
		MonitorRunning:  d.monitor.Running(),
		LowPowerMode:    cfg.Capture.LowPowerMode,
		SmartProcessing: cfg.Processing.SmartProcessing,
		AutoReplicate:   cfg.Replication.AutoReplicate,
		DatabasePath:    d.db.Path(),
		LockPath:        d.lockPath,
	}
	if n, err := d.queue.Count(ctx); err == nil {
		status.QueueLength = n
	} else {
		d.logger.Warn("queue count failed", logging.Error(err))
	}
	if bySource, err := d.queue.CountBySource(ctx); err == nil && len(bySource) > 0 {
		status.QueueBySource = bySource
	}
	if next := d.scheduler.Next(); !next.IsZero() {
		status.NextMerge = &next
	}
	if withChecks {
		status.Dependencies = preflight.CheckSystemDeps(ctx, cfg)
		status.Checks = preflight.RunAll(ctx, cfg)
	}
	return status
}

// ProcessQueue runs a merge pass now.
func (d *Daemon) ProcessQueue(ctx context.Context) (merger.Result, error) {
	d.logger.Info("manual queue processing requested")
	return d.merger.ProcessQueue(ctx)
}

// QueueItems lists queued batches with their current segment counts.
func (d *Daemon) QueueItems(ctx context.Context) ([]QueueEntry, error) {
	items, err := d.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]QueueEntry, 0, len(items))
	for _, item := range items {
		segments, err := merger.Segments(item.Batch)
		if err != nil {
			segments = nil
		}
		entries = append(entries, QueueEntry{Item: item, SegmentCount: len(segments)})
	}
	return entries, nil
}

// ListRecordings returns finished artifacts, newest first.
func (d *Daemon) ListRecordings() ([]Recording, error) {
	dir := d.holder.Current().Paths.RecordingsDir
	entries, err := fileutil.ListByExtension(dir, recordingExtensions...)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Recording{}, nil
		}
		return nil, err
	}
	out := make([]Recording, 0, len(entries))
	for _, entry := range entries {
		out = append(out, Recording{Name: entry.Name, Size: entry.Size, ModTime: entry.ModTime})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

// RecordingPath resolves name to an artifact within the recordings
// directory, rejecting anything that would escape it.
func (d *Daemon) RecordingPath(name string) (string, error) {
	dir := d.holder.Current().Paths.RecordingsDir
	path, err := fileutil.ResolveWithin(dir, name)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "daemon", "recording path", "invalid recording name", err)
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", services.Wrap(services.ErrNotFound, "daemon", "recording path", fmt.Sprintf("recording %q not found", name), nil)
	}
	return path, nil
}

// Settings returns the active configuration.
func (d *Daemon) Settings() config.Config {
	return *d.holder.Current()
}

// UpdateSettings validates, persists, and applies next.
func (d *Daemon) UpdateSettings(next config.Config) (*config.Config, error) {
	updated, err := d.holder.Update(next)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "update settings", "invalid configuration", err)
	}
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if err := d.applyConfig(updated); err != nil {
		return updated, err
	}
	d.logger.Info("settings updated", logging.String("path", d.holder.Path()))
	return updated, nil
}

// ReloadConfig re-reads the configuration file and applies it.
func (d *Daemon) ReloadConfig() (*config.Config, error) {
	reloaded, err := d.holder.Reload()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "reload config", "reload failed", err)
	}
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if err := d.applyConfig(reloaded); err != nil {
		return reloaded, err
	}
	d.logger.Info("configuration reloaded", logging.String("path", d.holder.Path()))
	return reloaded, nil
}

// TestNotification sends a test message through the configured ntfy topic.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	return d.notifier.Test(ctx)
}
