package daemon_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/daemon"
	"streamkeep/internal/logging"
	"streamkeep/internal/queue"
	"streamkeep/internal/recorder"
	"streamkeep/internal/services"
	"streamkeep/internal/testsupport"
)

// scriptedProcess exits on release or when its context ends.
type scriptedProcess struct {
	done chan struct{}
	once sync.Once
}

func (p *scriptedProcess) Wait() error { <-p.done; return nil }
func (p *scriptedProcess) PID() int    { return 4242 }

func (p *scriptedProcess) release() { p.once.Do(func() { close(p.done) }) }

// scriptedRunner writes fake capture output, then either exits at once or
// runs until stopped.
type scriptedRunner struct {
	segments []string
	artifact string
	exitNow  bool
}

func (r scriptedRunner) Start(ctx context.Context, _ string, args []string) (capture.Process, error) {
	output := args[3]
	if strings.Contains(output, "%03d") {
		for i, payload := range r.segments {
			if err := os.WriteFile(fmt.Sprintf(output, i), []byte(payload), 0o644); err != nil {
				return nil, err
			}
		}
	} else if r.artifact != "" {
		if err := os.WriteFile(output, []byte(r.artifact), 0o644); err != nil {
			return nil, err
		}
	}
	proc := &scriptedProcess{done: make(chan struct{})}
	if r.exitNow {
		proc.release()
	} else {
		go func() {
			<-ctx.Done()
			proc.release()
		}()
	}
	return proc, nil
}

type stubProber struct {
	live map[string]bool
}

func (p stubProber) Probe(_ context.Context, address string) (capture.ProbeResult, error) {
	return capture.ProbeResult{Live: p.live[address]}, nil
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) *daemon.Daemon {
	t.Helper()
	cfg.Monitor.AutoCheckLive = false
	db := testsupport.MustOpenDB(t, cfg)
	d, err := daemon.New(config.NewHolder(cfg, ""), db, logging.NewNop(), opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if status := d.Status(ctx, false); !status.Running {
		t.Fatal("expected daemon to report running")
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if status := d.Status(ctx, false); status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonLockPreventsSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))
	second, err := daemon.New(config.NewHolder(cfg, ""), testsupport.MustOpenDB(t, cfg), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected lock contention error")
	}
}

func TestStartRecordingTwiceRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))
	ctx := context.Background()
	if _, err := d.AddSource(ctx, "alpha", "https://example.test/alpha"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	if _, err := d.StartRecording(ctx, "alpha"); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := d.StartRecording(ctx, "alpha"); !errors.Is(err, recorder.ErrAlreadyRecording) {
		t.Fatalf("second StartRecording err = %v, want ErrAlreadyRecording", err)
	}
	if status := d.Status(ctx, false); status.ActiveCount != 1 {
		t.Fatalf("active count = %d, want 1", status.ActiveCount)
	}

	views, err := d.ListSources(ctx)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(views) != 1 || !views[0].Recording || views[0].Session == nil {
		t.Fatalf("unexpected source views %+v", views)
	}

	if err := d.StopRecording("alpha"); err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	waitFor(t, "session removal", func() bool { return d.Status(ctx, false).ActiveCount == 0 })
	if err := d.StopRecording("alpha"); !errors.Is(err, recorder.ErrNotRecording) {
		t.Fatalf("StopRecording idle err = %v, want ErrNotRecording", err)
	}
}

func TestStartRecordingUnknownSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))
	if _, err := d.StartRecording(context.Background(), "ghost"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestLowPowerSessionQueuesAndMerges(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithLowPowerMode(),
		testsupport.WithSmartProcessing(false),
		testsupport.WithConcatStub(),
	)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{segments: []string{"s0", "s1", "s2"}, exitNow: true}))
	ctx := context.Background()
	if _, err := d.AddSource(ctx, "alpha", "https://example.test/alpha"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	info, err := d.StartRecording(ctx, "alpha")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	waitFor(t, "queued batch", func() bool { return d.Status(ctx, false).QueueLength == 1 })

	entries, err := d.QueueItems(ctx)
	if err != nil {
		t.Fatalf("QueueItems: %v", err)
	}
	if len(entries) != 1 || entries[0].SegmentCount != 3 {
		t.Fatalf("unexpected queue entries %+v", entries)
	}

	result, err := d.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue: %v", err)
	}
	if result.Processed != 1 || result.Merged != 1 {
		t.Fatalf("unexpected result %+v", result)
	}

	final := filepath.Join(cfg.Paths.RecordingsDir, filepath.Base(info.SegmentsDir)+".mp4")
	content, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("read final artifact: %v", err)
	}
	if string(content) != "s0s1s2" {
		t.Fatalf("final content = %q", content)
	}
	if _, err := os.Stat(info.SegmentsDir); !os.IsNotExist(err) {
		t.Fatalf("segments dir should be gone, stat err = %v", err)
	}
}

func TestSmartProcessingMergesWhenLastSessionEnds(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithLowPowerMode(),
		testsupport.WithSmartProcessing(true),
		testsupport.WithConcatStub(),
	)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{segments: []string{"a", "b"}, exitNow: true}))
	ctx := context.Background()
	if _, err := d.AddSource(ctx, "alpha", "https://example.test/alpha"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	info, err := d.StartRecording(ctx, "alpha")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	final := filepath.Join(cfg.Paths.RecordingsDir, filepath.Base(info.SegmentsDir)+".mp4")
	waitFor(t, "smart merge", func() bool {
		status := d.Status(ctx, false)
		if status.ActiveCount != 0 || status.QueueLength != 0 {
			return false
		}
		_, err := os.Stat(final)
		return err == nil
	})
	if _, err := os.Stat(info.SegmentsDir); !os.IsNotExist(err) {
		t.Fatalf("segments dir should be gone, stat err = %v", err)
	}
}

func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()
	port, _ := strconv.Atoi(portStr)
	return port
}

func TestNormalSessionWithUnreachableTarget(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAutoReplicate())
	cfg.Replication.FTP = config.FTP{Enabled: true, Host: "127.0.0.1", Port: closedPort(t), Path: "/", Timeout: 2}
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{artifact: "video", exitNow: true}))
	ctx := context.Background()
	if _, err := d.AddSource(ctx, "beta", "https://example.test/beta"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	info, err := d.StartRecording(ctx, "beta")
	if err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	waitFor(t, "session end", func() bool { return d.Status(ctx, false).ActiveCount == 0 })

	if _, err := os.Stat(info.Output); err != nil {
		t.Fatalf("artifact should remain locally: %v", err)
	}
	families, err := d.Metrics().Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	failures := 0.0
	for _, family := range families {
		if family.GetName() != "streamkeep_replications_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == "failure" {
					failures += metric.GetCounter().GetValue()
				}
			}
		}
	}
	if failures != 1 {
		t.Fatalf("replication failures = %v, want 1", failures)
	}
	recordings, err := d.ListRecordings()
	if err != nil || len(recordings) != 1 {
		t.Fatalf("ListRecordings = %+v, %v", recordings, err)
	}
}

func TestProcessQueueReportsQueueLength(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConcatStub())
	db := testsupport.MustOpenDB(t, cfg)
	cfg.Monitor.AutoCheckLive = false
	d, err := daemon.New(config.NewHolder(cfg, ""), db, logging.NewNop(), daemon.WithRunner(scriptedRunner{}))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	store := queue.NewStore(db)
	ctx := context.Background()
	for i, name := range []string{"alpha", "beta", "gamma"} {
		batch := queue.NewBatch(cfg.Paths.SegmentsDir, name, "mp4", time.Date(2024, 1, 1, 0, 0, i, 0, time.Local))
		testsupport.WriteSegments(t, batch.SegmentsDir, batch.Stem(), "mp4", "x")
		if _, err := store.Enqueue(ctx, name, batch); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	before := d.Status(ctx, false).QueueLength
	result, err := d.ProcessQueue(ctx)
	if err != nil {
		t.Fatalf("ProcessQueue: %v", err)
	}
	if result.Processed != before || before != 3 {
		t.Fatalf("processed %d, queue length before %d", result.Processed, before)
	}
}

func TestRemoveSourceByIDOrName(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))
	ctx := context.Background()
	alpha, err := d.AddSource(ctx, "alpha", "https://example.test/alpha")
	if err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	if _, err := d.AddSource(ctx, "beta", "https://example.test/beta"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}

	if err := d.RemoveSource(ctx, strconv.FormatInt(alpha.ID, 10)); err != nil {
		t.Fatalf("RemoveSource by id: %v", err)
	}
	if err := d.RemoveSource(ctx, "beta"); err != nil {
		t.Fatalf("RemoveSource by name: %v", err)
	}
	if err := d.RemoveSource(ctx, "beta"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("RemoveSource missing err = %v", err)
	}
	views, _ := d.ListSources(ctx)
	if len(views) != 0 {
		t.Fatalf("expected no sources, got %+v", views)
	}
}

func TestCheckLiveUsesProber(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg,
		daemon.WithRunner(scriptedRunner{}),
		daemon.WithProber(stubProber{live: map[string]bool{"https://example.test/alpha": true}}),
	)
	ctx := context.Background()
	if _, err := d.AddSource(ctx, "alpha", "https://example.test/alpha"); err != nil {
		t.Fatalf("AddSource: %v", err)
	}
	res, err := d.CheckLive(ctx, "alpha")
	if err != nil || !res.Live {
		t.Fatalf("CheckLive = %+v, %v", res, err)
	}
}

func TestRecordingsListingAndPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))

	older := filepath.Join(cfg.Paths.RecordingsDir, "alpha_20240101_000000.mp4")
	newer := filepath.Join(cfg.Paths.RecordingsDir, "beta_20240102_000000.mkv")
	testsupport.WriteFile(t, older, 10)
	testsupport.WriteFile(t, newer, 20)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.RecordingsDir, "notes.txt"), 5)
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	recordings, err := d.ListRecordings()
	if err != nil {
		t.Fatalf("ListRecordings: %v", err)
	}
	if len(recordings) != 2 || recordings[0].Name != "beta_20240102_000000.mkv" {
		t.Fatalf("unexpected recordings %+v", recordings)
	}

	path, err := d.RecordingPath("alpha_20240101_000000.mp4")
	if err != nil || path != older {
		t.Fatalf("RecordingPath = %q, %v", path, err)
	}
	if _, err := d.RecordingPath("../state/streamkeep.db"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("traversal err = %v, want validation error", err)
	}
	if _, err := d.RecordingPath("missing.mp4"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing err = %v, want not found", err)
	}
}

func TestUpdateSettingsValidatesAndApplies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newDaemon(t, cfg, daemon.WithRunner(scriptedRunner{}))

	next := d.Settings()
	next.Capture.Format = "avi"
	if _, err := d.UpdateSettings(next); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("invalid update err = %v", err)
	}
	if d.Settings().Capture.Format != "mp4" {
		t.Fatal("invalid update must not change settings")
	}

	next = d.Settings()
	next.Capture.Quality = "720p"
	next.Processing.AutoProcessTime = ""
	updated, err := d.UpdateSettings(next)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Capture.Quality != "720p" || d.Settings().Capture.Quality != "720p" {
		t.Fatal("expected quality update to apply")
	}
	if d.Status(context.Background(), false).NextMerge != nil {
		t.Fatal("clearing auto_process_time should disable the schedule")
	}
}
