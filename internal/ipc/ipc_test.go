package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/daemon"
	"streamkeep/internal/ipc"
	"streamkeep/internal/logging"
	"streamkeep/internal/testsupport"
)

type idleProcess struct{ done chan struct{} }

func (p idleProcess) Wait() error { <-p.done; return nil }
func (p idleProcess) PID() int    { return 99 }

// idleRunner starts processes that run until their context ends.
type idleRunner struct{}

func (idleRunner) Start(ctx context.Context, _ string, _ []string) (capture.Process, error) {
	proc := idleProcess{done: make(chan struct{})}
	go func() {
		<-ctx.Done()
		close(proc.done)
	}()
	return proc, nil
}

type fixedProber struct{ live bool }

func (p fixedProber) Probe(context.Context, string) (capture.ProbeResult, error) {
	return capture.ProbeResult{Live: p.live, Streams: []string{"best"}}, nil
}

func startServer(t *testing.T, cfg *config.Config, opts ...ipc.ServerOption) (*daemon.Daemon, *ipc.Client) {
	t.Helper()
	cfg.Monitor.AutoCheckLive = false
	db := testsupport.MustOpenDB(t, cfg)
	d, err := daemon.New(config.NewHolder(cfg, ""), db, logging.NewNop(),
		daemon.WithRunner(idleRunner{}),
		daemon.WithProber(fixedProber{live: true}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop(), opts...)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(cfg.SocketPath())
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return d, client
}

func TestIPCSourcesAndRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)

	added, err := client.SourceAdd("alpha", "https://example.test/alpha")
	if err != nil {
		t.Fatalf("SourceAdd: %v", err)
	}
	if added.Source.Name != "alpha" || added.Source.ID == 0 {
		t.Fatalf("unexpected source %+v", added.Source)
	}
	if _, err := client.SourceAdd("alpha", "https://example.test/other"); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}

	live, err := client.CheckLive("alpha")
	if err != nil || !live.Result.Live {
		t.Fatalf("CheckLive = %+v, %v", live, err)
	}

	started, err := client.RecordStart("alpha")
	if err != nil {
		t.Fatalf("RecordStart: %v", err)
	}
	if started.Session.Source != "alpha" || started.Session.Output == "" {
		t.Fatalf("unexpected session %+v", started.Session)
	}
	if _, err := client.RecordStart("alpha"); err == nil || !strings.Contains(err.Error(), "already recording") {
		t.Fatalf("expected already recording error, got %v", err)
	}

	list, err := client.SourceList()
	if err != nil {
		t.Fatalf("SourceList: %v", err)
	}
	if len(list.Sources) != 1 || !list.Sources[0].Recording {
		t.Fatalf("unexpected sources %+v", list.Sources)
	}

	status, err := client.Status(false)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Status.ActiveCount != 1 || len(status.Status.Sessions) != 1 {
		t.Fatalf("unexpected status %+v", status.Status)
	}

	if _, err := client.RecordStop("alpha"); err != nil {
		t.Fatalf("RecordStop: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := client.Status(false)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.Status.ActiveCount == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session did not end after stop")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if _, err := client.SourceRemove("alpha"); err != nil {
		t.Fatalf("SourceRemove: %v", err)
	}
	if _, err := client.SourceRemove("alpha"); err == nil {
		t.Fatal("expected unknown source error")
	}
}

func TestIPCQueueAndRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)

	queued, err := client.QueueList()
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(queued.Items) != 0 {
		t.Fatalf("expected empty queue, got %+v", queued.Items)
	}
	processed, err := client.QueueProcess()
	if err != nil {
		t.Fatalf("QueueProcess: %v", err)
	}
	if processed.Result.Processed != 0 {
		t.Fatalf("unexpected result %+v", processed.Result)
	}

	artifact := filepath.Join(cfg.Paths.RecordingsDir, "alpha_20240101_000000.mp4")
	testsupport.WriteFile(t, artifact, 64)

	recordings, err := client.Recordings()
	if err != nil {
		t.Fatalf("Recordings: %v", err)
	}
	if len(recordings.Recordings) != 1 || recordings.Recordings[0].Size != 64 {
		t.Fatalf("unexpected recordings %+v", recordings.Recordings)
	}
	path, err := client.RecordingPath("alpha_20240101_000000.mp4")
	if err != nil || path.Path != artifact {
		t.Fatalf("RecordingPath = %+v, %v", path, err)
	}
	if _, err := client.RecordingPath("../streamkeep.db"); err == nil {
		t.Fatal("expected traversal to be rejected")
	}
}

func TestIPCSettings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)

	current, err := client.Settings()
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	next := current.Config
	next.Capture.MaxConcurrent = 2
	updated, err := client.UpdateSettings(next)
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if updated.Config.Capture.MaxConcurrent != 2 {
		t.Fatalf("max_concurrent = %d, want 2", updated.Config.Capture.MaxConcurrent)
	}

	next.Capture.MaxConcurrent = 0
	if _, err := client.UpdateSettings(next); err == nil {
		t.Fatal("expected invalid settings to be rejected")
	}
	if _, err := client.ReloadConfig(); err == nil {
		t.Fatal("expected reload without a backing file to fail")
	}
}

func TestIPCLogTail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)

	content := "INFO recorder: started source=alpha\nINFO recorder: started source=beta\nINFO merger: done\n"
	if err := os.WriteFile(cfg.LogPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	resp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail: %v", err)
	}
	if len(resp.Lines) != 2 || resp.Lines[1] != "INFO merger: done" {
		t.Fatalf("unexpected lines %#v", resp.Lines)
	}

	filtered, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 10, Source: "beta"})
	if err != nil {
		t.Fatalf("LogTail filtered: %v", err)
	}
	if len(filtered.Lines) != 1 || !strings.Contains(filtered.Lines[0], "source=beta") {
		t.Fatalf("unexpected filtered lines %#v", filtered.Lines)
	}
}

func TestIPCShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	called := make(chan struct{})
	_, client := startServer(t, cfg, ipc.WithShutdown(func() { close(called) }))

	resp, err := client.Shutdown()
	if err != nil || !resp.Accepted {
		t.Fatalf("Shutdown = %+v, %v", resp, err)
	}
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown callback not invoked")
	}
}

func TestIPCShutdownUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, client := startServer(t, cfg)
	if _, err := client.Shutdown(); err == nil {
		t.Fatal("expected shutdown without callback to fail")
	}
}
