package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/daemon"
	"streamkeep/internal/ipc"
	"streamkeep/internal/logging"
	"streamkeep/internal/testsupport"
)

type idleProcess struct{ done chan struct{} }

func (p idleProcess) Wait() error { <-p.done; return nil }
func (p idleProcess) PID() int    { return 7 }

type idleRunner struct{}

func (idleRunner) Start(ctx context.Context, _ string, _ []string) (capture.Process, error) {
	proc := idleProcess{done: make(chan struct{})}
	go func() {
		<-ctx.Done()
		close(proc.done)
	}()
	return proc, nil
}

type liveProber struct{}

func (liveProber) Probe(context.Context, string) (capture.ProbeResult, error) {
	return capture.ProbeResult{Live: true, Streams: []string{"720p", "best"}}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Monitor.AutoCheckLive = false
	cfg.Replication.FTP.Password = "hunter2"
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	if err := config.Save(configPath, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	db := testsupport.MustOpenDB(t, cfg)
	d, err := daemon.New(config.NewHolder(cfg, configPath), db, logging.NewNop(),
		daemon.WithRunner(idleRunner{}),
		daemon.WithProber(liveProber{}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logging.NewNop())
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		for _, info := range d.Status(context.Background(), false).Sessions {
			_ = d.StopRecording(info.Source)
		}
		cancel()
		srv.Close()
		d.Stop()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--socket", socket}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
