package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"streamkeep/internal/config"
)

func TestSourcesAndRecordCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"sources", "add", "alpha", "https://example.test/alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sources add: %v", err)
	}
	requireContains(t, out, "Added source alpha")

	out, _, err = runCLI(t, []string{"check", "alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	requireContains(t, out, "alpha is live (streams: 720p, best)")

	out, _, err = runCLI(t, []string{"record", "start", "alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record start: %v", err)
	}
	requireContains(t, out, "Recording alpha (Normal)")

	if _, _, err := runCLI(t, []string{"record", "start", "alpha"}, env.socketPath, env.configPath); err == nil || !strings.Contains(err.Error(), "already recording") {
		t.Fatalf("expected already recording error, got %v", err)
	}

	out, _, err = runCLI(t, []string{"sources", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sources list: %v", err)
	}
	requireContains(t, out, "https://example.test/alpha")
	requireContains(t, out, "Recording")

	out, _, err = runCLI(t, []string{"record", "stop", "alpha"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("record stop: %v", err)
	}
	requireContains(t, out, "Stop requested for alpha")
}

func TestUnknownSourceFails(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"record", "start", "ghost"}, env.socketPath, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown source") {
		t.Fatalf("expected unknown source error, got %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== System Status ==")
	requireContains(t, out, "Capture mode:")
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "0 batches waiting to merge")
}

func TestStatusOfflineFallsBackToDisk(t *testing.T) {
	env := setupCLITestEnv(t)
	missing := filepath.Join(filepath.Dir(env.socketPath), "absent.sock")

	out, _, err := runCLI(t, []string{"status"}, missing, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "[WARN] not running")
}

func TestQueueAndRecordingsCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "Queue is empty")

	out, _, err = runCLI(t, []string{"queue", "process"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue process: %v", err)
	}
	requireContains(t, out, "Processed 0 batches")

	artifact := filepath.Join(env.cfg.Paths.RecordingsDir, "alpha_20240101_000000.mp4")
	writeFile(t, artifact, strings.Repeat("x", 2048))

	out, _, err = runCLI(t, []string{"recordings"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings: %v", err)
	}
	requireContains(t, out, "alpha_20240101_000000.mp4")
	requireContains(t, out, "2.0 KiB")

	out, _, err = runCLI(t, []string{"recordings", "path", "alpha_20240101_000000.mp4"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recordings path: %v", err)
	}
	if strings.TrimSpace(out) != artifact {
		t.Fatalf("path = %q, want %q", out, artifact)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# source: daemon")
	if strings.Contains(out, "hunter2") {
		t.Fatalf("password leaked in output: %s", out)
	}
	requireContains(t, out, redacted)
}

func TestConfigApplyUpdatesDaemon(t *testing.T) {
	env := setupCLITestEnv(t)

	next := *env.cfg
	next.Capture.Quality = "480p"
	path := filepath.Join(filepath.Dir(env.configPath), "next.toml")
	if err := config.Save(path, &next); err != nil {
		t.Fatalf("save next config: %v", err)
	}

	out, _, err := runCLI(t, []string{"config", "apply", path}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("config apply: %v", err)
	}
	requireContains(t, out, "saved to "+env.configPath)
	if got := env.daemon.Settings().Capture.Quality; got != next.Capture.Quality {
		t.Fatalf("quality = %q, want %q", got, next.Capture.Quality)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "streamkeep", "config.toml")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"config", "init", "--path", target})
	cmd.SetOut(&strings.Builder{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample not written: %v", err)
	}

	again := newRootCommand()
	again.SetArgs([]string{"config", "init", "--path", target})
	again.SetOut(&strings.Builder{})
	if err := again.Execute(); err == nil {
		t.Fatal("expected existing file to be protected")
	}
}

func TestLogsCommandFilters(t *testing.T) {
	env := setupCLITestEnv(t)
	writeFile(t, env.cfg.LogPath(), "INFO recorder: started source=alpha\nINFO recorder: started source=beta\n")

	out, _, err := runCLI(t, []string{"logs", "--source", "beta"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "source=alpha") || !strings.Contains(out, "source=beta") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestTestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestHelpers(t *testing.T) {
	cases := map[int64]string{0: "0 B", 1023: "1023 B", 1024: "1.0 KiB", 5 * 1024 * 1024: "5.0 MiB"}
	for size, want := range cases {
		if got := formatBytes(size); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", size, got, want)
		}
	}
	if got := humanLabel("low_power"); got != "Low Power" {
		t.Fatalf("humanLabel = %q", got)
	}
	if got := humanLabel(""); got != "-" {
		t.Fatalf("humanLabel(empty) = %q", got)
	}
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := formatElapsed(start, start.Add(90*time.Second+300*time.Millisecond)); got != "1m30s" {
		t.Fatalf("formatElapsed = %q", got)
	}
}
