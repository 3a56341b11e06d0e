package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"streamkeep/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns defaults rooted in a fresh temp directory, with every
// configured directory created.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		RecordingsDir: filepath.Join(base, "recordings"),
		SegmentsDir:   filepath.Join(base, "temp_segments"),
		StateDir:      filepath.Join(base, "state"),
		LogDir:        filepath.Join(base, "logs"),
	}
	cfg.Metrics.Bind = "127.0.0.1:0"

	builder := &configBuilder{t: t, baseDir: base, cfg: &cfg}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithLowPowerMode enables segmented capture.
func WithLowPowerMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.LowPowerMode = true
	}
}

// WithSmartProcessing sets whether the last low-power session triggers a merge.
func WithSmartProcessing(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.SmartProcessing = enabled
	}
}

// WithAutoReplicate enables post-artifact replication.
func WithAutoReplicate() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Replication.AutoReplicate = true
	}
}

// WithMaxConcurrent overrides the capture admission bound.
func WithMaxConcurrent(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.MaxConcurrent = n
	}
}

// WithStubbedBinaries puts exit-0 stand-ins for names (default: streamlink
// and ffmpeg) first on PATH for the rest of the test.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"streamlink", "ffmpeg"}
		}
		var binDir string
		for _, name := range names {
			binDir = filepath.Dir(WriteScript(b.t, b.baseDir, name, "#!/bin/sh\nexit 0\n"))
		}
		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RecordingsDir)
}
