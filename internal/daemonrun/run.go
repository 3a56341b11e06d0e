package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"streamkeep/internal/config"
	"streamkeep/internal/daemon"
	"streamkeep/internal/database"
	"streamkeep/internal/ipc"
	"streamkeep/internal/logging"
	"streamkeep/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// ConfigPath is where settings changes are saved. Empty keeps them in
	// memory only.
	ConfigPath  string
	LogLevel    string
	Development bool
}

// Run starts the streamkeep daemon and blocks until a signal or an IPC
// shutdown request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, stopSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	ctx, shutdown := context.WithCancel(signalCtx)
	defer shutdown()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := cfg.LogPath()
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logDependencySnapshot(ctx, logger, cfg)

	db, err := database.Open(cfg.DatabasePath())
	if err != nil {
		logger.Error("open database", logging.Error(err), logging.String("path", cfg.DatabasePath()))
		return err
	}

	d, err := daemon.New(config.NewHolder(cfg, opts.ConfigPath), db, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	// The lock must be held before the socket is replaced.
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ipcServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger, ipc.WithShutdown(shutdown))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	logger.Info("streamkeep daemon ready",
		logging.String("socket", cfg.SocketPath()),
		logging.String("config", opts.ConfigPath),
		logging.String("log", logPath),
	)

	<-ctx.Done()
	logger.Info("streamkeep daemon shutting down")
	return nil
}

// PIDPath returns where a running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "streamkeep.pid")
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range preflight.CheckSystemDeps(ctx, cfg) {
		attrs = append(attrs,
			logging.Bool(strings.ToLower(status.Name)+"_available", status.Available),
			logging.String(strings.ToLower(status.Name)+"_version", status.Version),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
