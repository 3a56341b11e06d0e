package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"streamkeep/internal/config"
	"streamkeep/internal/ipc"
)

// skipConfigAnnotation marks commands that must run before a config exists.
const skipConfigAnnotation = "skipConfigLoad"

// commandContext carries the persistent flags and the configuration shared
// by every subcommand. The config is loaded at most once per invocation.
type commandContext struct {
	socketOverride string
	configOverride string

	load    sync.Once
	cfg     *config.Config
	cfgPath string
	cfgErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.load.Do(func() {
		cfg, resolved, _, err := config.Load(strings.TrimSpace(c.configOverride))
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.cfgErr = err
			return
		}
		c.cfg, c.cfgPath = cfg, resolved
	})
	return c.cfg, c.cfgErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// resolvedConfigPath is the file the loaded config came from, or would be
// created at.
func (c *commandContext) resolvedConfigPath() string {
	_, _ = c.ensureConfig()
	return c.cfgPath
}

// socketPath prefers --socket, then the configured state dir, then the
// default state dir when no config could be loaded.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socketOverride); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	fallback := config.Default()
	if dir, err := config.ExpandPath(fallback.Paths.StateDir); err == nil {
		fallback.Paths.StateDir = dir
	}
	return fallback.SocketPath()
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	client, err := c.dialClient()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func (c *commandContext) dialClient() (*ipc.Client, error) {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return nil, wrapDialError(err, socket)
	}
	return client, nil
}

func wrapDialError(err error, socket string) error {
	if errors.Is(err, syscall.ENOENT) || os.IsNotExist(err) {
		return fmt.Errorf("daemon not running: no socket at %s (run `streamkeep start`)", socket)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return fmt.Errorf("daemon not running: %s refused the connection (stale socket?)", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations[skipConfigAnnotation] == "true" {
			return true
		}
	}
	return false
}
