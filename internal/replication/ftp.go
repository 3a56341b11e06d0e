package replication

import (
	"context"
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"streamkeep/internal/config"
)

// FTPTarget uploads with a single STOR per artifact.
type FTPTarget struct {
	cfg config.FTP
}

// NewFTPTarget builds a target from configuration.
func NewFTPTarget(cfg config.FTP) *FTPTarget {
	return &FTPTarget{cfg: cfg}
}

func (t *FTPTarget) Kind() string { return "ftp" }

func (t *FTPTarget) Host() string { return t.cfg.Host }

// Upload dials, logs in, changes to the configured directory, and stores the file.
func (t *FTPTarget) Upload(ctx context.Context, localPath string) (string, error) {
	timeout := time.Duration(t.cfg.Timeout) * time.Second
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Quit() }()

	user, password := t.cfg.User, t.cfg.Password
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	if err := conn.Login(user, password); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if t.cfg.Path != "" && t.cfg.Path != "/" {
		if err := conn.ChangeDir(t.cfg.Path); err != nil {
			return "", fmt.Errorf("change directory %s: %w", t.cfg.Path, err)
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer file.Close()

	name := filepath.Base(localPath)
	if err := conn.Stor(name, file); err != nil {
		return "", fmt.Errorf("stor %s: %w", name, err)
	}
	return path.Join(t.cfg.Path, name), nil
}
