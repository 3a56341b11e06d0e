package replication

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"

	"streamkeep/internal/config"
)

// SMBTarget copies artifacts onto an SMB2/3 share.
type SMBTarget struct {
	cfg config.SMB
}

// NewSMBTarget builds a target from configuration.
func NewSMBTarget(cfg config.SMB) *SMBTarget {
	return &SMBTarget{cfg: cfg}
}

func (t *SMBTarget) Kind() string { return "smb" }

func (t *SMBTarget) Host() string { return t.cfg.Host }

// Upload opens an NTLM session, mounts the share, creates missing
// directories, and copies the file. The configured timeout bounds the dial
// and any stretch with no traffic, never the length of the copy.
func (t *SMBTarget) Upload(ctx context.Context, localPath string) (string, error) {
	timeout := time.Duration(t.cfg.Timeout) * time.Second
	addr := net.JoinHostPort(t.cfg.Host, strconv.Itoa(t.cfg.Port))

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     t.cfg.User,
			Password: t.cfg.Password,
			Domain:   t.cfg.Domain,
		},
	}
	session, err := d.DialContext(ctx, withIdleTimeout(conn, timeout))
	if err != nil {
		return "", fmt.Errorf("smb session: %w", err)
	}
	defer func() { _ = session.Logoff() }()

	share, err := session.Mount(t.cfg.Share)
	if err != nil {
		return "", fmt.Errorf("mount %s: %w", t.cfg.Share, err)
	}
	defer func() { _ = share.Umount() }()

	remoteDir := strings.Trim(t.cfg.Path, "/")
	if remoteDir != "" {
		if err := share.MkdirAll(remoteDir, 0o755); err != nil {
			return "", fmt.Errorf("create remote directory %s: %w", remoteDir, err)
		}
	}
	remote := path.Join(remoteDir, filepath.Base(localPath))

	src, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer src.Close()

	dst, err := share.Create(remote)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", remote, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy to %s: %w", remote, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", remote, err)
	}
	return `\\` + t.cfg.Host + `\` + t.cfg.Share + `\` + strings.ReplaceAll(remote, "/", `\`), nil
}
