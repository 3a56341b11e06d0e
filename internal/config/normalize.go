package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeCapture()
	c.normalizeMonitor()
	c.normalizeProcessing()
	c.normalizeReplication()
	c.normalizeLogging()
	c.normalizeMetrics()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.RecordingsDir, err = expandPath(c.Paths.RecordingsDir); err != nil {
		return fmt.Errorf("paths.recordings_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SegmentsDir) == "" {
		c.Paths.SegmentsDir = defaultSegmentsDir
	}
	if c.Paths.SegmentsDir, err = expandPath(c.Paths.SegmentsDir); err != nil {
		return fmt.Errorf("paths.segments_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeCapture() {
	c.Capture.Binary = strings.TrimSpace(c.Capture.Binary)
	if c.Capture.Binary == "" {
		c.Capture.Binary = defaultCaptureBinary
	}
	c.Capture.Quality = strings.TrimSpace(c.Capture.Quality)
	if c.Capture.Quality == "" {
		c.Capture.Quality = defaultQuality
	}
	c.Capture.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Capture.Format), "."))
	if c.Capture.Format == "" {
		c.Capture.Format = defaultFormat
	}
	if c.Capture.StopGrace <= 0 {
		c.Capture.StopGrace = defaultStopGrace
	}
}

func (c *Config) normalizeMonitor() {
	if c.Monitor.ProbeTimeout <= 0 {
		c.Monitor.ProbeTimeout = defaultProbeTimeout
	}
	if c.Monitor.ErrorBackoff <= 0 {
		c.Monitor.ErrorBackoff = defaultErrorBackoff
	}
}

func (c *Config) normalizeProcessing() {
	c.Processing.AutoProcessTime = strings.TrimSpace(c.Processing.AutoProcessTime)
	c.Processing.FFmpegBinary = strings.TrimSpace(c.Processing.FFmpegBinary)
	if c.Processing.FFmpegBinary == "" {
		c.Processing.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeReplication() {
	ftp := &c.Replication.FTP
	ftp.Host = strings.TrimSpace(ftp.Host)
	ftp.User = strings.TrimSpace(ftp.User)
	envOverride(&ftp.Host, "FTP_HOST")
	envOverride(&ftp.User, "FTP_USER")
	envOverride(&ftp.Password, "FTP_PASSWORD")
	envOverrideInt(&ftp.Port, "FTP_PORT")
	if ftp.Port <= 0 {
		ftp.Port = defaultFTPPort
	}
	ftp.Path = normalizeRemotePath(ftp.Path)
	if ftp.Timeout <= 0 {
		ftp.Timeout = defaultReplicationTimeout
	}

	smb := &c.Replication.SMB
	smb.Host = strings.TrimSpace(smb.Host)
	smb.Share = strings.Trim(strings.TrimSpace(smb.Share), `/\`)
	smb.User = strings.TrimSpace(smb.User)
	smb.Domain = strings.TrimSpace(smb.Domain)
	envOverride(&smb.Host, "SMB_HOST")
	envOverride(&smb.User, "SMB_USER")
	envOverride(&smb.Password, "SMB_PASSWORD")
	envOverrideInt(&smb.Port, "SMB_PORT")
	if smb.Port <= 0 {
		smb.Port = defaultSMBPort
	}
	smb.Path = normalizeRemotePath(smb.Path)
	if smb.Timeout <= 0 {
		smb.Timeout = defaultReplicationTimeout
	}

	s3 := &c.Replication.S3
	s3.Endpoint = strings.TrimRight(strings.TrimSpace(s3.Endpoint), "/")
	s3.Bucket = strings.TrimSpace(s3.Bucket)
	s3.Prefix = strings.Trim(strings.TrimSpace(s3.Prefix), "/")
	envOverride(&s3.Endpoint, "S3_ENDPOINT")
	envOverride(&s3.AccessKeyID, "S3_ACCESS_KEY_ID")
	envOverride(&s3.SecretKey, "S3_SECRET_KEY")
	if s3.Region = strings.TrimSpace(s3.Region); s3.Region == "" {
		s3.Region = defaultS3Region
	}
	if s3.Timeout <= 0 {
		s3.Timeout = defaultReplicationTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Bind == "" {
		c.Metrics.Bind = defaultMetricsBind
	}
}

// envOverride replaces target with STREAMKEEP_<key> when that variable is set
// and non-empty.
func envOverride(target *string, key string) {
	if value, ok := os.LookupEnv(envPrefix + key); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func envOverrideInt(target *int, key string) {
	value, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		*target = n
	}
}

func normalizeRemotePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return defaultReplicationPath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNtfyTimeout
	}
}
