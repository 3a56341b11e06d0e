package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateMonitor(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateReplication(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.RecordingsDir == "" {
		return errors.New("paths.recordings_dir must be set")
	}
	if c.Paths.SegmentsDir == c.Paths.RecordingsDir {
		return errors.New("paths.segments_dir must differ from paths.recordings_dir")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if _, ok := supportedFormats[c.Capture.Format]; !ok {
		return fmt.Errorf("capture.format %q is not supported; use one of %s", c.Capture.Format, supportedFormatsDescription)
	}
	if c.Capture.RetryStreams < 0 {
		return errors.New("capture.retry_streams must be >= 0")
	}
	if c.Capture.RetryMax < 0 {
		return errors.New("capture.retry_max must be >= 0")
	}
	if c.Capture.SegmentTimeout < 0 {
		return errors.New("capture.hls_segment_timeout must be >= 0")
	}
	if c.Capture.SegmentAttempts < 0 {
		return errors.New("capture.hls_segment_attempts must be >= 0")
	}
	if c.Capture.MaxConcurrent < 1 {
		return errors.New("capture.max_concurrent must be positive")
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.CheckInterval < 1 {
		return errors.New("monitor.check_interval must be at least 1 second")
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.AutoProcessTime == "" {
		return nil
	}
	if _, _, err := ParseClock(c.Processing.AutoProcessTime); err != nil {
		return fmt.Errorf("processing.auto_process_time: %w", err)
	}
	return nil
}

func (c *Config) validateReplication() error {
	if c.Replication.FTP.Enabled && c.Replication.FTP.Host == "" {
		return errors.New("replication.ftp.host must be set when replication.ftp.enabled is true")
	}
	if c.Replication.SMB.Enabled {
		if c.Replication.SMB.Host == "" {
			return errors.New("replication.smb.host must be set when replication.smb.enabled is true")
		}
		if c.Replication.SMB.Share == "" {
			return errors.New("replication.smb.share must be set when replication.smb.enabled is true")
		}
	}
	if c.Replication.S3.Enabled && c.Replication.S3.Bucket == "" {
		return errors.New("replication.s3.bucket must be set when replication.s3.enabled is true")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
}

// ParseClock parses an HH:MM wall-clock value.
func ParseClock(value string) (hour, minute int, err error) {
	value = strings.TrimSpace(value)
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("%q is not a valid HH:MM time", value)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
