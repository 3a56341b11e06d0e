package config

const (
	defaultRecordingsDir        = "~/.local/share/streamkeep/recordings"
	defaultSegmentsDir          = "~/.local/share/streamkeep/temp_segments"
	defaultStateDir             = "~/.local/share/streamkeep"
	defaultLogDir               = "~/.local/share/streamkeep/logs"
	defaultCaptureBinary        = "streamlink"
	defaultQuality              = "best"
	defaultFormat               = "mp4"
	defaultRetryStreams         = 5
	defaultRetryMax             = 10
	defaultSegmentTimeout       = 60
	defaultSegmentAttempts      = 3
	defaultMaxConcurrent        = 4
	defaultStopGrace            = 10
	defaultCheckInterval        = 60
	defaultProbeTimeout         = 30
	defaultErrorBackoff         = 60
	defaultAutoProcessTime      = "03:00"
	defaultFFmpegBinary         = "ffmpeg"
	defaultFTPPort              = 21
	defaultSMBPort              = 445
	defaultReplicationPath      = "/"
	defaultReplicationTimeout   = 30
	defaultS3Region             = "us-east-1"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultMetricsBind          = "127.0.0.1:9464"
	defaultNtfyTimeout          = 10
	envPrefix                   = "STREAMKEEP_"
	supportedFormatsDescription = "mp4, mkv, flv, ts"
)

var supportedFormats = map[string]struct{}{
	"mp4": {},
	"mkv": {},
	"flv": {},
	"ts":  {},
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RecordingsDir: defaultRecordingsDir,
			SegmentsDir:   defaultSegmentsDir,
			StateDir:      defaultStateDir,
			LogDir:        defaultLogDir,
		},
		Capture: Capture{
			Binary:          defaultCaptureBinary,
			Quality:         defaultQuality,
			Format:          defaultFormat,
			RetryStreams:    defaultRetryStreams,
			RetryMax:        defaultRetryMax,
			SegmentTimeout:  defaultSegmentTimeout,
			SegmentAttempts: defaultSegmentAttempts,
			MaxConcurrent:   defaultMaxConcurrent,
			StopGrace:       defaultStopGrace,
		},
		Monitor: Monitor{
			AutoCheckLive: true,
			CheckInterval: defaultCheckInterval,
			ProbeTimeout:  defaultProbeTimeout,
			ErrorBackoff:  defaultErrorBackoff,
		},
		Processing: Processing{
			SmartProcessing: true,
			AutoProcessTime: defaultAutoProcessTime,
			FFmpegBinary:    defaultFFmpegBinary,
		},
		Replication: Replication{
			FTP: FTP{
				Port:    defaultFTPPort,
				Path:    defaultReplicationPath,
				Timeout: defaultReplicationTimeout,
			},
			SMB: SMB{
				Port:    defaultSMBPort,
				Path:    defaultReplicationPath,
				Timeout: defaultReplicationTimeout,
			},
			S3: S3{
				Region:         defaultS3Region,
				ForcePathStyle: true,
				Timeout:        defaultReplicationTimeout,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Bind: defaultMetricsBind,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
