package ipc

import (
	"streamkeep/internal/capture"
	"streamkeep/internal/config"
	"streamkeep/internal/daemon"
	"streamkeep/internal/merger"
	"streamkeep/internal/recorder"
	"streamkeep/internal/sources"
)

// ServiceName is the name the RPC service registers under.
const ServiceName = "Streamkeep"

// StatusRequest fetches daemon status.
type StatusRequest struct {
	// Checks adds dependency and preflight results to the response.
	Checks bool `json:"checks"`
}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse indicates whether shutdown was initiated.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// SourceListRequest lists registered sources.
type SourceListRequest struct{}

// SourceListResponse contains sources and their recording state.
type SourceListResponse struct {
	Sources []daemon.SourceView `json:"sources"`
}

// SourceAddRequest registers a source.
type SourceAddRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// SourceAddResponse returns the stored source.
type SourceAddResponse struct {
	Source sources.Source `json:"source"`
}

// SourceRemoveRequest removes a source by numeric id or by name.
type SourceRemoveRequest struct {
	Ref string `json:"ref"`
}

// SourceRemoveResponse confirms removal.
type SourceRemoveResponse struct {
	Removed bool `json:"removed"`
}

// RecordStartRequest starts a manual recording.
type RecordStartRequest struct {
	Name string `json:"name"`
}

// RecordStartResponse describes the session that was started.
type RecordStartResponse struct {
	Session recorder.SessionInfo `json:"session"`
}

// RecordStopRequest stops an active recording.
type RecordStopRequest struct {
	Name string `json:"name"`
}

// RecordStopResponse confirms the stop request.
type RecordStopResponse struct {
	Stopped bool `json:"stopped"`
}

// CheckLiveRequest probes one source.
type CheckLiveRequest struct {
	Name string `json:"name"`
}

// CheckLiveResponse carries the probe result.
type CheckLiveResponse struct {
	Result capture.ProbeResult `json:"result"`
}

// QueueListRequest lists pending batches.
type QueueListRequest struct{}

// QueueListResponse contains pending batches.
type QueueListResponse struct {
	Items []daemon.QueueEntry `json:"items"`
}

// QueueProcessRequest runs a merge pass.
type QueueProcessRequest struct{}

// QueueProcessResponse reports the pass outcome.
type QueueProcessResponse struct {
	Result merger.Result `json:"result"`
}

// RecordingsRequest lists finished artifacts.
type RecordingsRequest struct{}

// RecordingsResponse holds artifacts, newest first.
type RecordingsResponse struct {
	Recordings []daemon.Recording `json:"recordings"`
}

// RecordingPathRequest resolves one artifact by file name.
type RecordingPathRequest struct {
	Name string `json:"name"`
}

// RecordingPathResponse holds the absolute artifact path.
type RecordingPathResponse struct {
	Path string `json:"path"`
}

// SettingsRequest fetches the active configuration.
type SettingsRequest struct{}

// SettingsResponse carries a configuration and its backing file.
type SettingsResponse struct {
	Config config.Config `json:"config"`
	Path   string        `json:"path"`
}

// UpdateSettingsRequest replaces the active configuration.
type UpdateSettingsRequest struct {
	Config config.Config `json:"config"`
}

// ReloadConfigRequest re-reads the configuration file.
type ReloadConfigRequest struct{}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// LogTailRequest fetches daemon log lines.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Source     string `json:"source"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
