package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"streamkeep/internal/config"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) call(method string, req, resp any) error {
	return c.client.Call(ServiceName+"."+method, req, resp)
}

// Status retrieves the daemon status. checks adds dependency and
// preflight results.
func (c *Client) Status(checks bool) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.call("Status", StatusRequest{Checks: checks}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Shutdown asks the daemon process to exit.
func (c *Client) Shutdown() (*ShutdownResponse, error) {
	var resp ShutdownResponse
	if err := c.call("Shutdown", ShutdownRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceList returns registered sources.
func (c *Client) SourceList() (*SourceListResponse, error) {
	var resp SourceListResponse
	if err := c.call("SourceList", SourceListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceAdd registers a source.
func (c *Client) SourceAdd(name, address string) (*SourceAddResponse, error) {
	var resp SourceAddResponse
	if err := c.call("SourceAdd", SourceAddRequest{Name: name, Address: address}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SourceRemove removes a source by id or name.
func (c *Client) SourceRemove(ref string) (*SourceRemoveResponse, error) {
	var resp SourceRemoveResponse
	if err := c.call("SourceRemove", SourceRemoveRequest{Ref: ref}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStart starts recording a source.
func (c *Client) RecordStart(name string) (*RecordStartResponse, error) {
	var resp RecordStartResponse
	if err := c.call("RecordStart", RecordStartRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordStop stops recording a source.
func (c *Client) RecordStop(name string) (*RecordStopResponse, error) {
	var resp RecordStopResponse
	if err := c.call("RecordStop", RecordStopRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckLive probes a source once.
func (c *Client) CheckLive(name string) (*CheckLiveResponse, error) {
	var resp CheckLiveResponse
	if err := c.call("CheckLive", CheckLiveRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueList returns pending batches.
func (c *Client) QueueList() (*QueueListResponse, error) {
	var resp QueueListResponse
	if err := c.call("QueueList", QueueListRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QueueProcess runs a merge pass and waits for it to finish.
func (c *Client) QueueProcess() (*QueueProcessResponse, error) {
	var resp QueueProcessResponse
	if err := c.call("QueueProcess", QueueProcessRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recordings lists finished artifacts.
func (c *Client) Recordings() (*RecordingsResponse, error) {
	var resp RecordingsResponse
	if err := c.call("Recordings", RecordingsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RecordingPath resolves an artifact name to its path.
func (c *Client) RecordingPath(name string) (*RecordingPathResponse, error) {
	var resp RecordingPathResponse
	if err := c.call("RecordingPath", RecordingPathRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settings returns the active configuration.
func (c *Client) Settings() (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("Settings", SettingsRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateSettings replaces the active configuration.
func (c *Client) UpdateSettings(cfg config.Config) (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("UpdateSettings", UpdateSettingsRequest{Config: cfg}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ReloadConfig re-reads the daemon's configuration file.
func (c *Client) ReloadConfig() (*SettingsResponse, error) {
	var resp SettingsResponse
	if err := c.call("ReloadConfig", ReloadConfigRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.call("TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return &resp, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.call("LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
