package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"streamkeep/internal/daemon"
	"streamkeep/internal/logging"
	"streamkeep/internal/logs"
	"streamkeep/internal/services"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*service)

// WithShutdown sets the callback run when a client requests shutdown.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) { s.shutdown = fn }
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	for _, opt := range opts {
		opt(srv)
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				time.Sleep(100 * time.Millisecond)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket may confuse later CLI calls"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

// request derives a per-call context carrying a fresh correlation id, so
// daemon log lines for one CLI invocation can be grouped.
func (s *service) request(method string) context.Context {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	logging.WithContext(ctx, s.logger).Debug("ipc request", logging.String("method", method))
	return ctx
}

func (s *service) Status(req StatusRequest, resp *StatusResponse) error {
	resp.Status = s.daemon.Status(s.ctx, req.Checks)
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	if s.shutdown == nil {
		return errors.New("shutdown is not available for this daemon")
	}
	s.logger.Info("shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_shutdown"))
	// Reply before the listener goes away.
	go s.shutdown()
	resp.Accepted = true
	return nil
}

func (s *service) SourceList(_ SourceListRequest, resp *SourceListResponse) error {
	views, err := s.daemon.ListSources(s.ctx)
	if err != nil {
		return err
	}
	resp.Sources = views
	return nil
}

func (s *service) SourceAdd(req SourceAddRequest, resp *SourceAddResponse) error {
	src, err := s.daemon.AddSource(s.request("SourceAdd"), req.Name, req.Address)
	if err != nil {
		return err
	}
	resp.Source = *src
	return nil
}

func (s *service) SourceRemove(req SourceRemoveRequest, resp *SourceRemoveResponse) error {
	if err := s.daemon.RemoveSource(s.request("SourceRemove"), req.Ref); err != nil {
		return err
	}
	resp.Removed = true
	return nil
}

func (s *service) RecordStart(req RecordStartRequest, resp *RecordStartResponse) error {
	info, err := s.daemon.StartRecording(s.request("RecordStart"), req.Name)
	if err != nil {
		return err
	}
	resp.Session = info
	return nil
}

func (s *service) RecordStop(req RecordStopRequest, resp *RecordStopResponse) error {
	if err := s.daemon.StopRecording(req.Name); err != nil {
		return err
	}
	resp.Stopped = true
	return nil
}

func (s *service) CheckLive(req CheckLiveRequest, resp *CheckLiveResponse) error {
	result, err := s.daemon.CheckLive(s.request("CheckLive"), req.Name)
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	items, err := s.daemon.QueueItems(s.ctx)
	if err != nil {
		return err
	}
	resp.Items = items
	return nil
}

func (s *service) QueueProcess(_ QueueProcessRequest, resp *QueueProcessResponse) error {
	result, err := s.daemon.ProcessQueue(s.request("QueueProcess"))
	if err != nil {
		return err
	}
	resp.Result = result
	return nil
}

func (s *service) Recordings(_ RecordingsRequest, resp *RecordingsResponse) error {
	recordings, err := s.daemon.ListRecordings()
	if err != nil {
		return err
	}
	resp.Recordings = recordings
	return nil
}

func (s *service) RecordingPath(req RecordingPathRequest, resp *RecordingPathResponse) error {
	path, err := s.daemon.RecordingPath(req.Name)
	if err != nil {
		return err
	}
	resp.Path = path
	return nil
}

func (s *service) Settings(_ SettingsRequest, resp *SettingsResponse) error {
	resp.Config = s.daemon.Settings()
	resp.Path = s.daemon.ConfigPath()
	return nil
}

func (s *service) UpdateSettings(req UpdateSettingsRequest, resp *SettingsResponse) error {
	updated, err := s.daemon.UpdateSettings(req.Config)
	if err != nil {
		return err
	}
	resp.Config = *updated
	resp.Path = s.daemon.ConfigPath()
	return nil
}

func (s *service) ReloadConfig(_ ReloadConfigRequest, resp *SettingsResponse) error {
	reloaded, err := s.daemon.ReloadConfig()
	if err != nil {
		return err
	}
	resp.Config = *reloaded
	resp.Path = s.daemon.ConfigPath()
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Source: req.Source,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
