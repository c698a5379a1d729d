package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"sync"

	"log/slog"

	"spool/internal/api"
	"spool/internal/config"
	"spool/internal/daemon"
	"spool/internal/logging"
	"spool/internal/queue"
)

// SocketPath returns the control socket location for a configuration.
func SocketPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "spoold.sock")
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Spool", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
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
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually before restarting the daemon"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.QueueDBPath = status.QueueDBPath
	resp.LockPath = status.LockFilePath
	resp.LastError = status.LastError
	resp.Dependencies = status.Dependencies
	resp.QueueStats = make(map[string]int, len(status.QueueStats))
	for k, v := range status.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses := make([]queue.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, ok := queue.ParseStatus(status)
		if !ok {
			continue
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.daemon.ListJobs(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.ID == "" {
		return errors.New("queue describe requires a job id")
	}
	job, err := s.daemon.GetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", req.ID)
	}
	resp.Job = api.FromJob(job)
	return nil
}

func (s *service) QueueCancel(req QueueCancelRequest, resp *QueueCancelResponse) error {
	if req.ID == "" {
		return errors.New("queue cancel requires a job id")
	}
	s.log().Debug("queue cancel requested", logging.String(logging.FieldJobID, req.ID))
	job, err := s.daemon.CancelJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", req.ID)
	}
	resp.Job = api.FromJob(job)
	s.log().Info("job cancellation requested",
		logging.String(logging.FieldEventType, "queue_cancel"),
		logging.String(logging.FieldJobID, req.ID))
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.log().Debug("queue retry requested", logging.Int("job_count", len(req.IDs)))
	updated, err := s.daemon.RetryJobs(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed jobs requeued",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	s.log().Debug("queue clear requested", logging.Bool("all", req.All))
	removed, err := s.daemon.ClearJobs(s.ctx, req.All)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
