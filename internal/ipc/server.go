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
	"strings"
	"sync"
	"time"

	"tapedeck/internal/api"
	"tapedeck/internal/daemon"
	"tapedeck/internal/logging"
	"tapedeck/internal/logs"
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

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, &service{daemon: d, logger: logger, ctx: serverCtx}); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
		conns:     make(map[net.Conn]struct{}),
	}, nil
}

// Serve starts accepting RPC connections until Close is called.
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
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// Close stops the server, drops open connections, and removes the socket.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.connMu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun tapedeck stop"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// Stop ends recording. The daemon process exits once the capture is down.
func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.APIStatus(s.ctx)
	return nil
}

func (s *service) Restart(req RestartRequest, resp *RestartResponse) error {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "operator request"
	}
	requested, err := s.daemon.RequestRestart(reason)
	if err != nil {
		return err
	}
	resp.Requested = requested
	if requested {
		resp.Message = "restart requested"
	} else {
		resp.Message = "restart already pending"
	}
	return nil
}

func (s *service) Prune(_ PruneRequest, resp *PruneResponse) error {
	result, err := s.daemon.APIPrune(s.ctx)
	if err != nil {
		return err
	}
	*resp = result
	return nil
}

func (s *service) Segments(_ SegmentsRequest, resp *SegmentsResponse) error {
	files, live, err := s.daemon.Segments()
	if err != nil {
		return err
	}
	*resp = api.FromSegments(files, live)
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	result, err := s.daemon.APIHistory(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	*resp = result
	return nil
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
	filter := logs.Filter{Component: req.Component, CycleID: req.CycleID}
	if level := strings.TrimSpace(req.MinLevel); level != "" {
		parsed := logging.ParseLevel(level)
		filter.MinLevel = &parsed
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
		Filter: filter,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
