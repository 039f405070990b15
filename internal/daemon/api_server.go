package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tapedeck/internal/api"
	"tapedeck/internal/config"
	"tapedeck/internal/logging"
)

const (
	apiShutdownTimeout  = 5 * time.Second
	defaultHistoryLimit = 50
)

// apiServer serves the HTTP status API as a suture service.
type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu   sync.Mutex
	addr string
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/segments", authMiddleware(token, srv.handleSegments))
	mux.HandleFunc("/api/history", authMiddleware(token, srv.handleHistory))
	mux.HandleFunc("/api/restart", authMiddleware(token, srv.handleRestart))
	mux.HandleFunc("/api/prune", authMiddleware(token, srv.handlePrune))
	mux.HandleFunc("/metrics", authMiddleware(token, promhttp.Handler().ServeHTTP))
	srv.handler = mux
	return srv, nil
}

func (s *apiServer) String() string { return "api-server" }

// Serve listens until ctx ends. A fresh http.Server is used per call so the
// tree can restart the service after a listener failure.
func (s *apiServer) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.setAddr(listener.Addr().String())
	defer s.setAddr("")

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	}
}

func (s *apiServer) setAddr(addr string) {
	s.mu.Lock()
	s.addr = addr
	s.mu.Unlock()
}

// Addr returns the bound address, or "" when not listening.
func (s *apiServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.APIStatus(r.Context()))
}

func (s *apiServer) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	files, live, err := s.daemon.Segments()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromSegments(files, live))
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultHistoryLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	resp, err := s.daemon.APIHistory(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "api request"
	}
	requested, err := s.daemon.RequestRestart(reason)
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]bool{"requested": requested})
}

func (s *apiServer) handlePrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	resp, err := s.daemon.APIPrune(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
