package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"spool/internal/api"
	"spool/internal/config"
	"spool/internal/logging"
	"spool/internal/queue"
	"spool/internal/services"
)

// followWindow bounds one long-poll cycle on /api/events. Clients resume from
// the returned cursor, so closing the poll early never loses events.
const followWindow = 25 * time.Second

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(cfg.Paths.APIToken, next)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", auth(srv.handleHealth))
	mux.HandleFunc("/api/video-info", auth(srv.handleVideoInfo))
	mux.HandleFunc("/api/download", auth(srv.handleDownload))
	mux.HandleFunc("/api/download-status/", auth(srv.handleDownloadStatus))
	mux.HandleFunc("/api/download-file/", auth(srv.handleDownloadFile))
	mux.HandleFunc("/api/cancel/", auth(srv.handleCancel))
	mux.HandleFunc("/api/events", auth(srv.handleEvents))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      followWindow + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	health, err := s.daemon.store.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.CodeInternal)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{
		Status:     "ok",
		ActiveJobs: health.Active,
		QueuedJobs: health.Queued,
	})
}

func (s *apiServer) handleVideoInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req api.VideoInfoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", services.CodeValidation)
		return
	}
	info, err := s.daemon.VideoInfo(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromVideoInfo(info))
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	var req api.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", services.CodeValidation)
		return
	}
	parsed, err := api.ParseDownloadRequest(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	job, err := s.daemon.store.NewJob(r.Context(), parsed)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.CodeInternal)
		return
	}
	s.log().Info("download accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldURL, job.URL))
	s.writeJSON(w, http.StatusOK, api.DownloadAccepted{DownloadID: job.ID})
}

func (s *apiServer) handleDownloadStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	job, ok := s.jobFromPath(w, r, "/api/download-status/")
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	job, ok := s.jobFromPath(w, r, "/api/download-file/")
	if !ok {
		return
	}
	if job.Status != queue.StatusCompleted {
		s.writeError(w, http.StatusConflict, "download not finished", "")
		return
	}
	if job.OutputPath == "" {
		s.writeError(w, http.StatusNotFound, "artifact not available", services.CodeNotFound)
		return
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		s.writeError(w, http.StatusNotFound, "artifact not available", services.CodeNotFound)
		return
	}
	name := job.Filename
	if name == "" {
		name = job.ID
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeFile(w, r, job.OutputPath)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	id, ok := s.idFromPath(w, r, "/api/cancel/")
	if !ok {
		return
	}
	job, err := s.daemon.CancelJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.CodeInternal)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "download not found", services.CodeNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	hub := s.daemon.hub
	if hub == nil {
		s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: nil, Next: 0})
		return
	}

	query := r.URL.Query()
	jobID := strings.TrimSpace(query.Get("job"))
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = 200
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWindow)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, jobID, since, limit, follow)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.CodeInternal)
		return
	}
	for i := range events {
		events[i].Status = api.ExternalStatus(queue.Status(events[i].Status))
	}
	s.writeJSON(w, http.StatusOK, api.EventsResponse{Events: events, Next: next})
}

// jobFromPath resolves the trailing path segment to a job, writing the error
// response itself when the job cannot be served.
func (s *apiServer) jobFromPath(w http.ResponseWriter, r *http.Request, prefix string) (*queue.Job, bool) {
	id, ok := s.idFromPath(w, r, prefix)
	if !ok {
		return nil, false
	}
	job, err := s.daemon.GetJob(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), services.CodeInternal)
		return nil, false
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "download not found", services.CodeNotFound)
		return nil, false
	}
	return job, true
}

func (s *apiServer) idFromPath(w http.ResponseWriter, r *http.Request, prefix string) (string, bool) {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "download not found", services.CodeNotFound)
		return "", false
	}
	return id, true
}

// writeServiceError maps classified errors onto HTTP statuses. Bot-detection
// (auth required) surfaces as 503 so clients treat it as a retryable upstream
// condition rather than a local auth failure.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrAuthRequired):
		status = http.StatusServiceUnavailable
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	s.writeError(w, status, err.Error(), services.FailureCode(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
