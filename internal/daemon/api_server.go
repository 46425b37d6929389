package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parish/internal/api"
	"parish/internal/config"
	"parish/internal/logging"
	"parish/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/events", authMiddleware(token, srv.handleEvents))
	mux.HandleFunc("/api/events/", authMiddleware(token, srv.handleEvent))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
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
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		summaries, err := s.daemon.svc.List(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.EventListResponse{Events: summaries})
	case http.MethodPost:
		var req api.CreateEventRequest
		if !s.decode(w, r, &req) {
			return
		}
		view, err := s.daemon.svc.Create(req)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, view)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleEvent dispatches /api/events/{id} and its sub-resources. Path
// segments are parsed by hand; ids are percent-decoded.
func (s *apiServer) handleEvent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}
	segments := strings.Split(rest, "/")
	eventID, err := url.PathUnescape(segments[0])
	if err != nil || eventID == "" {
		s.writeError(w, http.StatusNotFound, "event not found")
		return
	}

	switch {
	case len(segments) == 1:
		s.handleEventDetail(w, r, eventID)
	case len(segments) == 2 && segments[1] == "attach":
		s.handleAttach(w, r, eventID)
	case len(segments) == 2 && segments[1] == "modules":
		s.handleSetModule(w, r, eventID)
	case len(segments) == 3 && segments[1] == "workflow" && segments[2] == "run":
		s.handleRun(w, r, eventID)
	case len(segments) == 2 && segments[1] == "progress":
		s.handleProgress(w, r, eventID)
	case len(segments) == 2 && segments[1] == "state":
		s.handleState(w, r, eventID)
	case len(segments) == 3 && segments[1] == "modules" && segments[2] == "run":
		s.writeError(w, http.StatusNotFound, "module name required")
	case len(segments) == 4 && segments[1] == "modules" && segments[3] == "run":
		module, err := url.PathUnescape(segments[2])
		if err != nil || module == "" {
			s.writeError(w, http.StatusNotFound, "module name required")
			return
		}
		s.handleRunModule(w, r, eventID, module)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *apiServer) handleEventDetail(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	detail, err := s.daemon.svc.Describe(r.Context(), eventID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *apiServer) handleAttach(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.AttachVideoRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.svc.AttachVideo(eventID, req.Path)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleSetModule(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SetModuleRequest
	if !s.decode(w, r, &req) {
		return
	}
	view, err := s.daemon.svc.SetModule(eventID, req.Module, req.Enabled)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	force := parseForce(r)
	if err := s.daemon.orch.StartRun(eventID, force); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RunAccepted{
		EventID: eventID,
		Force:   force,
		Status:  "started",
	})
}

func (s *apiServer) handleRunModule(w http.ResponseWriter, r *http.Request, eventID, module string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	force := parseForce(r)
	if err := s.daemon.orch.StartModuleRun(eventID, module, force); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.RunAccepted{
		EventID: eventID,
		Module:  module,
		Force:   force,
		Status:  "started",
	})
}

func (s *apiServer) handleProgress(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	view, err := s.daemon.svc.Progress(r.Context(), eventID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *apiServer) handleState(w http.ResponseWriter, r *http.Request, eventID string) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	view, err := s.daemon.svc.State(r.Context(), eventID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func parseForce(r *http.Request) bool {
	value := r.URL.Query().Get("force")
	return value == "1" || strings.EqualFold(value, "true")
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps the error taxonomy onto HTTP status codes.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrAlreadyRunning):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logging.NewNop()
}
