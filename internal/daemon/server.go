package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildmon/internal/buildcmd"
	"git.home.luguber.info/inful/buildmon/internal/config"
	berrors "git.home.luguber.info/inful/buildmon/internal/errors"
	"git.home.luguber.info/inful/buildmon/internal/logfields"
	"git.home.luguber.info/inful/buildmon/internal/metrics"
	"git.home.luguber.info/inful/buildmon/internal/procscan"
	"git.home.luguber.info/inful/buildmon/internal/report"
	"git.home.luguber.info/inful/buildmon/internal/supervisor"
)

// apiServer exposes the supervisor over the daemon's JSON API.
type apiServer struct {
	cfg          *config.Config
	daemon       *Daemon
	errorAdapter *berrors.HTTPErrorAdapter
	httpServer   *http.Server
	addr         string
	mchain       func(http.Handler) http.Handler
}

func newAPIServer(cfg *config.Config, d *Daemon) *apiServer {
	s := &apiServer{
		cfg:          cfg,
		daemon:       d,
		errorAdapter: berrors.NewHTTPErrorAdapter(slog.Default()),
	}
	s.mchain = chain(slog.Default(), s.errorAdapter)
	return s
}

// Start binds the API port and begins serving. Binding happens before the
// serve goroutine starts so an occupied port fails the daemon immediately
// instead of logging from the background.
func (s *apiServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Daemon.HTTP.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api port %d: %w", s.cfg.Daemon.HTTP.Port, err)
	}

	s.addr = ln.Addr().String()

	s.httpServer = &http.Server{
		Handler:      s.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	slog.Info("API server started", slog.String("addr", s.addr))
	return nil
}

// Stop drains in-flight requests bounded by ctx.
func (s *apiServer) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}

// handler builds the route table. Split from Start so tests can drive the
// mux through httptest without binding a port.
func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.handleStartSession)
	mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleSessionStatus)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleTerminateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/report", s.handleSessionReport)
	mux.HandleFunc("GET /api/v1/sessions/{id}/log", s.handleSessionLog)
	mux.HandleFunc("GET /api/v1/conflicts", s.handleConflicts)

	healthPath := "/healthz"
	metricsEnabled := false
	metricsPath := "/metrics"
	if s.cfg.Monitoring != nil {
		if s.cfg.Monitoring.Health.Path != "" {
			healthPath = s.cfg.Monitoring.Health.Path
		}
		metricsEnabled = s.cfg.Monitoring.Metrics.Enabled
		if s.cfg.Monitoring.Metrics.Path != "" {
			metricsPath = s.cfg.Monitoring.Metrics.Path
		}
	}
	mux.HandleFunc("GET "+healthPath, s.handleHealth)
	if metricsEnabled && s.daemon.registry != nil {
		mux.Handle("GET "+metricsPath, metrics.HTTPHandler(s.daemon.registry))
	}

	return s.mchain(mux)
}

// startSessionRequest is the POST /api/v1/sessions payload. An empty body
// is a plain foreground `make all`.
type startSessionRequest struct {
	Targets      []string `json:"targets,omitempty"`
	CMake        bool     `json:"cmake"`
	CMakeOnly    bool     `json:"cmake_only"`
	ParallelJobs int      `json:"parallel_jobs"`
	Background   string   `json:"background,omitempty"` // auto, always, never
	Force        bool     `json:"force"`
}

// conflictResponse is the 409 body for a rejected start.
type conflictResponse struct {
	Error         string              `json:"error"`
	ActiveSession string              `json:"active_session,omitempty"`
	Conflicts     []procscan.Conflict `json:"conflicts,omitempty"`
}

func (s *apiServer) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.Body != nil && r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			s.errorAdapter.WriteError(w, berrors.ValidationFailed("body", err.Error()))
			return
		}
	}

	desc, err := s.daemon.supervisor.Start(r.Context(), buildcmd.Request{
		Targets:      req.Targets,
		CMake:        req.CMake,
		CMakeOnly:    req.CMakeOnly,
		ParallelJobs: req.ParallelJobs,
		Background:   buildcmd.NormalizeBackgroundMode(req.Background),
		Force:        req.Force,
	})
	if err != nil {
		var conflict *supervisor.ConflictError
		if stdErrors.As(err, &conflict) {
			s.writeJSON(w, http.StatusConflict, conflictResponse{
				Error:         conflict.Error(),
				ActiveSession: conflict.ActiveSession,
				Conflicts:     conflict.Conflicts,
			})
			return
		}
		s.errorAdapter.WriteError(w, err)
		return
	}

	// The build runs after this response; 202 tells clients to poll.
	s.writeJSON(w, http.StatusAccepted, desc)
}

// sessionListResponse wraps GET /api/v1/sessions.
type sessionListResponse struct {
	Sessions []supervisor.Snapshot `json:"sessions"`
	Count    int                   `json:"count"`
}

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.daemon.supervisor.List()
	s.writeJSON(w, http.StatusOK, sessionListResponse{Sessions: sessions, Count: len(sessions)})
}

func (s *apiServer) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.supervisor.Status(r.PathValue("id"))
	if err != nil {
		s.errorAdapter.WriteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *apiServer) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.daemon.supervisor.Terminate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorAdapter.WriteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.supervisor.Status(r.PathValue("id"))
	if err != nil {
		s.errorAdapter.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		page, err := report.HTML(snap)
		if err != nil {
			s.errorAdapter.WriteError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(page)); err != nil {
			slog.Error("failed writing report response", logfields.Error(err))
		}
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if _, err := w.Write([]byte(report.Markdown(snap))); err != nil {
		slog.Error("failed writing report response", logfields.Error(err))
	}
}

func (s *apiServer) handleSessionLog(w http.ResponseWriter, r *http.Request) {
	lines, err := s.daemon.supervisor.SessionLog(r.PathValue("id"))
	if err != nil {
		s.errorAdapter.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(report.LogText(lines))); err != nil {
		slog.Error("failed writing log response", logfields.Error(err))
	}
}

func (s *apiServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	rep, err := s.daemon.supervisor.Conflicts(r.Context())
	if err != nil {
		s.errorAdapter.WriteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

// healthResponse is the GET /healthz payload.
type healthResponse struct {
	Status        Status        `json:"status"`
	Project       string        `json:"project"`
	StartedAt     time.Time     `json:"started_at"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Sessions      sessionCounts `json:"sessions"`
}

type sessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts := sessionCounts{}
	for _, snap := range s.daemon.supervisor.List() {
		counts.Total++
		if snap.Status.Active() {
			counts.Active++
		}
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        s.daemon.GetStatus(),
		Project:       s.daemon.supervisor.Project(),
		StartedAt:     s.daemon.GetStartTime(),
		UptimeSeconds: time.Since(s.daemon.GetStartTime()).Seconds(),
		Sessions:      counts,
	})
}

// writeJSON encodes into a buffer first so a failed marshal never leaves a
// half-written body behind a 200 header.
func (s *apiServer) writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.errorAdapter.WriteError(w, berrors.InternalError("encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("failed writing JSON response body", logfields.Error(err))
	}
}
