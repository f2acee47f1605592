// Package web provides the HTTP status and control server for the scheduler
// daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/sweeney/time-scheduler/internal/config"
	"github.com/sweeney/time-scheduler/internal/logic"
	"github.com/sweeney/time-scheduler/internal/status"
)

// Controller applies operator changes coming in over HTTP.
type Controller interface {
	SetMaintenance(on bool) error
	SetWindow(name string, w logic.Window) error
	SetSilent(enabled *bool, w *logic.Window) error
	SetTariff(band string, idx int, w logic.Window) error
}

// Server serves the status page and control API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
	logger     zerolog.Logger
}

// New creates a Server that reads state from tracker. ctl and metrics may be
// nil, which disables the control API and /metrics respectively.
func New(addr string, tracker *status.Tracker, ctl Controller, metrics http.Handler, logger zerolog.Logger) *Server {
	s := &Server{tracker: tracker, ctl: ctl, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/", s.handleIndex)
	r.Get("/index.html", s.handleIndex)
	r.Get("/index.json", s.handleJSON)
	r.Get("/tasklist.json", s.handleTaskList)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	if ctl != nil {
		r.Route("/api", func(r chi.Router) {
			r.Post("/maintenance", s.handleMaintenance)
			r.Put("/windows/{name}", s.handleWindow)
			r.Put("/silent", s.handleSilent)
			r.Put("/tariff/{band}/{index}", s.handleTariff)
		})
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Error().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatTaskList(s.tracker.Snapshot()))
}

type maintenanceRequest struct {
	On *bool `json:"on"`
}

type windowRequest struct {
	Window *logic.Window `json:"window"`
}

type silentRequest struct {
	Enabled *bool         `json:"enabled"`
	Window  *logic.Window `json:"window"`
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	var req maintenanceRequest
	if err := decodeBody(w, r, &req); err != nil || req.On == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"on\": true|false}")
		return
	}
	if err := s.ctl.SetMaintenance(*req.On); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := decodeBody(w, r, &req); err != nil || req.Window == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"window\": \"HH:MM-HH:MM\"}")
		return
	}
	if err := s.ctl.SetWindow(chi.URLParam(r, "name"), *req.Window); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSilent(w http.ResponseWriter, r *http.Request) {
	var req silentRequest
	if err := decodeBody(w, r, &req); err != nil || (req.Enabled == nil && req.Window == nil) {
		writeError(w, http.StatusBadRequest, "body must set enabled and/or window")
		return
	}
	if err := s.ctl.SetSilent(req.Enabled, req.Window); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTariff(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusNotFound, "index must be a number")
		return
	}
	var req windowRequest
	if err := decodeBody(w, r, &req); err != nil || req.Window == nil {
		writeError(w, http.StatusBadRequest, "body must be {\"window\": \"HH:MM-HH:MM\"}")
		return
	}
	if err := s.ctl.SetTariff(chi.URLParam(r, "band"), idx, *req.Window); err != nil {
		s.writeControlError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, config.ErrUnknownWindow), errors.Is(err, config.ErrUnknownBand):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, config.ErrSilentNotConfigured):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("control request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
