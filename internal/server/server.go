// Package server exposes the upload controller over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/withObsrvr/raiser-uploader/internal/jobstore"
	"github.com/withObsrvr/raiser-uploader/internal/uploader"
)

// Controller is the part of the upload controller the server drives.
type Controller interface {
	Start(ctx context.Context) error
	AutoStart(ctx context.Context) (bool, error)
	Cancel() bool
	Snapshot() uploader.Job
}

// Server serves the control surface.
type Server struct {
	ctrl     Controller
	store    jobstore.Store
	gatherer prometheus.Gatherer
	log      *slog.Logger

	// jobs outlive the request that started them
	jobCtx context.Context
}

// New creates a server. Jobs started over HTTP run under jobCtx.
func New(jobCtx context.Context, ctrl Controller, store jobstore.Store, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		ctrl:     ctrl,
		store:    store,
		gatherer: gatherer,
		log:      slog.With("component", "server"),
		jobCtx:   jobCtx,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	u := r.PathPrefix("/upload").Subrouter()
	u.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	u.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	u.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost)
	u.HandleFunc("/trigger", s.handleTrigger).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control surface listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusResponse struct {
	Job        uploader.Job         `json:"job"`
	Descriptor *jobstore.Descriptor `json:"descriptor,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Job: s.ctrl.Snapshot()}

	d, err := s.store.Load(r.Context())
	switch {
	case errors.Is(err, jobstore.ErrNoJob):
	case err != nil:
		s.log.Error("load descriptor", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	default:
		resp.Descriptor = d
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(s.jobCtx); err != nil {
		s.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.Snapshot())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if s.ctrl.Cancel() {
		writeJSON(w, http.StatusAccepted, map[string]bool{"cancelled": true})
		return
	}

	// Nothing running: withdraw any pending request instead.
	if err := jobstore.Untrigger(r.Context(), s.store); err != nil {
		s.log.Error("clear trigger", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": false})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if _, err := jobstore.Trigger(r.Context(), s.store); err != nil {
		s.log.Error("set trigger", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	started, err := s.ctrl.AutoStart(s.jobCtx)
	if err != nil {
		s.writeStartError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"started": started,
		"job":     s.ctrl.Snapshot(),
	})
}

func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	if errors.Is(err, uploader.ErrAlreadyRunning) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	s.log.Error("start upload", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
