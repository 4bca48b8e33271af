package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes daemon state over HTTP:
//
//	GET  /ws       state WebSocket (state_init, then broadcasts)
//	GET  /state    one JSON snapshot
//	POST /events   one event envelope, same format as the IPC socket
//	GET  /metrics  Prometheus
//	GET  /healthz  liveness
type Server struct {
	logger *slog.Logger
	hub    *Hub

	// Snapshots are requested through the event loop.
	events chan<- Event

	gatherer prometheus.Gatherer
}

func NewServer(logger *slog.Logger, events chan<- Event, hub *Hub, gatherer prometheus.Gatherer) *Server {
	return &Server{logger: logger, hub: hub, events: events, gatherer: gatherer}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.handleStateWS)
	r.Get("/state", s.handleState)
	r.Post("/events", s.handleEvent)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := requestSnapshot(r.Context(), s.events)
	if err != nil {
		http.Error(w, "snapshot unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, IPCResponse{Status: "error", Error: err.Error()})
		return
	}
	ev, err := UnmarshalEvent(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, IPCResponse{Status: "error", Error: fmt.Sprintf("parse event: %v", err)})
		return
	}
	select {
	case s.events <- ev:
		writeJSON(w, http.StatusAccepted, IPCResponse{Status: "ok"})
	default:
		writeJSON(w, http.StatusServiceUnavailable, IPCResponse{Status: "error", Error: "event queue full"})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ws_clients": clients})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// runHTTPServer serves h on listen and shuts down gracefully when ctx is canceled.
func runHTTPServer(ctx context.Context, listen string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("http server listening", "addr", listen)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
