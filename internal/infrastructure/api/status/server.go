// Package status serves the optional, read-only HTTP/websocket surface
// supervisory tooling can poll or stream (spec §6's REST status poller
// and websocket hub collaborators). It never mutates the loop; every
// route reads from the same domain.KnowledgeStorage the runner writes
// to.
package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/synthloom/core/internal/domain"
	"github.com/synthloom/core/internal/infrastructure/websocket"
)

// Server exposes health, recent-events, and live event-stream routes.
type Server struct {
	events domain.EventStore
	hub    *websocket.Hub
	auth   websocket.Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wires a Server backed by events and hub. auth gates the
// websocket upgrade; pass websocket.NewNoAuth() when no JWT secret is
// configured.
func NewServer(events domain.EventStore, hub *websocket.Hub, auth websocket.Authenticator, logger *slog.Logger) *Server {
	s := &Server{events: events, hub: hub, auth: auth, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /events/recent", s.handleRecentEvents)
	s.mux.HandleFunc("GET /events/task/{taskID}", s.handleTaskEvents)
	s.mux.Handle("GET /ws", websocket.NewHandler(s.hub, s.auth, s.logger))
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"connected_peers": s.hub.ClientCount(),
		"time":            time.Now().UTC(),
	})
}

func (s *Server) handleRecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.GetRecentEvents(r.Context(), 100)
	s.writeEvents(w, events, err)
}

func (s *Server) handleTaskEvents(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskID")
	events, err := s.events.GetEventsForTask(r.Context(), taskID)
	s.writeEvents(w, events, err)
}

func (s *Server) writeEvents(w http.ResponseWriter, events []domain.ExecutionEvent, err error) {
	if err != nil {
		s.logger.Error("failed to load events", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.logger.Error("failed to encode events", "error", err)
	}
}

// Serve runs the server until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("status server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
