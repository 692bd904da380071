// Package statusapi exposes a read-only local HTTP surface for the desktop
// shell. It renders agent state; it never accepts commands.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medlink-labs/medlink/internal/domain"
	"github.com/medlink-labs/medlink/internal/ports"
)

// Status is the agent self-description served at /status.
type Status struct {
	State        string    `json:"state"`
	Version      string    `json:"version"`
	StartedAt    time.Time `json:"startedAt,omitempty"`
	PendingFiles int       `json:"pendingFiles"`
	LastSyncAt   time.Time `json:"lastSyncAt,omitempty"`
	LastExportAt time.Time `json:"lastExportAt,omitempty"`
}

// Source supplies the snapshots the server renders.
type Source interface {
	Status() Status
	SyncStats() domain.SyncStats
	ExportStats() domain.ExportStats
	Activity() []domain.ActivityItem
}

// Server is the localhost status listener.
type Server struct {
	addr   string
	source Source
	logger ports.Logger
	srv    *http.Server
}

// NewServer creates a status server bound to addr (typically 127.0.0.1:0 or a
// fixed localhost port).
func NewServer(addr string, source Source, logger ports.Logger) *Server {
	return &Server{addr: addr, source: source, logger: logger}
}

// Start binds the listener and serves in the background. The returned address
// carries the resolved port.
func (s *Server) Start() (string, error) {
	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Get("/activity", s.handleActivity)
	r.Get("/stats", s.handleStats)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", err
	}

	s.srv = &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", ports.Err(err))
		}
	}()

	addr := ln.Addr().String()
	s.logger.Info("status server listening", ports.String("addr", addr))
	return addr, nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.source.Status())
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	items := s.source.Activity()
	if items == nil {
		items = []domain.ActivityItem{}
	}
	s.writeJSON(w, items)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, struct {
		Sync   domain.SyncStats   `json:"sync"`
		Export domain.ExportStats `json:"export"`
	}{
		Sync:   s.source.SyncStats(),
		Export: s.source.ExportStats(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode status response", ports.Err(err))
	}
}
