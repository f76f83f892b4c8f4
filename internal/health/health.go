// Package health provides HTTP readiness endpoints for monitoring the host.
//
// The health server runs on a separate port from the transform server and
// provides:
// - GET /health returning 102 Processing while engines are still loading,
//   then 200 OK with body "ok"
// - GET /engines returning a JSON inventory of the loaded engines
//
// This lets orchestration wait for engine library loading to complete
// before sending traffic.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"xslhost/internal/host"
)

// Server provides health check endpoints for the host.
type Server struct {
	server   *http.Server
	registry *host.Registry
	ready    atomic.Bool
}

// New creates a health server on the specified port, reporting on registry.
func New(port int, registry *host.Registry) *Server {
	mux := http.NewServeMux()
	s := &Server{
		server: &http.Server{
			Addr:    ":" + strconv.Itoa(port),
			Handler: mux,
		},
		registry: registry,
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/engines", s.enginesHandler)

	return s
}

// Start begins listening for health check requests.
func (s *Server) Start() error {
	slog.Info("Starting health server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the health server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// MarkReady causes /health to return 200.
func (s *Server) MarkReady() {
	s.ready.Store(true)
	slog.Info("Health server marked as ready")
}

// MarkNotReady causes /health to return 102 again, e.g. during a reload.
func (s *Server) MarkNotReady() {
	s.ready.Store(false)
	slog.Info("Health server marked as not ready")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			slog.Error("Failed to write health response", "error", err)
		}
	} else {
		w.WriteHeader(http.StatusProcessing)
		if _, err := w.Write([]byte("starting")); err != nil {
			slog.Error("Failed to write health response", "error", err)
		}
	}
}

func (s *Server) enginesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	infos := s.registry.Engines()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		slog.Error("Failed to write engine inventory", "error", err)
	}
}
