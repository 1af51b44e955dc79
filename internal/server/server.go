// Package server provides the HTTP API for the punch counter.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/punchcounter/internal/server/api"
	"github.com/ayusman/punchcounter/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Analyzer  api.Analyzer
	Events    *EventHub
}

// Server represents the HTTP server for the punch counter.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	runs   *api.RunHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Register run API handler if Store is configured
	if s.config.Store != nil {
		s.runs = api.NewRunHandler(s.config.Store, s.config.Analyzer)
		s.mux.Handle("/api/runs", s.runs)
		s.mux.Handle("/api/runs/", s.runs)
	}

	// Register progress WebSocket endpoint if an event hub is configured
	if s.config.Events != nil {
		s.mux.Handle("/api/events", s.config.Events)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Events != nil {
		response["event_clients"] = s.config.Events.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// Close stops async runs started over the API and waits for them to finish
// writing to the store.
func (s *Server) Close() {
	if s.runs != nil {
		s.runs.Close()
	}
}

// HTTPServer returns an http.Server for addr, for callers that need graceful shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
