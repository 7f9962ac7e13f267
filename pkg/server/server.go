package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/session"
)

// StatsFunc reports the feature tracker stats for a project.
type StatsFunc func(ctx context.Context, project string) (domain.FeatureStats, error)

// Server serves the REST API and chat WebSocket for the autodev system.
type Server struct {
	projectsDir string
	registry    *session.Registry
	stats       StatsFunc
	srv         *http.Server
}

// New creates a new Server. projectsDir is the directory holding one
// subdirectory per project.
func New(projectsDir string, registry *session.Registry, stats StatsFunc) *Server {
	return &Server{
		projectsDir: projectsDir,
		registry:    registry,
		stats:       stats,
	}
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting web server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Handler builds the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Project routes
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects/{name}", s.handleGetProject)
	mux.HandleFunc("DELETE /api/projects/{name}", s.handleDeleteProject)

	// Feature tracker
	mux.HandleFunc("GET /api/projects/{name}/stats", s.handleProjectStats)

	// WebSocket
	mux.HandleFunc("/api/projects/{name}/chat", s.handleChatWebSocket)

	return s.corsMiddleware(mux)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	slog.Error("API Error", "error", err)
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
