package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

const lockFile = ".agent.lock"

var projectNameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

var errInvalidName = errors.New("project name must match ^[a-zA-Z0-9_-]{1,50}$")

// projectInfo is the wire representation of a project.
type projectInfo struct {
	Name          string `json:"name"`
	Locked        bool   `json:"locked"`
	SessionActive bool   `json:"session_active"`
}

func (s *Server) projectDir(name string) string {
	return filepath.Join(s.projectsDir, name)
}

func (s *Server) projectExists(name string) bool {
	info, err := os.Stat(s.projectDir(name))
	return err == nil && info.IsDir()
}

func (s *Server) projectLocked(name string) bool {
	_, err := os.Stat(filepath.Join(s.projectDir(name), lockFile))
	return err == nil
}

func (s *Server) info(name string) projectInfo {
	_, active := s.registry.Get(name)
	return projectInfo{
		Name:          name,
		Locked:        s.projectLocked(name),
		SessionActive: active,
	}
}

// --- Projects ---

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.projectsDir)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}

	projects := []projectInfo{}
	for _, e := range entries {
		if !e.IsDir() || !projectNameRE.MatchString(e.Name()) {
			continue
		}
		projects = append(projects, s.info(e.Name()))
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	s.jsonResponse(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if !projectNameRE.MatchString(req.Name) {
		s.errorResponse(w, http.StatusBadRequest, errInvalidName)
		return
	}
	if s.projectExists(req.Name) {
		s.errorResponse(w, http.StatusConflict, fmt.Errorf("project %s already exists", req.Name))
		return
	}
	if err := os.MkdirAll(s.projectDir(req.Name), 0o755); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, s.info(req.Name))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !projectNameRE.MatchString(name) {
		s.errorResponse(w, http.StatusBadRequest, errInvalidName)
		return
	}
	if !s.projectExists(name) {
		s.errorResponse(w, http.StatusNotFound, fmt.Errorf("project %s not found", name))
		return
	}
	s.jsonResponse(w, http.StatusOK, s.info(name))
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !projectNameRE.MatchString(name) {
		s.errorResponse(w, http.StatusBadRequest, errInvalidName)
		return
	}
	if !s.projectExists(name) {
		s.errorResponse(w, http.StatusNotFound, fmt.Errorf("project %s not found", name))
		return
	}
	if _, active := s.registry.Get(name); active {
		s.errorResponse(w, http.StatusConflict, fmt.Errorf("project %s has an active session", name))
		return
	}
	if s.projectLocked(name) {
		s.errorResponse(w, http.StatusConflict, fmt.Errorf("project %s is locked by a running agent", name))
		return
	}
	if err := os.RemoveAll(s.projectDir(name)); err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Feature tracker ---

func (s *Server) handleProjectStats(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !projectNameRE.MatchString(name) {
		s.errorResponse(w, http.StatusBadRequest, errInvalidName)
		return
	}
	if !s.projectExists(name) {
		s.errorResponse(w, http.StatusNotFound, fmt.Errorf("project %s not found", name))
		return
	}
	stats, err := s.stats(r.Context(), name)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}
