package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// userHeader carries the caller identity set by the upstream authorizer.
const userHeader = "X-User-Id"

const maxProjectNameLen = 120

type createProjectRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	UserID  string `json:"userId"`
}

// POST /api/projects
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if caller := r.Header.Get(userHeader); caller != "" {
		req.UserID = caller
	}
	if req.Name == "" || req.UserID == "" {
		httpError(w, http.StatusBadRequest, "name and userId are required")
		return
	}
	if len(req.Name) > maxProjectNameLen {
		httpError(w, http.StatusBadRequest, "project name is too long")
		return
	}

	p := &store.Project{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    req.UserID,
		Name:      req.Name,
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store().PutProject(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	log.Info().Str("projectId", p.ID).Str("userId", p.UserID).Msg("Project created")
	respondJSON(w, http.StatusCreated, p)
}

// GET /api/projects/{id} and GET /api/projects/{id}/images
func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	route, ok := jobs.ParseRoute(r.URL.Path, "/api/projects/")
	if !ok || len(route.Rest) > 1 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	project, ok := s.loadProject(w, r, route.ID)
	if !ok {
		return
	}

	switch route.Action() {
	case "":
		summary, err := s.deps.Lifecycle.Summary(r.Context(), project.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"project": project,
			"summary": summary,
		})
	case "images":
		images, err := s.store().ListImages(r.Context(), project.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		if images == nil {
			images = []*store.Image{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"images": images})
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

// loadProject fetches a project and checks the caller owns it. It writes
// the error response itself and reports whether the caller may continue.
// Missing and foreign projects both read as 404.
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request, projectID string) (*store.Project, bool) {
	if projectID == "" {
		httpError(w, http.StatusBadRequest, "projectId is required")
		return nil, false
	}
	p, err := s.store().GetProject(r.Context(), projectID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if p == nil {
		writeError(w, lifecycle.ErrNotFound)
		return nil, false
	}
	if caller := r.Header.Get(userHeader); caller != "" && !jobs.CheckOwnership(caller, p.UserID) {
		log.Warn().Str("projectId", projectID).Str("caller", caller).Msg("Project ownership check failed")
		writeError(w, lifecycle.ErrNotFound)
		return nil, false
	}
	return p, true
}
