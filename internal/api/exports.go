package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/jobutil"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
)

type createExportRequest struct {
	ProjectID string   `json:"projectId"`
	ImageIDs  []string `json:"imageIds"`
}

// POST /api/exports
// Validates the selection (every image needs a staged result), records the
// export and hands it to the worker. Poll GET /api/exports/{id}.
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Exports == nil || s.deps.ExportJobs == nil {
		httpError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	var req createExportRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	project, ok := s.loadProject(w, r, req.ProjectID)
	if !ok {
		return
	}
	ctx := r.Context()

	exp, err := s.deps.Exports.Create(ctx, project.ID, req.ImageIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	err = s.deps.ExportJobs.Dispatch(ctx, dispatch.Job{
		Type:      dispatch.TypeExport,
		ProjectID: project.ID,
		ExportID:  exp.ID,
	})
	if err != nil {
		if werr := jobutil.SetJobError(ctx, project.ID, exp.ID, "failed to start export", s.store()); werr != nil {
			log.Error().Err(werr).Str("exportId", exp.ID).Msg("Failed to record dispatch failure")
		}
		httpError(w, http.StatusInternalServerError, "failed to start export", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, exp)
}

// GET /api/exports/{id}?projectId=...
func (s *Server) handleExportRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Exports == nil {
		httpError(w, http.StatusServiceUnavailable, "exports not configured")
		return
	}
	route, ok := jobs.ParseRoute(r.URL.Path, "/api/exports/")
	if !ok || len(route.Rest) > 0 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	project, ok := s.loadProject(w, r, r.URL.Query().Get("projectId"))
	if !ok {
		return
	}

	exp, url, err := s.deps.Exports.Describe(r.Context(), project.ID, route.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"export":      exp,
		"downloadUrl": url,
	})
}

type detectRequest struct {
	Filename string             `json:"filename"`
	Metadata *roomtype.Metadata `json:"metadata"`
}

// POST /api/roomtype/detect
func (s *Server) handleDetectRoomType(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req detectRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, roomtype.Detect(req.Filename, req.Metadata).WithFallback(req.Filename))
}
