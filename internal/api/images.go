package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/dispatch"
	"github.com/smiley-maker/rooms-that-sell/internal/jobs"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
	"github.com/smiley-maker/rooms-that-sell/internal/store"
)

// handleImageRoutes dispatches /api/images/{id}[/action[/...]].
func (s *Server) handleImageRoutes(w http.ResponseWriter, r *http.Request) {
	route, ok := jobs.ParseRoute(r.URL.Path, "/api/images/")
	if !ok {
		httpError(w, http.StatusNotFound, "not found")
		return
	}
	project, ok := s.loadProject(w, r, r.URL.Query().Get("projectId"))
	if !ok {
		return
	}
	projectID, imageID := project.ID, route.ID

	switch {
	case route.Action() == "" && r.Method == http.MethodGet:
		s.handleGetImage(w, r, projectID, imageID)
	case route.Action() == "" && r.Method == http.MethodDelete:
		s.handleDeleteImage(w, r, projectID, imageID)
	case route.Action() == "room-type" && r.Method == http.MethodPost:
		s.handleRoomType(w, r, projectID, imageID)
	case route.Action() == "stage" && r.Method == http.MethodPost:
		s.handleStage(w, r, projectID, imageID)
	case route.Action() == "approve" && r.Method == http.MethodPost:
		img, err := s.deps.Lifecycle.Approve(r.Context(), projectID, imageID)
		respond(w, img, err)
	case route.Action() == "prune" && r.Method == http.MethodPost:
		s.handlePrune(w, r, projectID, imageID)
	case route.Action() == "versions":
		s.handleVersionRoutes(w, r, projectID, imageID, route.Rest[1:])
	case route.Action() == "" || route.Action() == "room-type" || route.Action() == "stage" ||
		route.Action() == "approve" || route.Action() == "prune":
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}

func respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

type imageResponse struct {
	*store.Image
	OriginalURL  string `json:"originalUrl,omitempty"`
	StagedURL    string `json:"stagedUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// GET /api/images/{id}
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	ctx := r.Context()
	img, err := s.deps.Lifecycle.GetImage(ctx, projectID, imageID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := imageResponse{Image: img}
	resp.OriginalURL = s.blobURL(ctx, img.OriginalKey)
	resp.StagedURL = s.blobURL(ctx, img.StagedKey)
	resp.ThumbnailURL = s.blobURL(ctx, s3util.ThumbnailKey(projectID, imageID))
	respondJSON(w, http.StatusOK, resp)
}

// blobURL signs key, or returns "" when key is empty or signing fails.
func (s *Server) blobURL(ctx context.Context, key string) string {
	if key == "" || s.deps.Blobs == nil {
		return ""
	}
	url, err := s.deps.Blobs.URL(ctx, key, s.deps.URLExpiry)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to sign blob URL")
		return ""
	}
	return url
}

// DELETE /api/images/{id}
func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	if err := s.deps.Lifecycle.DeleteImage(r.Context(), projectID, imageID); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "imageId": imageID})
}

// POST /api/images/{id}/room-type {"roomType": "kitchen"}
func (s *Server) handleRoomType(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	var req struct {
		RoomType string `json:"roomType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	img, err := s.deps.Lifecycle.UpdateRoomType(r.Context(), projectID, imageID, req.RoomType)
	respond(w, img, err)
}

type stageRequest struct {
	Style        string `json:"style"`
	CustomPrompt string `json:"customPrompt"`
}

// POST /api/images/{id}/stage
// Runs the generation in-request, or queues it when a stage dispatcher is
// configured (202).
func (s *Server) handleStage(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	var req stageRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	if s.deps.StageJobs != nil {
		img, err := s.deps.Lifecycle.GetImage(ctx, projectID, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := staging.BuildPrompt(img.RoomType, req.Style, req.CustomPrompt); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		err = s.deps.StageJobs.Dispatch(ctx, dispatch.Job{
			Type:         dispatch.TypeStage,
			ProjectID:    projectID,
			ImageID:      imageID,
			Style:        req.Style,
			CustomPrompt: req.CustomPrompt,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "failed to start staging", err.Error())
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]string{"imageId": imageID, "status": "queued"})
		return
	}

	if s.deps.Stager == nil {
		httpError(w, http.StatusServiceUnavailable, "staging not configured")
		return
	}
	v, img, err := s.deps.Stager.Stage(ctx, projectID, imageID, staging.Options{
		Style:        req.Style,
		CustomPrompt: req.CustomPrompt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"version":   v,
		"image":     img,
		"stagedUrl": s.blobURL(ctx, v.StagedKey),
	})
}

// POST /api/images/{id}/prune {"keep": 3}
func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request, projectID, imageID string) {
	var req struct {
		Keep int `json:"keep"`
	}
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Keep < 1 {
		httpError(w, http.StatusBadRequest, "keep must be at least 1")
		return
	}
	removed, err := s.deps.Lifecycle.PruneVersions(r.Context(), projectID, imageID, req.Keep)
	if err != nil {
		writeError(w, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"removed": removed})
}

// handleVersionRoutes serves /api/images/{id}/versions[/{vid}[/current|/pin]].
func (s *Server) handleVersionRoutes(w http.ResponseWriter, r *http.Request, projectID, imageID string, rest []string) {
	ctx := r.Context()

	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			httpError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		versions, err := s.deps.Lifecycle.ListVersions(ctx, projectID, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		img, err := s.deps.Lifecycle.GetImage(ctx, projectID, imageID)
		if err != nil {
			writeError(w, err)
			return
		}
		if versions == nil {
			versions = []*store.ImageVersion{}
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"versions":         versions,
			"currentVersionId": img.CurrentVersionID,
		})
		return
	}

	versionID := rest[0]
	action := ""
	if len(rest) > 1 {
		action = rest[1]
	}
	if len(rest) > 2 {
		httpError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodDelete:
		if err := s.deps.Lifecycle.DeleteVersion(ctx, projectID, imageID, versionID); err != nil {
			writeError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "versionId": versionID})
	case action == "current" && r.Method == http.MethodPost:
		img, err := s.deps.Lifecycle.SetCurrentVersion(ctx, projectID, imageID, versionID)
		respond(w, img, err)
	case action == "pin" && r.Method == http.MethodPost:
		req := struct {
			Pinned *bool `json:"pinned"`
		}{}
		if err := decodeJSON(r, &req); err != nil {
			httpError(w, http.StatusBadRequest, err.Error())
			return
		}
		pinned := true
		if req.Pinned != nil {
			pinned = *req.Pinned
		}
		v, err := s.deps.Lifecycle.SetVersionPinned(ctx, projectID, imageID, versionID, pinned)
		respond(w, v, err)
	case action == "" || action == "current" || action == "pin":
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		httpError(w, http.StatusNotFound, "not found")
	}
}
