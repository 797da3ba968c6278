package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/filehandler"
	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/roomtype"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
)

// uploadURLExpiry is how long a browser has to start its PUT.
const uploadURLExpiry = 15 * time.Minute

// thumbnailMaxDimension is the long edge of listing grid previews.
const thumbnailMaxDimension = 400

// safeFilenameRegex allows alphanumeric, dots, hyphens, underscores, spaces, and parentheses.
var safeFilenameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ ()-]{0,254}$`)

func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename is required")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("filename contains invalid characters")
	}
	if !safeFilenameRegex.MatchString(name) {
		return fmt.Errorf("filename contains invalid characters; only alphanumeric, dots, hyphens, underscores, spaces, and parentheses allowed")
	}
	return nil
}

// GET /api/upload-url?projectId=...&filename=...&contentType=...&size=...
// Returns a presigned PUT URL so the browser uploads directly to storage.
// The content type is part of the signature.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Uploads == nil {
		httpError(w, http.StatusServiceUnavailable, "uploads not configured")
		return
	}

	q := r.URL.Query()
	filename := filepath.Base(q.Get("filename"))
	contentType := q.Get("contentType")
	var size int64
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "size must be a non-negative integer")
			return
		}
		size = n
	}

	project, ok := s.loadProject(w, r, q.Get("projectId"))
	if !ok {
		return
	}
	if err := validateFilename(filename); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := filehandler.ValidateUpload(filename, contentType, size); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := s3util.UploadKey(project.ID, uuid.NewString(), filename)
	url, err := s.deps.Uploads.PresignPut(r.Context(), key, contentType, uploadURLExpiry)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "failed to generate upload URL", err.Error())
		return
	}

	log.Debug().Str("projectId", project.ID).Str("key", key).Msg("Upload URL issued")
	respondJSON(w, http.StatusOK, map[string]string{
		"uploadUrl": url,
		"key":       key,
	})
}

// objectTagger is implemented by blob stores that tag objects for cost
// allocation. Presigned browser uploads are tagged after the fact.
type objectTagger interface {
	TagObject(ctx context.Context, key string) error
}

type completeUploadRequest struct {
	ProjectID string `json:"projectId"`
	Key       string `json:"key"`
	RoomType  string `json:"roomType"`
}

// POST /api/images
// Called after the browser PUT finishes. Reads the object back, checks its
// size and pixels, classifies the room and records the image.
func (s *Server) handleCompleteUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req completeUploadRequest
	if err := decodeJSON(r, &req); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	project, ok := s.loadProject(w, r, req.ProjectID)
	if !ok {
		return
	}
	if !s3util.IsUploadKey(project.ID, req.Key) {
		httpError(w, http.StatusBadRequest, "invalid key")
		return
	}
	filename := path.Base(req.Key)
	ctx := r.Context()

	info, err := s.deps.Blobs.Head(ctx, req.Key)
	if errors.Is(err, s3util.ErrNotFound) {
		httpError(w, http.StatusBadRequest, "upload not found; PUT the file first")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if info.Size > filehandler.MaxUploadBytes {
		httpError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", filehandler.MaxUploadBytes>>20))
		return
	}

	if t, ok := s.deps.Blobs.(objectTagger); ok {
		if err := t.TagObject(ctx, req.Key); err != nil {
			log.Warn().Err(err).Str("key", req.Key).Msg("Failed to tag uploaded object")
		}
	}

	rc, err := s.deps.Blobs.Get(ctx, req.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := io.ReadAll(io.LimitReader(rc, filehandler.MaxUploadBytes+1))
	rc.Close()
	if err != nil {
		writeError(w, err)
		return
	}

	inspection, err := filehandler.Inspect(data)
	if err != nil {
		httpError(w, http.StatusBadRequest, "file is not a readable image", err.Error())
		return
	}

	meta := s.describeRoom(r, data, filename, inspection)

	img, detection, err := s.deps.Lifecycle.CreateImage(ctx, lifecycle.CreateImageInput{
		ProjectID:   project.ID,
		UserID:      project.UserID,
		Filename:    filename,
		OriginalKey: req.Key,
		Width:       inspection.Width,
		Height:      inspection.Height,
		FileSize:    inspection.Size,
		RoomType:    req.RoomType,
		Metadata:    meta,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	// Thumbnails are a convenience; a failure only costs the preview.
	if thumb, err := filehandler.GenerateThumbnail(inspection.Image, thumbnailMaxDimension); err != nil {
		log.Warn().Err(err).Str("imageId", img.ID).Msg("Thumbnail generation failed")
	} else if err := s.deps.Blobs.Put(ctx, s3util.ThumbnailKey(project.ID, img.ID), bytes.NewReader(thumb), "image/webp"); err != nil {
		log.Warn().Err(err).Str("imageId", img.ID).Msg("Thumbnail upload failed")
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"image":     img,
		"detection": detection,
	})
}

// describeRoom builds classifier metadata from EXIF and, when an analyzer
// is configured, the model's description of the photo. Analysis failures
// fall back to filename-only classification.
func (s *Server) describeRoom(r *http.Request, data []byte, filename string, in *filehandler.Inspection) *roomtype.Metadata {
	extra := ""
	if in.Metadata != nil {
		extra = in.Metadata.FormatMetadataContext()
	}
	if s.deps.Analyzer == nil {
		return nil
	}
	mimeType, err := filehandler.GetMIMEType(path.Ext(filename))
	if err != nil {
		mimeType = "image/jpeg"
	}
	analysis, err := s.deps.Analyzer.Analyze(r.Context(), data, mimeType, extra)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("Room analysis failed, using filename only")
		return nil
	}
	return analysis.Metadata()
}
