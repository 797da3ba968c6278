package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/filehandler"
	"github.com/smiley-maker/rooms-that-sell/internal/s3util"
)

// BlobHandler serves a LocalStore under prefix (e.g. "/blobs/"): GET reads
// an object and PUT accepts a browser upload to a key issued by
// /api/upload-url. It stands in for S3 when running locally.
func BlobHandler(blobs *s3util.LocalStore, prefix string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, prefix)
		if err := s3util.ValidateKey(key); err != nil {
			httpError(w, http.StatusBadRequest, "invalid key")
			return
		}

		switch r.Method {
		case http.MethodGet, http.MethodHead:
			rc, err := blobs.Get(r.Context(), key)
			if errors.Is(err, s3util.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not found")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "read failed", err.Error())
				return
			}
			defer rc.Close()
			if info, err := blobs.Head(r.Context(), key); err == nil && info.ContentType != "" {
				w.Header().Set("Content-Type", info.ContentType)
			}
			w.Header().Set("X-Content-Type-Options", "nosniff")
			if r.Method == http.MethodHead {
				return
			}
			io.Copy(w, rc)

		case http.MethodPut:
			if !s3util.IsUploadKey(s3util.ProjectIDFromKey(key), key) {
				httpError(w, http.StatusForbidden, "uploads are only accepted for originals")
				return
			}
			contentType := r.Header.Get("Content-Type")
			if !filehandler.AllowedContentType(contentType) {
				httpError(w, http.StatusBadRequest, "unsupported content type: "+contentType)
				return
			}
			if r.ContentLength > filehandler.MaxUploadBytes {
				httpError(w, http.StatusRequestEntityTooLarge, "file too large")
				return
			}
			body := http.MaxBytesReader(w, r.Body, filehandler.MaxUploadBytes)
			if err := blobs.Put(r.Context(), key, body, contentType); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httpError(w, http.StatusRequestEntityTooLarge, "file too large")
					return
				}
				httpError(w, http.StatusInternalServerError, "write failed", err.Error())
				return
			}
			log.Debug().Str("key", key).Msg("Local upload stored")
			w.WriteHeader(http.StatusOK)

		default:
			httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	})
}
