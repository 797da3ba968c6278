package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/smiley-maker/rooms-that-sell/internal/lifecycle"
	"github.com/smiley-maker/rooms-that-sell/internal/mls"
	"github.com/smiley-maker/rooms-that-sell/internal/staging"
)

// maxJSONBody bounds request bodies on JSON endpoints.
const maxJSONBody = 64 << 10

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// httpError sends a JSON error response. The clientMsg is returned to the caller.
// Optional internalDetails are logged server-side but never sent to the client,
// so storage keys and upstream errors stay private.
func httpError(w http.ResponseWriter, status int, clientMsg string, internalDetails ...string) {
	if len(internalDetails) > 0 {
		log.Error().
			Int("status", status).
			Str("clientMsg", clientMsg).
			Strs("internalDetails", internalDetails).
			Msg("HTTP error with internal details")
	}
	respondJSON(w, status, map[string]string{"error": clientMsg})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeError maps domain errors onto status codes. Anything unrecognized is
// a 500 with the detail kept in the log.
func writeError(w http.ResponseWriter, err error) {
	var (
		notReady *mls.NotReadyError
		genErr   *staging.GenerationError
	)
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrCurrentVersion),
		errors.Is(err, lifecycle.ErrPinnedVersion),
		errors.Is(err, lifecycle.ErrOriginalInUse):
		httpError(w, http.StatusConflict, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidRoomType),
		errors.Is(err, lifecycle.ErrVersionMismatch),
		errors.Is(err, mls.ErrNoImages):
		httpError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, staging.ErrInsufficientCredits):
		httpError(w, http.StatusPaymentRequired, err.Error())
	case errors.As(err, &notReady):
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":   notReady.Error(),
			"missing": notReady.Missing,
		})
	case errors.As(err, &genErr):
		switch genErr.Kind {
		case staging.KindInvalidInput:
			httpError(w, http.StatusBadRequest, genErr.Err.Error())
		case staging.KindBlocked:
			httpError(w, http.StatusUnprocessableEntity, "the image model declined this photo", err.Error())
		default:
			httpError(w, http.StatusBadGateway, "staging failed, please retry", err.Error())
		}
	default:
		httpError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
