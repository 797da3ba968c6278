package jobs

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/rs/zerolog/log"
)

// ExportIDPrefix marks MLS export job IDs.
const ExportIDPrefix = "exp-"

// GenerateID creates a new cryptographically random job ID with the given
// prefix, e.g. GenerateID(ExportIDPrefix).
func GenerateID(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msgf("Failed to generate random %s job ID", prefix)
	}
	return prefix + hex.EncodeToString(b)
}
