package ops

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
)

// PurgeInput contains parameters for the Purge operation.
type PurgeInput struct {
	EpisodeIDs []string // required, at least one
}

// PurgeOutput contains the result of the Purge operation.
type PurgeOutput struct {
	Purged   int      `json:"purged"`
	NotFound []string `json:"not_found,omitempty"`
	Message  string   `json:"message"`
}

// Purge removes episodes from the index. JSON artifacts on disk are kept.
// Unknown ids are reported, not treated as errors.
func Purge(database *sql.DB, input PurgeInput) (*PurgeOutput, error) {
	var ids []string
	for _, id := range input.EpisodeIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.NewInvalidRequest("at least one episode_id is required")
	}

	out := &PurgeOutput{}
	for _, id := range ids {
		if err := db.Delete(database, id); err != nil {
			if errors.Is(err, errors.ErrNotFound) {
				out.NotFound = append(out.NotFound, id)
				continue
			}
			return nil, err
		}
		out.Purged++
	}

	out.Message = formatPurgeMessage(out.Purged)
	return out, nil
}

// formatPurgeMessage creates a human-readable message for the purge result.
func formatPurgeMessage(count int) string {
	if count == 0 {
		return "No episodes to purge"
	}
	word := "episode"
	if count > 1 {
		word = "episodes"
	}
	return fmt.Sprintf("Removed %d %s from the index", count, word)
}
