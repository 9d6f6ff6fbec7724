package ops

import (
	"database/sql"
	"strings"

	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/record"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	EpisodeID   string // required
	IncludeText bool   // include chunk text
}

// ChunkItem is a chunk as returned by Fetch; Text is omitted unless requested.
type ChunkItem struct {
	Index           int    `json:"chunk_index"`
	ApproxWordCount int    `json:"approx_word_count"`
	Text            string `json:"text,omitempty"`
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	record.Summary
	Chunks []ChunkItem `json:"chunks"`

	// Source is "index" or "artifact"
	Source string `json:"source"`
}

// Fetch returns one episode. The index is consulted first; when the episode
// is not indexed and writer is non-nil, the JSON artifact is read instead.
func Fetch(database *sql.DB, writer *record.Writer, input FetchInput) (*FetchOutput, error) {
	id := strings.TrimSpace(input.EpisodeID)
	if id == "" {
		return nil, errors.NewInvalidRequest("episode_id is required")
	}

	source := "index"
	var rec *record.Record
	var err error
	if database != nil {
		rec, err = db.GetByID(database, id)
	} else {
		err = errors.NewNotFound(id)
	}
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) || writer == nil {
			return nil, err
		}
		rec, err = writer.Read(id)
		if err != nil {
			return nil, err
		}
		source = "artifact"
	}

	out := &FetchOutput{
		Summary: rec.ToSummary(),
		Chunks:  make([]ChunkItem, len(rec.Chunks)),
		Source:  source,
	}
	for i, c := range rec.Chunks {
		out.Chunks[i] = ChunkItem{Index: c.Index, ApproxWordCount: c.ApproxWordCount}
		if input.IncludeText {
			out.Chunks[i].Text = c.Text
		}
	}
	return out, nil
}

// GetChunkInput contains parameters for the GetChunk operation.
type GetChunkInput struct {
	EpisodeID  string // required
	ChunkIndex int    // required, >= 0
}

// GetChunkOutput is one chunk with enough episode metadata to cite it.
type GetChunkOutput struct {
	EpisodeID       string `json:"episode_id"`
	URL             string `json:"youtube_url"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	NumChunks       int    `json:"num_chunks"`
	ChunkIndex      int    `json:"chunk_index"`
	ApproxWordCount int    `json:"approx_word_count"`
	Text            string `json:"text"`
}

// GetChunk returns a single indexed chunk.
func GetChunk(database *sql.DB, input GetChunkInput) (*GetChunkOutput, error) {
	id := strings.TrimSpace(input.EpisodeID)
	if id == "" {
		return nil, errors.NewInvalidRequest("episode_id is required")
	}
	if input.ChunkIndex < 0 {
		return nil, errors.NewInvalidRequest("chunk_index must not be negative")
	}

	rec, err := db.GetByID(database, id)
	if err != nil {
		return nil, err
	}
	c, err := db.GetChunk(database, id, input.ChunkIndex)
	if err != nil {
		return nil, err
	}

	return &GetChunkOutput{
		EpisodeID:       rec.EpisodeID,
		URL:             rec.URL,
		Title:           rec.Title,
		Date:            rec.Date,
		NumChunks:       rec.NumChunks,
		ChunkIndex:      c.Index,
		ApproxWordCount: c.ApproxWordCount,
		Text:            c.Text,
	}, nil
}
