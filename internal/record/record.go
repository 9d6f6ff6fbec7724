// Package record assembles and persists the per-episode output artifact.
package record

import (
	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// Record is the persisted form of one processed episode. It is created once
// per episode and never mutated afterwards.
type Record struct {
	// EpisodeID is the video identifier, or a title/date slug when the URL has none
	EpisodeID string `json:"episode_id"`

	// URL is the source video URL
	URL string `json:"youtube_url"`

	Title string `json:"title"`

	// Date is the canonical YYYY-MM-DD episode date
	Date string `json:"date"`

	// RawTextLength is the character count (runes) of the cleaned transcript
	RawTextLength int `json:"raw_text_length"`

	NumChunks int `json:"num_chunks"`

	Chunks []transcript.Chunk `json:"chunks"`
}

// Summary is a record's metadata without chunk text.
// Used by list operations to keep responses small.
type Summary struct {
	EpisodeID     string `json:"episode_id"`
	URL           string `json:"youtube_url"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	RawTextLength int    `json:"raw_text_length"`
	NumChunks     int    `json:"num_chunks"`
	WordCount     int    `json:"word_count"`
}

// Build derives the episode identifier for ref and assembles the record.
// chunks is copied so later changes by the caller do not leak in.
func Build(ref episode.Reference, cleaned string, chunks []transcript.Chunk) *Record {
	owned := make([]transcript.Chunk, len(chunks))
	copy(owned, chunks)

	return &Record{
		EpisodeID:     ref.ID(),
		URL:           ref.URL,
		Title:         ref.Title,
		Date:          ref.Date,
		RawTextLength: transcript.CountChars(cleaned),
		NumChunks:     len(owned),
		Chunks:        owned,
	}
}

// Reference returns the episode reference the record was built from.
func (r *Record) Reference() episode.Reference {
	return episode.Reference{URL: r.URL, Title: r.Title, Date: r.Date}
}

// ToSummary strips the chunk text from r.
func (r *Record) ToSummary() Summary {
	words := 0
	for _, c := range r.Chunks {
		words += c.ApproxWordCount
	}
	return Summary{
		EpisodeID:     r.EpisodeID,
		URL:           r.URL,
		Title:         r.Title,
		Date:          r.Date,
		RawTextLength: r.RawTextLength,
		NumChunks:     r.NumChunks,
		WordCount:     words,
	}
}
