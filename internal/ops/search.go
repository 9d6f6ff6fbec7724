package ops

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/record"
)

// Search limits
const (
	MaxQueryLength  = db.MaxSearchQueryChars
	MaxSnippetChars = 300
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query     string  // required
	EpisodeID *string // optional filter
	Limit     int     // default: 20, max: 100
	Offset    int     // default: 0
}

// SearchResultItem is one matching chunk.
type SearchResultItem struct {
	Episode    record.Summary `json:"episode"`
	ChunkIndex int            `json:"chunk_index"`
	// Snippet is HTML-safe: chunk text is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"` // "relevance"
}

// Search performs full-text search across indexed chunks, best match first.
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	var filters db.SearchFilters
	if input.EpisodeID != nil {
		if id := strings.TrimSpace(*input.EpisodeID); id != "" {
			filters.EpisodeID = &id
		}
	}

	limit, offset := clampPage(input.Limit, input.Offset, DefaultSearchLimit, MaxSearchLimit)

	hits, total, err := db.SearchChunks(ctx, database, query, filters, limit, offset)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, len(hits))
	for i, h := range hits {
		snippet := escapeSnippetHTML(h.Snippet)
		snippet = truncateSnippet(snippet, MaxSnippetChars)
		items[i] = SearchResultItem{
			Episode:    h.Episode,
			ChunkIndex: h.ChunkIndex,
			Snippet:    snippet,
			Score:      -h.Score,
		}
	}

	return &SearchOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "relevance",
	}, nil
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}
	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// Trim any partial tag or entity left at the cut.
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	unclosed := strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>")
	for range unclosed {
		truncated += "</b>"
	}

	return truncated + "..."
}

// escapeSnippetHTML escapes chunk text in a snippet while turning the index's
// highlight markers into <b> tags. Transcripts are third-party text and may
// contain markup.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00CC_B_OPEN\x00"
		closePlaceholder = "\x00CC_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, db.SnippetOpen, openPlaceholder)
	s = strings.ReplaceAll(s, db.SnippetClose, closePlaceholder)
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")
	return s
}
