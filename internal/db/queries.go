package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/record"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// Highlight markers placed around matched terms by snippet(). Callers that
// render HTML must escape the snippet and then swap these for <b> tags.
const (
	SnippetOpen  = "[[[B]]]"
	SnippetClose = "[[[/B]]]"
)

// MaxSearchQueryChars bounds the raw query accepted by SearchChunks.
const MaxSearchQueryChars = 500

// Upsert stores rec and its chunks, replacing any earlier version of the same
// episode. The episode row, chunk rows and full-text rows change in one
// transaction.
func Upsert(db *sql.DB, rec *record.Record, runID string) error {
	if rec == nil || rec.EpisodeID == "" {
		return errors.NewInvalidRequest("record with episode_id is required")
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	summary := rec.ToSummary()
	_, err = tx.Exec(`
		INSERT INTO episodes (
			episode_id, youtube_url, title, date, raw_text_length,
			num_chunks, word_count, run_id, indexed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(episode_id) DO UPDATE SET
			youtube_url = excluded.youtube_url,
			title = excluded.title,
			date = excluded.date,
			raw_text_length = excluded.raw_text_length,
			num_chunks = excluded.num_chunks,
			word_count = excluded.word_count,
			run_id = excluded.run_id,
			indexed_at = excluded.indexed_at
	`,
		rec.EpisodeID, rec.URL, rec.Title, rec.Date, rec.RawTextLength,
		rec.NumChunks, summary.WordCount, toNullString(runID), time.Now().Unix(),
	)
	if err != nil {
		return errors.NewInternal(err)
	}

	if err := deleteChunks(tx, rec.EpisodeID); err != nil {
		return err
	}

	chunkStmt, err := tx.Prepare(`INSERT INTO chunks (episode_id, chunk_index, text, approx_word_count) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer chunkStmt.Close()

	ftsStmt, err := tx.Prepare(`INSERT INTO chunks_fts (text, episode_id, chunk_index) VALUES (?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer ftsStmt.Close()

	for _, c := range rec.Chunks {
		if _, err := chunkStmt.Exec(rec.EpisodeID, c.Index, c.Text, c.ApproxWordCount); err != nil {
			return errors.NewInternal(err)
		}
		if _, err := ftsStmt.Exec(c.Text, rec.EpisodeID, c.Index); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

func deleteChunks(tx *sql.Tx, episodeID string) error {
	if _, err := tx.Exec(`DELETE FROM chunks WHERE episode_id = ?`, episodeID); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.Exec(`DELETE FROM chunks_fts WHERE episode_id = ?`, episodeID); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetByID retrieves an episode with all of its chunks in index order.
func GetByID(db *sql.DB, episodeID string) (*record.Record, error) {
	summary, err := getSummary(db, episodeID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT chunk_index, text, approx_word_count
		FROM chunks
		WHERE episode_id = ?
		ORDER BY chunk_index
	`, episodeID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	chunks := []transcript.Chunk{}
	for rows.Next() {
		var c transcript.Chunk
		if err := rows.Scan(&c.Index, &c.Text, &c.ApproxWordCount); err != nil {
			return nil, errors.NewInternal(err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return &record.Record{
		EpisodeID:     summary.EpisodeID,
		URL:           summary.URL,
		Title:         summary.Title,
		Date:          summary.Date,
		RawTextLength: summary.RawTextLength,
		NumChunks:     summary.NumChunks,
		Chunks:        chunks,
	}, nil
}

// GetChunk retrieves a single chunk of an episode.
func GetChunk(db *sql.DB, episodeID string, index int) (*transcript.Chunk, error) {
	var c transcript.Chunk
	err := db.QueryRow(`
		SELECT chunk_index, text, approx_word_count
		FROM chunks
		WHERE episode_id = ? AND chunk_index = ?
	`, episodeID, index).Scan(&c.Index, &c.Text, &c.ApproxWordCount)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(fmt.Sprintf("%s#%d", episodeID, index))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return &c, nil
}

func getSummary(db *sql.DB, episodeID string) (*record.Summary, error) {
	row := db.QueryRow(`
		SELECT episode_id, youtube_url, title, date, raw_text_length, num_chunks, word_count
		FROM episodes
		WHERE episode_id = ?
	`, episodeID)
	s, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(episodeID)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return s, nil
}

// ListEpisodes returns episode summaries ordered by date (newest first), then
// episode_id, along with the total number of indexed episodes.
func ListEpisodes(db *sql.DB, limit, offset int) ([]record.Summary, int, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.Query(`
		SELECT episode_id, youtube_url, title, date, raw_text_length, num_chunks, word_count
		FROM episodes
		ORDER BY date DESC, episode_id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []record.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return out, total, nil
}

// SearchHit is one chunk matched by SearchChunks.
type SearchHit struct {
	Episode    record.Summary
	ChunkIndex int
	// Snippet holds raw chunk text with SnippetOpen/SnippetClose around matches.
	Snippet string
	// Score is the BM25 rank; lower is more relevant.
	Score float64
}

// SearchFilters narrows SearchChunks results.
type SearchFilters struct {
	EpisodeID *string
}

// SearchChunks runs a full-text query over chunk text, ordered by relevance.
// Every whitespace-separated term of query must appear in a matching chunk;
// FTS operators in the input are treated as literal text.
func SearchChunks(ctx context.Context, db *sql.DB, query string, filters SearchFilters, limit, offset int) ([]SearchHit, int, error) {
	match := BuildMatchQuery(query)
	if match == "" {
		return nil, 0, errors.NewInvalidRequest("query has no searchable terms")
	}

	where := "chunks_fts MATCH ?"
	args := []any{match}
	if filters.EpisodeID != nil {
		where += " AND chunks_fts.episode_id = ?"
		args = append(args, *filters.EpisodeID)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM chunks_fts WHERE " + where
	if err := db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT e.episode_id, e.youtube_url, e.title, e.date, e.raw_text_length, e.num_chunks, e.word_count,
			chunks_fts.chunk_index,
			snippet(chunks_fts, 0, '%s', '%s', '...', 24),
			bm25(chunks_fts)
		FROM chunks_fts
		JOIN episodes e ON e.episode_id = chunks_fts.episode_id
		WHERE %s
		ORDER BY bm25(chunks_fts), e.episode_id, chunks_fts.chunk_index
		LIMIT ? OFFSET ?
	`, SnippetOpen, SnippetClose, where)

	rows, err := db.QueryContext(ctx, selectQuery, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		s := &h.Episode
		if err := rows.Scan(
			&s.EpisodeID, &s.URL, &s.Title, &s.Date, &s.RawTextLength, &s.NumChunks, &s.WordCount,
			&h.ChunkIndex, &h.Snippet, &h.Score,
		); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return hits, total, nil
}

// BuildMatchQuery turns free text into an FTS5 MATCH expression: each term
// becomes a quoted string, terms are implicitly ANDed. Terms without letters
// or digits are dropped. Returns "" when nothing searchable remains.
func BuildMatchQuery(query string) string {
	var terms []string
	for _, term := range strings.Fields(query) {
		if !strings.ContainsFunc(term, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

// ExportRow is one chunk joined with its episode metadata.
type ExportRow struct {
	EpisodeID       string `json:"episode_id"`
	URL             string `json:"youtube_url"`
	Title           string `json:"title"`
	Date            string `json:"date"`
	NumChunks       int    `json:"num_chunks"`
	ChunkIndex      int    `json:"chunk_index"`
	Text            string `json:"text"`
	ApproxWordCount int    `json:"approx_word_count"`
}

// StreamChunks calls fn for every indexed chunk, ordered by episode date
// (newest first), episode_id, then chunk index. Iteration stops at the first
// error returned by fn.
func StreamChunks(ctx context.Context, db *sql.DB, fn func(ExportRow) error) error {
	rows, err := db.QueryContext(ctx, `
		SELECT e.episode_id, e.youtube_url, e.title, e.date, e.num_chunks,
			c.chunk_index, c.text, c.approx_word_count
		FROM chunks c
		JOIN episodes e ON e.episode_id = c.episode_id
		ORDER BY e.date DESC, e.episode_id, c.chunk_index
	`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var r ExportRow
		if err := rows.Scan(&r.EpisodeID, &r.URL, &r.Title, &r.Date, &r.NumChunks,
			&r.ChunkIndex, &r.Text, &r.ApproxWordCount); err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// Delete removes an episode and its chunks from the index.
func Delete(db *sql.DB, episodeID string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM episodes WHERE episode_id = ?`, episodeID)
	if err != nil {
		return errors.NewInternal(err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(episodeID)
	}

	if err := deleteChunks(tx, episodeID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanSummary scans a single episodes row into a Summary.
func scanSummary(row rowScanner) (*record.Summary, error) {
	var s record.Summary
	err := row.Scan(&s.EpisodeID, &s.URL, &s.Title, &s.Date, &s.RawTextLength, &s.NumChunks, &s.WordCount)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// toNullString converts an empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
