package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/ops"
	"github.com/hpungsan/castchunk/internal/record"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	writer   *record.Writer
	renderer *Renderer
}

// HandleList handles GET /episodes, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	result, err := ops.List(h.db, ops.ListInput{
		Limit:  parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset: parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: PageData{
			Title:   "Episodes",
			Version: h.renderer.version,
			Nav:     "episodes",
		},
		Items:      result.Items,
		Pagination: result.Pagination,
	})
}

// HandleSearch handles GET /episodes/search, full-text search over chunks.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	episodeID := r.URL.Query().Get("episode_id")

	data := SearchPageData{
		PageData: PageData{
			Title:   "Search",
			Version: h.renderer.version,
			Nav:     "search",
		},
		Query:     query,
		EpisodeID: episodeID,
		HasQuery:  strings.TrimSpace(query) != "",
	}

	if !data.HasQuery {
		// If htmx targets #results (user cleared the search box), return just the results fragment
		if r.Header.Get("HX-Target") == "results" {
			h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
			return
		}
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	result, err := ops.Search(r.Context(), h.db, ops.SearchInput{
		Query:     query,
		EpisodeID: ptrString(episodeID),
		Limit:     parseIntParam(r, "limit", ops.DefaultSearchLimit),
		Offset:    parseIntParam(r, "offset", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Items = result.Items
	data.Pagination = result.Pagination

	// If htmx targets #results, render only the results fragment
	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
		return
	}

	h.renderer.renderPage(w, r, "search", data)
}

// HandleDetail handles GET /episodes/{id}. The episode is rendered as
// markdown; episodes that are not indexed are read from their artifact.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("episode ID is required"))
		return
	}

	episode, err := ops.Fetch(h.db, h.writer, ops.FetchInput{EpisodeID: id, IncludeText: true})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, episode)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData: PageData{
			Title:   episode.Title,
			Version: h.renderer.version,
			Nav:     "episodes",
		},
		Episode:      episode,
		RenderedHTML: renderMarkdown(record.Markdown(toRecord(episode))),
	})
}

// HandlePurge handles POST /episodes/{id}/purge, removing one episode from
// the index. The JSON artifact is kept.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("episode ID is required"))
		return
	}

	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}
	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	result, err := ops.Purge(h.db, ops.PurgeInput{EpisodeIDs: []string{id}})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if result.Purged == 0 {
		h.renderer.renderError(w, r, errors.NewNotFound(id))
		return
	}

	// HTMX request: return HTML fragment
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}

	// JSON request
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	// Default: redirect
	http.Redirect(w, r, "/episodes", http.StatusFound)
}

// toRecord rebuilds the record a fetch result was read from.
func toRecord(out *ops.FetchOutput) *record.Record {
	chunks := make([]transcript.Chunk, len(out.Chunks))
	for i, c := range out.Chunks {
		chunks[i] = transcript.Chunk{Index: c.Index, Text: c.Text, ApproxWordCount: c.ApproxWordCount}
	}
	return &record.Record{
		EpisodeID:     out.EpisodeID,
		URL:           out.URL,
		Title:         out.Title,
		Date:          out.Date,
		RawTextLength: out.RawTextLength,
		NumChunks:     out.NumChunks,
		Chunks:        chunks,
	}
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
