package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hpungsan/castchunk/internal/locate"
)

const (
	defaultResultsURL   = "https://www.youtube.com/results"
	ytInitialDataMarker = "ytInitialData"
	ytVideosOnlyFilter  = "EgIQAQ%3D%3D"
	maxResultsPageBytes = 4 * 1024 * 1024
	scrapeUserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// ScrapeSearcher searches by reading the ytInitialData blob embedded in the
// public results page. No API key is needed.
type ScrapeSearcher struct {
	Client     *http.Client
	ResultsURL string
	Retry      RetryConfig
	Logger     *slog.Logger
}

var _ locate.Searcher = (*ScrapeSearcher)(nil)

// NewScrapeSearcher creates a ScrapeSearcher with default endpoint and retry policy.
func NewScrapeSearcher(client *http.Client, logger *slog.Logger) *ScrapeSearcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeSearcher{
		Client:     client,
		ResultsURL: defaultResultsURL,
		Retry:      DefaultRetryConfig,
		Logger:     logger,
	}
}

// Search fetches the results page for query and returns up to maxResults videos.
func (s *ScrapeSearcher) Search(ctx context.Context, query string, maxResults int) ([]locate.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = locate.DefaultMaxResults
	}
	searchURL := s.ResultsURL + "?search_query=" + url.QueryEscape(query) + "&sp=" + ytVideosOnlyFilter

	resp, err := retryHTTP(ctx, s.Retry, s.Logger, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", scrapeUserAgent)
		req.Header.Set("Accept-Language", "ro-RO,ro;q=0.9,en;q=0.8")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		return s.Client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("youtube results page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube results page: unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResultsPageBytes))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	data := findInitialData(doc)
	if data == nil {
		return nil, fmt.Errorf("ytInitialData not found in results page")
	}
	return extractVideos(data, maxResults), nil
}

// findInitialData returns the ytInitialData JSON object from the page scripts.
func findInitialData(doc *goquery.Document) []byte {
	var data []byte
	doc.Find("script").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := sel.Text()
		idx := strings.Index(text, ytInitialDataMarker)
		if idx < 0 {
			return true
		}
		rest := text[idx+len(ytInitialDataMarker):]
		brace := strings.IndexByte(rest, '{')
		if brace < 0 {
			return true
		}
		data = extractJSON([]byte(rest[brace:]))
		return data == nil
	})
	return data
}

// extractJSON returns the complete JSON object starting at b[0] == '{' by
// tracking brace depth outside of strings.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

type textRuns struct {
	Runs       []struct{ Text string } `json:"runs"`
	SimpleText string                  `json:"simpleText"`
}

func (t textRuns) String() string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

type videoRenderer struct {
	VideoID           string   `json:"videoId"`
	Title             textRuns `json:"title"`
	PublishedTimeText textRuns `json:"publishedTimeText"`
}

// extractVideos walks the ytInitialData tree in document order collecting
// videoRenderer entries.
func extractVideos(data []byte, limit int) []locate.SearchResult {
	var results []locate.SearchResult

	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(results) >= limit {
			return
		}
		trimmed := strings.TrimSpace(string(v))
		if trimmed == "" {
			return
		}

		switch trimmed[0] {
		case '{':
			// Decode into an ordered key list so traversal follows page order.
			keys, values := orderedObject(v)
			for i, key := range keys {
				if len(results) >= limit {
					return
				}
				if key == "videoRenderer" {
					var vr videoRenderer
					if err := json.Unmarshal(values[i], &vr); err == nil && vr.VideoID != "" {
						results = append(results, locate.SearchResult{
							URL:        WatchURL(vr.VideoID),
							Title:      vr.Title.String(),
							UploadDate: vr.PublishedTimeText.String(),
						})
					}
					continue
				}
				walk(values[i])
			}
		case '[':
			var arr []json.RawMessage
			if err := json.Unmarshal(v, &arr); err != nil {
				return
			}
			for _, item := range arr {
				if len(results) >= limit {
					return
				}
				walk(item)
			}
		}
	}

	walk(data)
	return results
}

// orderedObject decodes a JSON object keeping key order.
func orderedObject(v json.RawMessage) ([]string, []json.RawMessage) {
	dec := json.NewDecoder(strings.NewReader(string(v)))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, nil
	}

	var keys []string
	var values []json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return keys, values
		}
		key, ok := tok.(string)
		if !ok {
			return keys, values
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return keys, values
		}
		keys = append(keys, key)
		values = append(values, raw)
	}
	return keys, values
}
