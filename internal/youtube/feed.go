package youtube

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/mmcdole/gofeed"

	"github.com/hpungsan/castchunk/internal/locate"
)

const (
	defaultFeedURL = "https://www.youtube.com/feeds/videos.xml"
	maxFeedBytes   = 2 * 1024 * 1024
)

// FeedSearcher answers searches from a channel's Atom feed. The feed is
// fetched once and reused for every query of the run. It only sees the
// channel's most recent uploads.
type FeedSearcher struct {
	ChannelID string
	FeedURL   string
	Client    *http.Client
	Retry     RetryConfig
	Logger    *slog.Logger
	parser    *gofeed.Parser

	mu     sync.Mutex
	loaded bool
	items  []*gofeed.Item
}

var _ locate.Searcher = (*FeedSearcher)(nil)

// NewFeedSearcher creates a FeedSearcher for channelID with the default
// endpoint and retry policy.
func NewFeedSearcher(channelID string, client *http.Client, logger *slog.Logger) *FeedSearcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedSearcher{
		ChannelID: channelID,
		FeedURL:   defaultFeedURL,
		Client:    client,
		Retry:     DefaultRetryConfig,
		Logger:    logger,
		parser:    gofeed.NewParser(),
	}
}

// load returns the feed entries. Only a successfully parsed feed is kept; a
// failed fetch is tried again by the next query.
func (f *FeedSearcher) load(ctx context.Context) ([]*gofeed.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loaded {
		return f.items, nil
	}

	feedURL := f.FeedURL + "?channel_id=" + url.QueryEscape(f.ChannelID)
	resp, err := retryHTTP(ctx, f.Retry, f.Logger, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", scrapeUserAgent)
		req.Header.Set("Accept", "application/atom+xml,application/xml")
		return f.Client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("channel feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("channel feed: unexpected status %d", resp.StatusCode)
	}

	feed, err := f.parser.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to parse channel feed: %w", err)
	}

	f.items = feed.Items
	f.loaded = true
	f.Logger.Debug("channel feed loaded", slog.String("channel_id", f.ChannelID), slog.Int("entries", len(f.items)))
	return f.items, nil
}

// Search ranks feed entries by how many query tokens their title shares and
// returns the best maxResults with at least one shared token.
func (f *FeedSearcher) Search(ctx context.Context, query string, maxResults int) ([]locate.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = locate.DefaultMaxResults
	}
	items, err := f.load(ctx)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(query)

	type scored struct {
		item  *gofeed.Item
		score int
		order int
	}
	var ranked []scored
	for i, item := range items {
		if item == nil || item.Link == "" {
			continue
		}
		score := overlap(queryTokens, tokenize(item.Title))
		if score == 0 {
			continue
		}
		ranked = append(ranked, scored{item: item, score: score, order: i})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	results := make([]locate.SearchResult, 0, len(ranked))
	for _, r := range ranked {
		uploaded := ""
		if r.item.PublishedParsed != nil {
			uploaded = r.item.PublishedParsed.UTC().Format("20060102")
		}
		results = append(results, locate.SearchResult{
			URL:        r.item.Link,
			Title:      r.item.Title,
			UploadDate: uploaded,
		})
	}
	return results, nil
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func overlap(a, b map[string]bool) int {
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}
