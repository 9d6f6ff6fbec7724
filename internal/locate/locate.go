// Package locate finds the source video for a date phrase by querying a
// search collaborator with a fixed set of query variants.
package locate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hpungsan/castchunk/internal/dates"
	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/errors"
)

// DefaultMaxResults is how many results are inspected per query variant.
const DefaultMaxResults = 3

// SearchResult is one hit returned by a Searcher.
type SearchResult struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	UploadDate string `json:"upload_date,omitempty"`
}

// Searcher queries an external video index. Zero hits is not an error.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// Options configures a Locator.
type Options struct {
	// Channel is the channel name used to build query variants
	Channel string

	// MaxResults bounds the hits inspected per variant (default 3)
	MaxResults int

	// Interval is the minimum spacing between search calls; zero disables throttling
	Interval time.Duration

	Logger *slog.Logger
}

// Locator resolves date phrases to episode references.
type Locator struct {
	searcher   Searcher
	resolver   *dates.Resolver
	channel    string
	maxResults int
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// New creates a Locator over searcher.
func New(searcher Searcher, resolver *dates.Resolver, opts Options) *Locator {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	limit := rate.Inf
	if opts.Interval > 0 {
		limit = rate.Every(opts.Interval)
	}

	return &Locator{
		searcher:   searcher,
		resolver:   resolver,
		channel:    opts.Channel,
		maxResults: opts.MaxResults,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     opts.Logger,
	}
}

// Variants returns the query strings tried for phrase, in order:
//
//	"<channel> - <phrase>"
//	"<channel without spaces> - <phrase>"
//	"<channel> <phrase>"
//	"<channel without spaces> <phrase>"
//
// Duplicates (a channel name without spaces) are dropped.
func Variants(channel, phrase string) []string {
	channel = strings.TrimSpace(channel)
	phrase = strings.TrimSpace(phrase)
	compact := strings.ReplaceAll(channel, " ", "")

	candidates := []string{
		fmt.Sprintf("%s - %s", channel, phrase),
		fmt.Sprintf("%s - %s", compact, phrase),
		fmt.Sprintf("%s %s", channel, phrase),
		fmt.Sprintf("%s %s", compact, phrase),
	}

	seen := make(map[string]bool, len(candidates))
	variants := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		variants = append(variants, c)
	}
	return variants
}

// Matches reports whether title contains phrase, ignoring case.
func Matches(title, phrase string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(strings.TrimSpace(phrase)))
}

// Locate resolves phrase against year and searches for its video.
//
// Variants are tried in order and the first result whose title contains the
// phrase wins; no further queries are issued after a match. A failing query
// is logged and the next variant is tried. Returns MALFORMED_DATE when the
// phrase does not resolve and NOT_FOUND when no variant matches.
func (l *Locator) Locate(ctx context.Context, phrase string, year int) (episode.Reference, error) {
	date, err := l.resolver.Resolve(dates.Query{Phrase: phrase, Year: year})
	if err != nil {
		return episode.Reference{}, err
	}

	for _, query := range Variants(l.channel, phrase) {
		if err := l.limiter.Wait(ctx); err != nil {
			return episode.Reference{}, err
		}

		l.logger.Debug("searching", slog.String("query", query))
		results, err := l.searcher.Search(ctx, query, l.maxResults)
		if err != nil {
			if ctx.Err() != nil {
				return episode.Reference{}, ctx.Err()
			}
			l.logger.Warn("search failed",
				slog.String("query", query),
				slog.Any("error", err))
			continue
		}

		if len(results) > l.maxResults {
			results = results[:l.maxResults]
		}
		for _, r := range results {
			if Matches(r.Title, phrase) {
				l.logger.Info("found video",
					slog.String("phrase", phrase),
					slog.String("title", r.Title),
					slog.String("url", r.URL))
				return episode.Reference{URL: r.URL, Title: r.Title, Date: date}, nil
			}
		}
	}

	return episode.Reference{}, errors.NewNotFound(fmt.Sprintf("video for %q", phrase))
}
