package locate

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/castchunk/internal/dates"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/locale"
)

// fakeSearcher returns canned results per query and records every call.
type fakeSearcher struct {
	results map[string][]SearchResult
	errs    map[string]error
	queries []string
	limits  []int
}

func (f *fakeSearcher) Search(_ context.Context, query string, maxResults int) ([]SearchResult, error) {
	f.queries = append(f.queries, query)
	f.limits = append(f.limits, maxResults)
	if err := f.errs[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

func newLocator(s Searcher) *Locator {
	return New(s, dates.NewResolver(locale.MustLookup("ro")), Options{
		Channel: "Prea Mult Banciu",
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestVariants(t *testing.T) {
	assert.Equal(t, []string{
		"Prea Mult Banciu - 5 Decembrie",
		"PreaMultBanciu - 5 Decembrie",
		"Prea Mult Banciu 5 Decembrie",
		"PreaMultBanciu 5 Decembrie",
	}, Variants("Prea Mult Banciu", "5 Decembrie"))

	assert.Equal(t, []string{
		"Banciu - 5 Decembrie",
		"Banciu 5 Decembrie",
	}, Variants("Banciu", "5 Decembrie"))
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("PREA MULT BANCIU - 5 DECEMBRIE 2024", "5 Decembrie"))
	assert.True(t, Matches("prea mult banciu - 5 decembrie", " 5 Decembrie "))
	assert.False(t, Matches("Prea Mult Banciu - 05.12.2024", "5 Decembrie"))
	assert.False(t, Matches("Prea Mult Banciu - 15 Decembrie", "25 Decembrie"))
}

func TestLocate_FirstVariantMatch(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"Prea Mult Banciu - 5 Decembrie": {
			{URL: "https://www.youtube.com/watch?v=other", Title: "Altceva"},
			{URL: "https://www.youtube.com/watch?v=good", Title: "Prea Mult Banciu - 5 decembrie"},
		},
	}}

	ref, err := newLocator(s).Locate(context.Background(), "5 Decembrie", 2024)
	require.NoError(t, err)

	assert.Equal(t, "https://www.youtube.com/watch?v=good", ref.URL)
	assert.Equal(t, "Prea Mult Banciu - 5 decembrie", ref.Title)
	assert.Equal(t, "2024-12-05", ref.Date)
	assert.Equal(t, []string{"Prea Mult Banciu - 5 Decembrie"}, s.queries, "must stop after first match")
	assert.Equal(t, []int{DefaultMaxResults}, s.limits)
}

func TestLocate_LaterVariantMatch(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"Prea Mult Banciu - 9 Octombrie": {{URL: "u1", Title: "Nimic aici"}},
		"PreaMultBanciu - 9 Octombrie":   {},
		"Prea Mult Banciu 9 Octombrie":   {{URL: "u3", Title: "Banciu 9 Octombrie special"}},
		"PreaMultBanciu 9 Octombrie":     {{URL: "u4", Title: "9 Octombrie"}},
	}}

	ref, err := newLocator(s).Locate(context.Background(), "9 Octombrie", 2024)
	require.NoError(t, err)
	assert.Equal(t, "u3", ref.URL)
	assert.Len(t, s.queries, 3)
}

func TestLocate_OnlyTopNInspected(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"Prea Mult Banciu - 3 Noiembrie": {
			{URL: "a", Title: "x"}, {URL: "b", Title: "y"}, {URL: "c", Title: "z"},
			{URL: "d", Title: "Prea Mult Banciu - 3 Noiembrie"},
		},
	}}

	_, err := newLocator(s).Locate(context.Background(), "3 Noiembrie", 2024)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestLocate_SearchErrorsAreTolerated(t *testing.T) {
	s := &fakeSearcher{
		errs: map[string]error{
			"Prea Mult Banciu - 11 Octombrie": stderrors.New("connection reset"),
			"PreaMultBanciu - 11 Octombrie":   stderrors.New("HTTP 429"),
		},
		results: map[string][]SearchResult{
			"Prea Mult Banciu 11 Octombrie": {{URL: "ok", Title: "Prea Mult Banciu 11 Octombrie"}},
		},
	}

	ref, err := newLocator(s).Locate(context.Background(), "11 Octombrie", 2024)
	require.NoError(t, err)
	assert.Equal(t, "ok", ref.URL)
	assert.Len(t, s.queries, 3)
}

func TestLocate_NotFound(t *testing.T) {
	s := &fakeSearcher{}

	_, err := newLocator(s).Locate(context.Background(), "17 Septembrie", 2024)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Len(t, s.queries, 4)
}

func TestLocate_MalformedDateSkipsSearch(t *testing.T) {
	s := &fakeSearcher{}

	for _, phrase := range []string{"31 Noiembrie", "Decembrie", "cinci Decembrie", "5 Brumar"} {
		_, err := newLocator(s).Locate(context.Background(), phrase, 2024)
		assert.True(t, errors.Is(err, errors.ErrMalformedDate), phrase)
	}
	assert.Empty(t, s.queries)
}

func TestLocate_TypoPhraseResolves(t *testing.T) {
	s := &fakeSearcher{results: map[string][]SearchResult{
		"Prea Mult Banciu - 16 Ocrombrie": {{URL: "t", Title: "Prea Mult Banciu - 16 Ocrombrie"}},
	}}

	ref, err := newLocator(s).Locate(context.Background(), "16 Ocrombrie", 2024)
	require.NoError(t, err)
	assert.Equal(t, "2024-10-16", ref.Date)
}

func TestLocate_ContextCancelled(t *testing.T) {
	s := &fakeSearcher{}
	l := New(s, dates.NewResolver(locale.MustLookup("ro")), Options{
		Channel:  "Prea Mult Banciu",
		Interval: time.Hour,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Locate(ctx, "5 Decembrie", 2024)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.queries)
}
