// Package dates resolves localized "<day> <month-name>" phrases to canonical
// YYYY-MM-DD strings.
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/locale"
)

// Layout is the canonical date format.
const Layout = "2006-01-02"

// Query is a localized day+month phrase plus a target year.
type Query struct {
	Phrase string
	Year   int
}

// Resolver maps date phrases in one locale to canonical dates.
type Resolver struct {
	loc *locale.Locale
}

// NewResolver creates a Resolver for the given locale.
func NewResolver(loc *locale.Locale) *Resolver {
	return &Resolver{loc: loc}
}

// Resolve converts q to YYYY-MM-DD or fails with MALFORMED_DATE.
func (r *Resolver) Resolve(q Query) (string, error) {
	parts := strings.Fields(q.Phrase)
	if len(parts) != 2 {
		return "", errors.NewMalformedDate(q.Phrase, fmt.Sprintf("expected 2 tokens, got %d", len(parts)))
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", errors.NewMalformedDate(q.Phrase, "day is not numeric")
	}

	month, ok := r.loc.Month(parts[1])
	if !ok {
		return "", errors.NewMalformedDate(q.Phrase, fmt.Sprintf("unknown month %q", parts[1]))
	}

	if q.Year < 1 || q.Year > 9999 {
		return "", errors.NewMalformedDate(q.Phrase, fmt.Sprintf("year %d out of range", q.Year))
	}

	// time.Date normalizes overflow (Feb 30 -> Mar 2); a round trip catches it.
	t := time.Date(q.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != q.Year {
		return "", errors.NewMalformedDate(q.Phrase, "invalid calendar date")
	}

	return t.Format(Layout), nil
}

// Resolve is a convenience wrapper around NewResolver(loc).Resolve.
func Resolve(loc *locale.Locale, phrase string, year int) (string, error) {
	return NewResolver(loc).Resolve(Query{Phrase: phrase, Year: year})
}
