package transcript

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/castchunk/internal/locale"
)

var (
	// noiseRegex matches the bracketed annotations speech engines insert.
	noiseRegex = buildNoiseRegex(locale.NoiseMarkers)

	// hspaceRegex matches runs of two or more horizontal whitespace characters.
	hspaceRegex = regexp.MustCompile(`[ \t\f\v\x{00A0}]{2,}`)

	// newlineRegex matches runs of two or more newlines.
	newlineRegex = regexp.MustCompile(`\n{2,}`)
)

func buildNoiseRegex(markers []string) *regexp.Regexp {
	quoted := make([]string, len(markers))
	for i, m := range markers {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`(?i)\[(?:` + strings.Join(quoted, "|") + `)\]`)
}

// Normalize cleans raw transcript text:
// 1. Remove noise markers ([Music], [Applause], ...), case-insensitive
// 2. Collapse runs of horizontal whitespace to a single space
// 3. Collapse runs of newlines to exactly two (paragraph separator)
// 4. Trim leading/trailing whitespace
//
// Line endings are converted to \n first. Case and punctuation are untouched.
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	// Removing one marker can expose another ("[Mu[Music]sic]"), so repeat
	// until stable to keep Normalize idempotent.
	for {
		next := noiseRegex.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}

	s = hspaceRegex.ReplaceAllString(s, " ")
	s = newlineRegex.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}

// CountWords returns the number of whitespace-delimited tokens in text.
func CountWords(text string) int {
	return len(strings.Fields(text))
}
