package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hpungsan/castchunk/internal/locale"
)

// SplitSentences segments text at sentence boundaries: a '.', '!' or '?'
// followed by whitespace and then an uppercase letter of loc. The whitespace
// between sentences is dropped; empty sentences are skipped.
//
// This is a heuristic. Abbreviations ("Dl. Popescu") and quoted dialogue
// will be split or merged incorrectly.
func SplitSentences(text string, loc *locale.Locale) []string {
	var sentences []string
	start := 0

	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
	}

	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Need at least one whitespace rune after the terminal mark.
		j := i
		for j < len(text) {
			ws, wsize := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(ws) {
				break
			}
			j += wsize
		}
		if j == i || j >= len(text) {
			continue
		}

		next, _ := utf8.DecodeRuneInString(text[j:])
		if !loc.IsUpper(next) {
			continue
		}

		emit(i)
		start = j
		i = j
	}
	emit(len(text))

	return sentences
}
