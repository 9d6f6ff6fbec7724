// Package locale holds the per-language tables used to resolve date phrases
// and to detect sentence boundaries.
package locale

import (
	"sort"
	"strings"
)

// DefaultCode is the language used when none is configured.
const DefaultCode = "ro"

// Locale describes one target language.
type Locale struct {
	// Code is the language code passed to caption download and transcription.
	Code string

	// Months maps lowercase month names to 1..12.
	Months map[string]int

	// Typos maps known misspellings to the lowercase month name they mean.
	Typos map[string]string

	// Uppercase lists uppercase letters outside A-Z that may start a sentence.
	Uppercase string

	// Channel is the default channel name searched for this language.
	Channel string

	// DefaultDates are the date phrases located when none are given.
	DefaultDates []string
}

var locales = map[string]*Locale{
	"ro": {
		Code: "ro",
		Months: map[string]int{
			"ianuarie":   1,
			"februarie":  2,
			"martie":     3,
			"aprilie":    4,
			"mai":        5,
			"iunie":      6,
			"iulie":      7,
			"august":     8,
			"septembrie": 9,
			"octombrie":  10,
			"noiembrie":  11,
			"decembrie":  12,
		},
		Typos: map[string]string{
			"ocrombrie": "octombrie",
		},
		Uppercase: "ĂÂÎȘȚŞŢ",
		Channel:   "Prea Mult Banciu",
		DefaultDates: []string{
			"5 Decembrie",
			"27 Noiembrie",
			"25 Noiembrie",
			"17 Noiembrie",
			"11 Noiembrie",
			"3 Noiembrie",
			"31 Octombrie",
			"29 Octombrie",
			"22 Octombrie",
			"16 Octombrie",
			"14 Octombrie",
			"11 Octombrie",
			"9 Octombrie",
			"17 Septembrie",
		},
	},
	"en": {
		Code: "en",
		Months: map[string]int{
			"january":   1,
			"february":  2,
			"march":     3,
			"april":     4,
			"may":       5,
			"june":      6,
			"july":      7,
			"august":    8,
			"september": 9,
			"october":   10,
			"november":  11,
			"december":  12,
		},
		Typos: map[string]string{},
	},
}

// Lookup returns the locale for code, or false if it is not known.
func Lookup(code string) (*Locale, bool) {
	l, ok := locales[strings.ToLower(strings.TrimSpace(code))]
	return l, ok
}

// MustLookup returns the locale for code and panics if it is unknown.
// Intended for tests and package-level defaults.
func MustLookup(code string) *Locale {
	l, ok := Lookup(code)
	if !ok {
		panic("locale: unknown code " + code)
	}
	return l
}

// Codes returns the known locale codes in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(locales))
	for code := range locales {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Month resolves a month name (case-insensitive, typos corrected) to 1..12.
func (l *Locale) Month(name string) (int, bool) {
	name = strings.ToLower(name)
	if fixed, ok := l.Typos[name]; ok {
		name = fixed
	}
	m, ok := l.Months[name]
	return m, ok
}

// IsUpper reports whether r may start a sentence in this locale.
func (l *Locale) IsUpper(r rune) bool {
	if r >= 'A' && r <= 'Z' {
		return true
	}
	return strings.ContainsRune(l.Uppercase, r)
}

// NoiseMarkers are the bracketed annotations stripped from transcripts.
// Matching is case-insensitive.
var NoiseMarkers = []string{
	"Music",
	"Applause",
	"Laughter",
	"Muzică",
	"Muzica",
	"Aplauze",
	"Râsete",
	"Rasete",
}
