package transcript

import (
	"regexp"
	"strings"
)

var (
	// cueIDRegex matches standalone numeric cue identifiers.
	cueIDRegex = regexp.MustCompile(`^\d+$`)

	// vttMetaRegex matches the WebVTT header and its metadata lines.
	vttMetaRegex = regexp.MustCompile(`^(?:WEBVTT|Kind:|Language:|NOTE\b)`)

	// tagRegex matches inline styling tags (<i>, <font>, <c>, <00:00:01.000>).
	tagRegex = regexp.MustCompile(`<[^>]+>`)
)

// ExtractCaptionText pulls the spoken text out of an SRT (or WebVTT) caption
// file. Cue numbers, time ranges, header lines and inline tags are dropped,
// consecutive repeats (rolling auto-captions) are collapsed and the remaining
// lines are joined with single spaces.
func ExtractCaptionText(content string) string {
	content = strings.TrimPrefix(content, "\ufeff")
	lines := strings.Split(content, "\n")
	kept := make([]string, 0, len(lines)/2)
	prev := ""

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || cueIDRegex.MatchString(line) || strings.Contains(line, "-->") {
			continue
		}
		if vttMetaRegex.MatchString(line) {
			continue
		}

		line = strings.TrimSpace(tagRegex.ReplaceAllString(line, ""))
		if line == "" || line == prev {
			continue
		}

		kept = append(kept, line)
		prev = line
	}

	return strings.Join(kept, " ")
}
