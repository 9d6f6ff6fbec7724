// Package episode holds the identity of one source video: the located
// reference, the raw transcript obtained for it and the identifiers derived
// from its URL or title.
package episode

import (
	"net/url"
	"regexp"
	"strings"
)

// Reference identifies one located source video. It is immutable once
// produced by the locator.
type Reference struct {
	// URL is the video page URL as returned by search
	URL string `json:"url"`

	// Title is the video title
	Title string `json:"title"`

	// Date is the canonical YYYY-MM-DD date of the episode
	Date string `json:"date"`
}

// SourceKind records where a raw transcript came from.
type SourceKind string

const (
	SourceSubtitles        SourceKind = "subtitles"
	SourceAudioTranscribed SourceKind = "audio-transcribed"
)

// RawTranscript is the unnormalized text of one episode. It only lives for
// the duration of that episode's processing.
type RawTranscript struct {
	Kind SourceKind
	Text string
}

// videoIDRegex bounds what is accepted as a video identifier.
var videoIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseVideoID extracts the video identifier from a YouTube URL.
// Recognized shapes:
//
//	https://youtu.be/<id>
//	https://www.youtube.com/watch?v=<id>
//	https://www.youtube.com/embed/<id>
//	https://www.youtube.com/v/<id>
//
// The second result is false when no identifier can be found.
func ParseVideoID(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	var id string

	switch {
	case host == "youtu.be":
		id = strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.SplitN(strings.TrimPrefix(u.Path, "/embed/"), "/", 2)[0]
		case strings.HasPrefix(u.Path, "/v/"):
			id = strings.SplitN(strings.TrimPrefix(u.Path, "/v/"), "/", 2)[0]
		}
	}

	if id == "" || !videoIDRegex.MatchString(id) {
		return "", false
	}
	return id, true
}

var (
	slugStripRegex    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugCollapseRegex = regexp.MustCompile(`[-\s]+`)
)

// Slug builds a URL-safe identifier from title and date: lowercased,
// non-word characters removed, whitespace and hyphen runs collapsed to a
// single hyphen.
func Slug(title, date string) string {
	s := strings.ToLower(title + "_" + date)
	s = slugStripRegex.ReplaceAllString(s, "")
	s = slugCollapseRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ID derives the stable episode identifier for ref: the video identifier
// when the URL carries one, otherwise the title/date slug.
func (r Reference) ID() string {
	if id, ok := ParseVideoID(r.URL); ok {
		return id
	}
	return Slug(r.Title, r.Date)
}
