package youtube

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/castchunk/internal/acquire"
	"github.com/hpungsan/castchunk/internal/episode"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRunner records invocations and runs an optional side effect.
type fakeRunner struct {
	calls  [][]string
	output []byte
	err    error
	effect func(args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.effect != nil {
		if err := f.effect(args); err != nil {
			return nil, err
		}
	}
	return f.output, f.err
}

// outputTemplate returns the value following -o.
func outputTemplate(args []string) string {
	for i, a := range args {
		if a == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestYTDLPSearch(t *testing.T) {
	runner := &fakeRunner{output: []byte(`{
		"_type": "playlist",
		"entries": [
			{"id": "aaa111", "title": "Prea Mult Banciu - 5 Decembrie", "upload_date": "20241205"},
			null,
			{"id": "", "title": "no id"},
			{"id": "bbb222"}
		]
	}`)}
	y := NewYTDLP("", runner, quietLogger)

	results, err := y.Search(context.Background(), "Prea Mult Banciu - 5 Decembrie", 3)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=aaa111", results[0].URL)
	assert.Equal(t, "Prea Mult Banciu - 5 Decembrie", results[0].Title)
	assert.Equal(t, "20241205", results[0].UploadDate)
	assert.Equal(t, "Unknown", results[1].Title)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "yt-dlp", call[0])
	assert.Contains(t, call, "--flat-playlist")
	assert.Equal(t, "ytsearch3:Prea Mult Banciu - 5 Decembrie", call[len(call)-1])
}

func TestYTDLPSearch_EmptyAndErrors(t *testing.T) {
	y := NewYTDLP("/opt/yt-dlp", &fakeRunner{output: []byte(`{"entries": []}`)}, quietLogger)
	results, err := y.Search(context.Background(), "nimic", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	y = NewYTDLP("", &fakeRunner{err: stderrors.New("exit status 1")}, quietLogger)
	_, err = y.Search(context.Background(), "q", 3)
	assert.Error(t, err)

	y = NewYTDLP("", &fakeRunner{output: []byte("not json")}, quietLogger)
	_, err = y.Search(context.Background(), "q", 3)
	assert.Error(t, err)
}

func TestYTDLPFetchCaptions(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{effect: func(args []string) error {
		path := strings.Replace(outputTemplate(args), "%(ext)s", "ro.srt", 1)
		return os.WriteFile(path, []byte("1\n00:00:01,000 --> 00:00:02,000\nSalut\n"), 0600)
	}}
	y := NewYTDLP("", runner, quietLogger)

	dl, err := y.FetchCaptions(context.Background(), acquire.Target{URL: "https://youtu.be/vid", ID: "vid", Dir: dir}, "ro")
	require.NoError(t, err)
	assert.Equal(t, episode.SourceSubtitles, dl.Kind)
	assert.Equal(t, filepath.Join(dir, "vid.ro.srt"), dl.Path)

	call := runner.calls[0]
	assert.Contains(t, call, "--skip-download")
	assert.Contains(t, call, "--write-auto-subs")
	assert.Equal(t, "https://youtu.be/vid", call[len(call)-1])
}

func TestYTDLPFetchCaptions_VariantName(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{effect: func(args []string) error {
		return os.WriteFile(filepath.Join(dir, "vid.ro-orig.vtt"), []byte("WEBVTT\n"), 0600)
	}}
	y := NewYTDLP("", runner, quietLogger)

	dl, err := y.FetchCaptions(context.Background(), acquire.Target{URL: "u", ID: "vid", Dir: dir}, "ro")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "vid.ro-orig.vtt"), dl.Path)
}

func TestYTDLPFetchCaptions_NoneWritten(t *testing.T) {
	dir := t.TempDir()
	// A file for a different video must not be picked up.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vidother.ro.srt"), []byte("x"), 0600))

	y := NewYTDLP("", &fakeRunner{}, quietLogger)
	_, err := y.FetchCaptions(context.Background(), acquire.Target{URL: "u", ID: "vid", Dir: dir}, "ro")
	assert.Error(t, err)
}

func TestYTDLPFetchAudio(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{effect: func(args []string) error {
		path := strings.Replace(outputTemplate(args), "%(ext)s", "m4a", 1)
		return os.WriteFile(path, []byte("audio"), 0600)
	}}
	y := NewYTDLP("", runner, quietLogger)

	dl, err := y.FetchAudio(context.Background(), acquire.Target{URL: "u", ID: "vid", Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, episode.SourceAudioTranscribed, dl.Kind)
	assert.Equal(t, filepath.Join(dir, "vid.m4a"), dl.Path)
	assert.Contains(t, runner.calls[0], "bestaudio/best")

	_, err = NewYTDLP("", &fakeRunner{err: stderrors.New("403")}, quietLogger).
		FetchAudio(context.Background(), acquire.Target{URL: "u", ID: "x", Dir: dir})
	assert.Error(t, err)
}

func TestWhisperTranscribe(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "vid.m4a")

	runner := &fakeRunner{effect: func(args []string) error {
		return os.WriteFile(filepath.Join(dir, "vid.txt"), []byte("Bună seara.\n"), 0600)
	}}
	w := NewWhisper("", "", runner)

	text, err := w.Transcribe(context.Background(), audio, "ro")
	require.NoError(t, err)
	assert.Equal(t, "Bună seara.\n", text)

	call := runner.calls[0]
	assert.Equal(t, []string{"whisper", audio, "--language", "ro", "--model", "medium"}, call[:6])
}

func TestWhisperTranscribe_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewWhisper("", "small", &fakeRunner{err: stderrors.New("cuda")}).
		Transcribe(context.Background(), filepath.Join(dir, "a.m4a"), "ro")
	assert.Error(t, err)

	_, err = NewWhisper("", "small", &fakeRunner{}).
		Transcribe(context.Background(), filepath.Join(dir, "a.m4a"), "ro")
	assert.Error(t, err, "missing output file")
}

func TestValidWhisperModel(t *testing.T) {
	for _, m := range []string{"tiny", "base", "small", "medium", "large"} {
		assert.True(t, ValidWhisperModel(m), m)
	}
	assert.False(t, ValidWhisperModel("huge"))
	assert.False(t, ValidWhisperModel(""))
}

func TestExecRunner(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	r := &ExecRunner{}

	out, err := r.Run(context.Background(), "/bin/sh", "-c", "printf ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	_, err = r.Run(context.Background(), "/bin/sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

const resultsPage = `<!DOCTYPE html><html><head><title>YouTube</title></head><body>
<script>var ytcfg = {"a": 1};</script>
<script nonce="x">var ytInitialData = {"contents":{"twoColumnSearchResultsRenderer":{"primaryContents":{"sectionListRenderer":{"contents":[{"itemSectionRenderer":{"contents":[
{"adSlotRenderer":{"title":"ad {not json}"}},
{"videoRenderer":{"videoId":"first1","title":{"runs":[{"text":"Prea Mult Banciu - "},{"text":"5 Decembrie"}]},"publishedTimeText":{"simpleText":"10 months ago"}}},
{"videoRenderer":{"videoId":"second2","title":{"runs":[{"text":"Quote \"test\" } brace"}]}}},
{"videoRenderer":{"videoId":"third3","title":{"simpleText":"Third"}}},
{"videoRenderer":{"videoId":"fourth4","title":{"simpleText":"Fourth"}}}
]}}]}}}}};</script>
</body></html>`

func TestScrapeSearcher(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search_query")
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	s := NewScrapeSearcher(srv.Client(), quietLogger)
	s.ResultsURL = srv.URL

	results, err := s.Search(context.Background(), "Prea Mult Banciu - 5 Decembrie", 3)
	require.NoError(t, err)

	assert.Equal(t, "Prea Mult Banciu - 5 Decembrie", gotQuery)
	require.Len(t, results, 3)
	assert.Equal(t, "https://www.youtube.com/watch?v=first1", results[0].URL)
	assert.Equal(t, "Prea Mult Banciu - 5 Decembrie", results[0].Title)
	assert.Equal(t, "10 months ago", results[0].UploadDate)
	assert.Equal(t, `Quote "test" } brace`, results[1].Title)
	assert.Equal(t, "Third", results[2].Title)
}

func TestScrapeSearcher_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	s := NewScrapeSearcher(srv.Client(), quietLogger)
	s.ResultsURL = srv.URL
	s.Retry = RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

	results, err := s.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestScrapeSearcher_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("search_query") {
		case "forbidden":
			w.WriteHeader(http.StatusForbidden)
		default:
			fmt.Fprint(w, "<html><body><script>var other = {};</script></body></html>")
		}
	}))
	defer srv.Close()

	s := NewScrapeSearcher(srv.Client(), quietLogger)
	s.ResultsURL = srv.URL
	s.Retry = RetryConfig{MaxRetries: 0}

	_, err := s.Search(context.Background(), "forbidden", 3)
	assert.Error(t, err)

	_, err = s.Search(context.Background(), "no data", 3)
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple", `{"a":1};rest`, `{"a":1}`},
		{"nested", `{"a":{"b":[{}]}} tail`, `{"a":{"b":[{}]}}`},
		{"brace in string", `{"a":"}{"}x`, `{"a":"}{"}`},
		{"escaped quote", `{"a":"x\"}"}y`, `{"a":"x\"}"}`},
		{"escaped backslash", `{"a":"x\\"}z`, `{"a":"x\\"}`},
		{"unterminated", `{"a":1`, ""},
		{"not object", `[1]`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(extractJSON([]byte(tt.input)))
			if got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&httpStatusError{StatusCode: 503}))
	assert.False(t, isRetryable(stderrors.New("plain")))
	assert.True(t, isRetryableStatus(429))
	assert.False(t, isRetryableStatus(404))
}

const channelFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <title>Prea Mult Banciu</title>
  <entry>
    <yt:videoId>new1</yt:videoId>
    <title>Prea Mult Banciu - 27 Noiembrie</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=new1"/>
    <published>2024-11-27T18:00:00+00:00</published>
  </entry>
  <entry>
    <yt:videoId>old2</yt:videoId>
    <title>Prea Mult Banciu - 5 Decembrie</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=old2"/>
    <published>2024-12-05T18:00:00+00:00</published>
  </entry>
  <entry>
    <yt:videoId>other3</yt:videoId>
    <title>Interviu special</title>
    <link rel="alternate" href="https://www.youtube.com/watch?v=other3"/>
    <published>2024-12-01T18:00:00+00:00</published>
  </entry>
</feed>`

func TestFeedSearcher(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "UC123", r.URL.Query().Get("channel_id"))
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, channelFeed)
	}))
	defer srv.Close()

	f := NewFeedSearcher("UC123", srv.Client(), nil)
	f.FeedURL = srv.URL

	results, err := f.Search(context.Background(), "Prea Mult Banciu - 5 Decembrie", 3)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "https://www.youtube.com/watch?v=old2", results[0].URL)
	assert.Equal(t, "20241205", results[0].UploadDate)
	assert.Equal(t, "Prea Mult Banciu - 27 Noiembrie", results[1].Title)

	results, err = f.Search(context.Background(), "nimic asemanator", 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "feed should be fetched once")
}

func TestFeedSearcher_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFeedSearcher("missing", srv.Client(), nil)
	f.FeedURL = srv.URL

	_, err := f.Search(context.Background(), "q", 3)
	assert.Error(t, err)
}

func TestFeedSearcher_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, channelFeed)
	}))
	defer srv.Close()

	f := NewFeedSearcher("UC123", srv.Client(), nil)
	f.FeedURL = srv.URL
	f.Retry = RetryConfig{MaxRetries: 2, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}

	results, err := f.Search(context.Background(), "Prea Mult Banciu - 5 Decembrie", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestFeedSearcher_FailureNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, channelFeed)
	}))
	defer srv.Close()

	f := NewFeedSearcher("UC123", srv.Client(), nil)
	f.FeedURL = srv.URL
	f.Retry = RetryConfig{MaxRetries: 0}

	_, err := f.Search(context.Background(), "Prea Mult Banciu - 5 Decembrie", 3)
	require.Error(t, err)

	// The next query fetches again instead of reusing the failure.
	results, err := f.Search(context.Background(), "Prea Mult Banciu - 27 Noiembrie", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "https://www.youtube.com/watch?v=new1", results[0].URL)

	_, err = f.Search(context.Background(), "Interviu special", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits), "a parsed feed is reused")
}
