package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/castchunk/internal/acquire"
	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/locate"
)

// WatchURL returns the canonical watch page URL for a video id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// YTDLP drives the yt-dlp command line tool. It serves as both a search
// backend and the caption/audio fetcher.
type YTDLP struct {
	Path   string
	Runner CommandRunner
	Logger *slog.Logger
}

// NewYTDLP creates a YTDLP adapter; path defaults to "yt-dlp".
func NewYTDLP(path string, runner CommandRunner, logger *slog.Logger) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &YTDLP{Path: path, Runner: runner, Logger: logger}
}

var (
	_ locate.Searcher = (*YTDLP)(nil)
	_ acquire.Fetcher = (*YTDLP)(nil)
)

// flatPlaylist is the subset of yt-dlp's --dump-single-json output we read.
type flatPlaylist struct {
	Entries []*struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		URL        string `json:"url"`
		UploadDate string `json:"upload_date"`
	} `json:"entries"`
}

// Search runs "ytsearchN:<query>" in flat-playlist mode.
func (y *YTDLP) Search(ctx context.Context, query string, maxResults int) ([]locate.SearchResult, error) {
	if maxResults <= 0 {
		maxResults = locate.DefaultMaxResults
	}

	out, err := y.Runner.Run(ctx, y.Path,
		"--flat-playlist",
		"--dump-single-json",
		"--no-warnings",
		"--quiet",
		fmt.Sprintf("ytsearch%d:%s", maxResults, query),
	)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp search: %w", err)
	}

	var pl flatPlaylist
	if err := json.Unmarshal(out, &pl); err != nil {
		return nil, fmt.Errorf("decode yt-dlp search output: %w", err)
	}

	results := make([]locate.SearchResult, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		if e == nil || e.ID == "" {
			continue
		}
		title := e.Title
		if title == "" {
			title = "Unknown"
		}
		results = append(results, locate.SearchResult{
			URL:        WatchURL(e.ID),
			Title:      title,
			UploadDate: e.UploadDate,
		})
	}
	return results, nil
}

// FetchCaptions downloads uploaded or automatic subtitles in lang as SRT.
func (y *YTDLP) FetchCaptions(ctx context.Context, t acquire.Target, lang string) (acquire.Download, error) {
	_, err := y.Runner.Run(ctx, y.Path,
		"--skip-download",
		"--write-subs",
		"--write-auto-subs",
		"--sub-langs", lang,
		"--sub-format", "srt/best",
		"--convert-subs", "srt",
		"--no-warnings",
		"--quiet",
		"-o", filepath.Join(t.Dir, t.ID+".%(ext)s"),
		t.URL,
	)
	if err != nil {
		return acquire.Download{}, fmt.Errorf("yt-dlp subtitles: %w", err)
	}

	path := filepath.Join(t.Dir, t.ID+"."+lang+".srt")
	if _, err := os.Stat(path); err == nil {
		return acquire.Download{Kind: episode.SourceSubtitles, Path: path}, nil
	}

	// yt-dlp names auto-subs with variant suffixes (ro-orig, ro-RO) or keeps vtt
	// when conversion is unavailable.
	if found := findFile(t.Dir, t.ID+".", ".srt", ".vtt"); found != "" {
		return acquire.Download{Kind: episode.SourceSubtitles, Path: found}, nil
	}
	return acquire.Download{}, fmt.Errorf("no %s subtitles for %s", lang, t.URL)
}

// FetchAudio downloads the best audio stream and extracts it to m4a.
func (y *YTDLP) FetchAudio(ctx context.Context, t acquire.Target) (acquire.Download, error) {
	_, err := y.Runner.Run(ctx, y.Path,
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", "m4a",
		"--no-warnings",
		"--quiet",
		"-o", filepath.Join(t.Dir, t.ID+".%(ext)s"),
		t.URL,
	)
	if err != nil {
		return acquire.Download{}, fmt.Errorf("yt-dlp audio: %w", err)
	}

	path := filepath.Join(t.Dir, t.ID+".m4a")
	if _, err := os.Stat(path); err == nil {
		return acquire.Download{Kind: episode.SourceAudioTranscribed, Path: path}, nil
	}
	if found := findFile(t.Dir, t.ID+".", ".m4a", ".mp3", ".opus", ".webm"); found != "" {
		return acquire.Download{Kind: episode.SourceAudioTranscribed, Path: found}, nil
	}
	return acquire.Download{}, fmt.Errorf("audio file for %s not found after download", t.URL)
}

// findFile returns the first file in dir whose name starts with prefix and
// ends with one of exts, tried in ext order then by name.
func findFile(dir, prefix string, exts ...string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, ext := range exts {
		for _, name := range names {
			if strings.HasSuffix(name, ext) {
				return filepath.Join(dir, name)
			}
		}
	}
	return ""
}
