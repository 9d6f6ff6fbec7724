// Package acquire obtains the raw transcript of one episode: captions first
// when enabled, otherwise (or on failure) downloaded audio run through a
// speech-to-text engine.
package acquire

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// Target names the video to fetch and where downloads go.
type Target struct {
	URL string
	ID  string
	Dir string
}

// Download is a file produced by a Fetcher.
type Download struct {
	Kind episode.SourceKind
	Path string
}

// Fetcher downloads caption or audio files for a video.
type Fetcher interface {
	FetchCaptions(ctx context.Context, t Target, lang string) (Download, error)
	FetchAudio(ctx context.Context, t Target) (Download, error)
}

// Transcriber turns an audio file into text in the given language.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, lang string) (string, error)
}

// Options configures an Acquirer.
type Options struct {
	// Language is the caption and transcription language code
	Language string

	// PreferCaptions enables the caption path
	PreferCaptions bool

	Logger *slog.Logger
}

// Acquirer runs the caption/audio fallback chain.
type Acquirer struct {
	fetcher     Fetcher
	transcriber Transcriber
	opts        Options
}

// New creates an Acquirer.
func New(fetcher Fetcher, transcriber Transcriber, opts Options) *Acquirer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Acquirer{fetcher: fetcher, transcriber: transcriber, opts: opts}
}

type state int

const (
	stateTryCaptions state = iota
	stateTryAudio
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateTryCaptions:
		return "try_captions"
	case stateTryAudio:
		return "try_audio"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// run is the per-episode machine: current state, result and collected causes.
type run struct {
	state  state
	target Target
	result *episode.RawTranscript
	causes []error
}

// Acquire obtains the raw transcript for ref, downloading into dir.
// Returns ACQUISITION_FAILED when neither path yields text.
func (a *Acquirer) Acquire(ctx context.Context, ref episode.Reference, dir string) (*episode.RawTranscript, error) {
	r := &run{
		state:  a.initialState(),
		target: Target{URL: ref.URL, ID: fsutil.SanitizeForFilename(ref.ID()), Dir: dir},
	}

	for r.state != stateDone && r.state != stateFailed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.step(ctx, r)
	}

	if r.state == stateFailed {
		return nil, errors.NewAcquisitionFailed(ref.URL, stderrors.Join(r.causes...))
	}
	return r.result, nil
}

func (a *Acquirer) initialState() state {
	if a.opts.PreferCaptions {
		return stateTryCaptions
	}
	return stateTryAudio
}

// step performs the work of the current state and moves to the next one.
func (a *Acquirer) step(ctx context.Context, r *run) {
	log := a.opts.Logger.With(slog.String("url", r.target.URL), slog.String("state", r.state.String()))

	switch r.state {
	case stateTryCaptions:
		text, err := a.captions(ctx, r.target)
		if err != nil {
			log.Info("captions unavailable, falling back to audio", slog.Any("error", err))
			r.causes = append(r.causes, fmt.Errorf("captions: %w", err))
			r.state = stateTryAudio
			return
		}
		r.result = &episode.RawTranscript{Kind: episode.SourceSubtitles, Text: text}
		r.state = stateDone

	case stateTryAudio:
		text, err := a.audio(ctx, r.target)
		if err != nil {
			log.Warn("audio transcription failed", slog.Any("error", err))
			r.causes = append(r.causes, fmt.Errorf("audio: %w", err))
			r.state = stateFailed
			return
		}
		r.result = &episode.RawTranscript{Kind: episode.SourceAudioTranscribed, Text: text}
		r.state = stateDone
	}
}

func (a *Acquirer) captions(ctx context.Context, t Target) (string, error) {
	dl, err := a.fetcher.FetchCaptions(ctx, t, a.opts.Language)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(dl.Path)
	if err != nil {
		return "", fmt.Errorf("read captions: %w", err)
	}
	text := transcript.ExtractCaptionText(string(data))
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("caption file %s has no text", filepath.Base(dl.Path))
	}
	return text, nil
}

func (a *Acquirer) audio(ctx context.Context, t Target) (string, error) {
	dl, err := a.fetcher.FetchAudio(ctx, t)
	if err != nil {
		return "", err
	}
	text, err := a.transcriber.Transcribe(ctx, dl.Path, a.opts.Language)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("transcription of %s produced no text", filepath.Base(dl.Path))
	}
	return text, nil
}
