package ops

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
)

// VideoLocator resolves one date phrase to a video. Satisfied by *locate.Locator.
type VideoLocator interface {
	Locate(ctx context.Context, phrase string, year int) (episode.Reference, error)
}

// LocateInput contains parameters for the Locate operation.
type LocateInput struct {
	Phrases    []string // default: the locale's default date list
	Year       int      // default: Settings.Year
	OutputPath string   // optional; manifest CSV is written here when set
}

// LocateOutput is the tally of a Locate run.
type LocateOutput struct {
	RunID      string              `json:"run_id"`
	Total      int                 `json:"total"`
	Located    int                 `json:"located"`
	Skipped    int                 `json:"skipped"`
	References []episode.Reference `json:"references"`
	Manifest   string              `json:"manifest,omitempty"`
}

// Locate finds a video for every date phrase. Phrases that do not resolve or
// match nothing are logged and skipped. A video found for two phrases is
// kept once. Returns INVALID_CONFIG when no channel is configured and
// EMPTY_BATCH when nothing was located.
func Locate(ctx context.Context, run *Run, locator VideoLocator, input LocateInput) (*LocateOutput, error) {
	if run.Settings.Channel == "" {
		return nil, errors.NewInvalidConfig("channel", "required to search; the configured language has no default channel")
	}

	phrases := input.Phrases
	if len(phrases) == 0 {
		phrases = run.Settings.Locale.DefaultDates
	}
	year := input.Year
	if year == 0 {
		year = run.Settings.Year
	}

	out := &LocateOutput{RunID: run.ID, References: []episode.Reference{}}
	seen := make(map[string]bool)

	for _, phrase := range phrases {
		phrase = strings.TrimSpace(phrase)
		if phrase == "" {
			continue
		}
		out.Total++

		if ctx.Err() != nil {
			return nil, errors.NewCancelled("locate")
		}

		ref, err := locator.Locate(ctx, phrase, year)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled("locate")
			}
			out.Skipped++
			run.Logger.Warn("date skipped",
				slog.String("phrase", phrase),
				slog.String("code", string(errors.As(err).Code)),
				slog.Any("error", err))
			continue
		}

		id := ref.ID()
		if seen[id] {
			out.Skipped++
			run.Logger.Warn("duplicate video skipped",
				slog.String("phrase", phrase),
				slog.String("url", ref.URL))
			continue
		}
		seen[id] = true
		out.References = append(out.References, ref)
		out.Located++
	}

	run.Logger.Info("locate finished",
		slog.Int("total", out.Total),
		slog.Int("located", out.Located),
		slog.Int("skipped", out.Skipped))

	if out.Total == 0 {
		return nil, errors.NewEmptyBatch("no date phrases given")
	}
	if out.Located == 0 {
		return nil, errors.NewEmptyBatch("no videos located")
	}

	if input.OutputPath != "" {
		err := fsutil.WriteAtomic(input.OutputPath, 0644, func(w io.Writer) error {
			return episode.WriteManifest(w, out.References)
		})
		if err != nil {
			return nil, err
		}
		out.Manifest = input.OutputPath
	}

	return out, nil
}
