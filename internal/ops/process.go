package ops

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/record"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// TranscriptAcquirer obtains the raw transcript of one episode. Satisfied by
// *acquire.Acquirer.
type TranscriptAcquirer interface {
	Acquire(ctx context.Context, ref episode.Reference, dir string) (*episode.RawTranscript, error)
}

// Publisher copies a finished record to an external store. Satisfied by
// *pgsink.Publisher.
type Publisher interface {
	Publish(ctx context.Context, rec *record.Record, runID string) error
}

// Pipeline holds the collaborators of the Process operation.
type Pipeline struct {
	Acquirer TranscriptAcquirer
	Writer   *record.Writer

	// DB receives every written record; nil disables indexing
	DB *sql.DB

	// Publisher receives every written record; nil disables publishing
	Publisher Publisher
}

// ProcessInput contains parameters for the Process operation.
type ProcessInput struct {
	// Manifest is a url,title,date table with a header row
	Manifest io.Reader

	// MaxVideos overrides Settings.MaxVideos when positive
	MaxVideos int
}

// ProcessedEpisode describes one episode written by Process.
type ProcessedEpisode struct {
	EpisodeID string             `json:"episode_id"`
	Path      string             `json:"path"`
	Source    episode.SourceKind `json:"source"`
	NumChunks int                `json:"num_chunks"`
}

// ProcessOutput is the tally of a Process run.
type ProcessOutput struct {
	RunID       string             `json:"run_id"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	SkippedRows int                `json:"skipped_rows"`
	Episodes    []ProcessedEpisode `json:"episodes"`
}

// Process runs acquire, normalize, chunk and persist for every manifest row,
// one episode at a time. A failing episode is logged and counted; the batch
// continues. Returns EMPTY_BATCH when the manifest has no usable rows or no
// episode succeeded.
func Process(ctx context.Context, run *Run, p Pipeline, input ProcessInput) (*ProcessOutput, error) {
	if input.Manifest == nil {
		return nil, errors.NewInvalidRequest("manifest is required")
	}

	manifest, err := episode.ReadManifest(input.Manifest)
	if err != nil {
		if errors.Is(err, errors.ErrMalformedInput) {
			return nil, errors.NewEmptyBatch(fmt.Sprintf("manifest unusable: %s", errors.As(err).Message))
		}
		return nil, err
	}

	for _, skipped := range manifest.Skipped {
		cErr := errors.As(skipped)
		run.Logger.Warn("manifest row skipped",
			slog.Any("line", cErr.Details["line"]),
			slog.Any("missing_fields", cErr.Details["missing_fields"]))
	}

	out := &ProcessOutput{
		RunID:       run.ID,
		SkippedRows: len(manifest.Skipped),
		Episodes:    []ProcessedEpisode{},
	}

	refs := manifest.References
	if len(refs) == 0 {
		return nil, errors.NewEmptyBatch("no usable rows in manifest")
	}

	maxVideos := run.Settings.MaxVideos
	if input.MaxVideos > 0 {
		maxVideos = input.MaxVideos
	}
	if maxVideos > 0 && len(refs) > maxVideos {
		run.Logger.Info("limiting batch", slog.Int("rows", len(refs)), slog.Int("max_videos", maxVideos))
		refs = refs[:maxVideos]
	}
	out.Total = len(refs)

	workDir := filepath.Join(run.Settings.WorkDir, run.ID)
	if err := os.MkdirAll(workDir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create work directory: %w", err))
	}
	if !run.Settings.KeepWorkDir {
		defer func() {
			if err := os.RemoveAll(workDir); err != nil {
				run.Logger.Warn("work directory cleanup failed", slog.String("dir", workDir), slog.Any("error", err))
			}
		}()
	}

	for i, ref := range refs {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("process")
		}

		log := run.Logger.With(
			slog.Int("n", i+1),
			slog.String("url", ref.URL),
			slog.String("date", ref.Date))
		log.Info("processing episode", slog.String("title", ref.Title))

		done, err := processEpisode(ctx, run, p, ref, workDir, log)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.NewCancelled("process")
			}
			out.Failed++
			log.Warn("episode failed",
				slog.String("code", string(errors.As(err).Code)),
				slog.Any("error", err))
			continue
		}

		out.Succeeded++
		out.Episodes = append(out.Episodes, *done)
	}

	run.Logger.Info("process finished",
		slog.Int("total", out.Total),
		slog.Int("succeeded", out.Succeeded),
		slog.Int("failed", out.Failed),
		slog.Int("skipped_rows", out.SkippedRows))

	if out.Succeeded == 0 {
		return nil, errors.NewEmptyBatch(fmt.Sprintf("no episodes processed (%d failed)", out.Failed))
	}
	return out, nil
}

// processEpisode runs the whole pipeline for one reference. Index and
// publish failures are logged; they do not fail the episode.
func processEpisode(ctx context.Context, run *Run, p Pipeline, ref episode.Reference, workDir string, log *slog.Logger) (*ProcessedEpisode, error) {
	raw, err := p.Acquirer.Acquire(ctx, ref, workDir)
	if err != nil {
		return nil, err
	}

	cleaned := transcript.Normalize(raw.Text)
	if cleaned == "" {
		log.Warn("transcript empty after normalization")
	}

	chunks, err := transcript.Split(cleaned, run.Settings.Split)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rec := record.Build(ref, cleaned, chunks)
	path, err := p.Writer.Write(rec)
	if err != nil {
		return nil, err
	}

	if p.DB != nil {
		if err := db.Upsert(p.DB, rec, run.ID); err != nil {
			log.Warn("index update failed", slog.String("episode_id", rec.EpisodeID), slog.Any("error", err))
		}
	}
	if p.Publisher != nil {
		if err := p.Publisher.Publish(ctx, rec, run.ID); err != nil {
			log.Warn("publish failed", slog.String("episode_id", rec.EpisodeID), slog.Any("error", err))
		}
	}

	log.Info("episode written",
		slog.String("episode_id", rec.EpisodeID),
		slog.String("source", string(raw.Kind)),
		slog.Int("chars", rec.RawTextLength),
		slog.Int("chunks", rec.NumChunks),
		slog.String("path", path))

	return &ProcessedEpisode{
		EpisodeID: rec.EpisodeID,
		Path:      path,
		Source:    raw.Kind,
		NumChunks: rec.NumChunks,
	}, nil
}
