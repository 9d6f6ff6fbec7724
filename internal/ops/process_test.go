package ops

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/castchunk/internal/config"
	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/record"
)

const testManifest = "url,title,date\n" +
	"https://www.youtube.com/watch?v=vidA,Prea Mult Banciu - 5 Decembrie,2024-12-05\n" +
	"https://youtu.be/vidB,Prea Mult Banciu - 27 Noiembrie,2024-11-27\n" +
	",missing url,2024-11-25\n" +
	"https://podcasts.example.com/ep/9,Prea Mult Banciu - 9 Octombrie,2024-10-09\n"

func testPipeline(run *Run) (Pipeline, *fakeAcquirer) {
	acq := &fakeAcquirer{texts: map[string]string{
		"https://www.youtube.com/watch?v=vidA": "Bună seara [Muzică] tuturor. Astăzi vorbim despre buget și taxe. Apoi despre fotbal.",
		"https://podcasts.example.com/ep/9":    "Un episod scurt.",
	}}
	return Pipeline{Acquirer: acq, Writer: record.NewWriter(run.Settings.OutputDir)}, acq
}

func TestProcess_TallyAndArtifacts(t *testing.T) {
	run, _ := newTestRun(t, nil)
	p, acq := testPipeline(run)

	out, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)

	assert.Equal(t, run.ID, out.RunID)
	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 1, out.SkippedRows)
	require.Len(t, out.Episodes, 2)

	assert.Equal(t, "vidA", out.Episodes[0].EpisodeID)
	assert.Equal(t, "prea-mult-banciu-9-octombrie_2024-10-09", out.Episodes[1].EpisodeID)

	rec, err := p.Writer.Read("vidA")
	require.NoError(t, err)
	assert.Equal(t, "Prea Mult Banciu - 5 Decembrie", rec.Title)
	assert.Equal(t, "2024-12-05", rec.Date)
	require.NotEmpty(t, rec.Chunks)
	for _, c := range rec.Chunks {
		assert.NotContains(t, c.Text, "[Muzică]")
	}
	assert.Equal(t, rec.NumChunks, out.Episodes[0].NumChunks)

	// Every episode used the run-scoped work dir, removed afterwards.
	workDir := filepath.Join(run.Settings.WorkDir, run.ID)
	for _, dir := range acq.dirs {
		assert.Equal(t, workDir, dir)
	}
	_, statErr := os.Stat(workDir)
	assert.True(t, os.IsNotExist(statErr), "work dir should be cleaned up")
}

func TestProcess_KeepWorkDir(t *testing.T) {
	run, _ := newTestRun(t, &config.Config{KeepWorkDir: true})
	p, _ := testPipeline(run)

	_, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(run.Settings.WorkDir, run.ID))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestProcess_MaxVideos(t *testing.T) {
	run, _ := newTestRun(t, &config.Config{MaxVideos: 1})
	p, _ := testPipeline(run)

	out, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
	assert.Equal(t, 1, out.Succeeded)

	// Input override wins over settings.
	out, err = Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest), MaxVideos: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Total)
}

func TestProcess_IndexAndPublish(t *testing.T) {
	run, baseDir := newTestRun(t, nil)
	database := openTestDB(t, baseDir)
	pub := &fakePublisher{}

	p, _ := testPipeline(run)
	p.DB = database
	p.Publisher = pub

	_, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)

	rec, err := db.GetByID(database, "vidA")
	require.NoError(t, err)
	assert.Equal(t, "Prea Mult Banciu - 5 Decembrie", rec.Title)

	var runID string
	require.NoError(t, database.QueryRow("SELECT run_id FROM episodes WHERE episode_id = ?", "vidA").Scan(&runID))
	assert.Equal(t, run.ID, runID)

	assert.Equal(t, []string{
		"vidA@" + run.ID,
		"prea-mult-banciu-9-octombrie_2024-10-09@" + run.ID,
	}, pub.published)
}

func TestProcess_PublishFailureDoesNotFailEpisode(t *testing.T) {
	run, _ := newTestRun(t, nil)
	p, _ := testPipeline(run)
	p.Publisher = &fakePublisher{err: fmt.Errorf("connection refused")}

	out, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Succeeded)
}

func TestProcess_Idempotent(t *testing.T) {
	run, _ := newTestRun(t, nil)
	p, _ := testPipeline(run)

	_, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)
	first, err := os.ReadFile(p.Writer.Path("vidA"))
	require.NoError(t, err)

	_, err = Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	require.NoError(t, err)
	second, err := os.ReadFile(p.Writer.Path("vidA"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProcess_EmptyBatch(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"empty input", ""},
		{"header only", "url,title,date\n"},
		{"all rows malformed", "url,title,date\n,,2024-12-05\nhttps://youtu.be/x,,\n"},
		{"missing column", "url,title\nhttps://youtu.be/x,Ep\n"},
		{"every episode fails", "url,title,date\nhttps://youtu.be/nope,Ep,2024-12-05\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, _ := newTestRun(t, nil)
			p, _ := testPipeline(run)

			_, err := Process(context.Background(), run, p, ProcessInput{Manifest: strings.NewReader(tt.manifest)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrEmptyBatch), "got %v", err)
		})
	}
}

func TestProcess_RequiresManifest(t *testing.T) {
	run, _ := newTestRun(t, nil)
	p, _ := testPipeline(run)

	_, err := Process(context.Background(), run, p, ProcessInput{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestProcess_Cancelled(t *testing.T) {
	run, _ := newTestRun(t, nil)
	p, acq := testPipeline(run)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Process(ctx, run, p, ProcessInput{Manifest: strings.NewReader(testManifest)})
	assert.True(t, errors.Is(err, errors.ErrCancelled))
	assert.Empty(t, acq.dirs)
}
