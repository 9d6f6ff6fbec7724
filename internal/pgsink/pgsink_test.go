package pgsink

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/castchunk/internal/record"
	"github.com/hpungsan/castchunk/internal/transcript"
)

func testRecord() *record.Record {
	return &record.Record{
		EpisodeID:     "abc123",
		URL:           "https://www.youtube.com/watch?v=abc123",
		Title:         "Prea Mult Banciu - 5 Decembrie",
		Date:          "2024-12-05",
		RawTextLength: 42,
		NumChunks:     2,
		Chunks: []transcript.Chunk{
			{Index: 0, Text: "Bună seara.", ApproxWordCount: 2},
			{Index: 1, Text: "Astăzi vorbim.", ApproxWordCount: 2},
		},
	}
}

func TestBuildBatch(t *testing.T) {
	batch := buildBatch(testRecord(), "01RUN")

	require.Equal(t, 4, batch.Len())
	q := batch.QueuedQueries

	assert.Contains(t, q[0].SQL, "INSERT INTO castchunk_episodes")
	assert.Equal(t, []any{"abc123", "https://www.youtube.com/watch?v=abc123",
		"Prea Mult Banciu - 5 Decembrie", "2024-12-05", 42, 2, "01RUN"}, q[0].Arguments)

	assert.Contains(t, q[1].SQL, "DELETE FROM castchunk_chunks")
	assert.Equal(t, []any{"abc123"}, q[1].Arguments)

	assert.Contains(t, q[2].SQL, "INSERT INTO castchunk_chunks")
	assert.Equal(t, []any{"abc123", 0, "Bună seara.", 2}, q[2].Arguments)
	assert.Equal(t, []any{"abc123", 1, "Astăzi vorbim.", 2}, q[3].Arguments)
}

func TestBuildBatch_NoChunks(t *testing.T) {
	rec := testRecord()
	rec.Chunks = nil
	rec.NumChunks = 0

	batch := buildBatch(rec, "")
	assert.Equal(t, 2, batch.Len())
}

func TestSchemaEmbedded(t *testing.T) {
	data, err := fs.ReadFile(schemaFS, "schema/001_episodes.sql")
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "castchunk_episodes"))
	assert.True(t, strings.Contains(string(data), "castchunk_chunks"))
}

func TestConnect_RequiresDSN(t *testing.T) {
	_, err := Connect(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", nil)
	assert.Error(t, err)
}

// TestPublish_Postgres runs against a live server when CASTCHUNK_TEST_POSTGRES_DSN is set.
func TestPublish_Postgres(t *testing.T) {
	dsn := os.Getenv("CASTCHUNK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CASTCHUNK_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p, err := Connect(ctx, dsn, nil)
	require.NoError(t, err)
	defer p.Close()

	rec := testRecord()
	require.NoError(t, p.Publish(ctx, rec, "01RUN"))

	rec.Chunks = rec.Chunks[:1]
	rec.NumChunks = 1
	require.NoError(t, p.Publish(ctx, rec, "01RUN2"))

	var n int
	require.NoError(t, p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM castchunk_chunks WHERE episode_id = $1`, rec.EpisodeID).Scan(&n))
	assert.Equal(t, 1, n)

	_, err = p.pool.Exec(ctx, `DELETE FROM castchunk_episodes WHERE episode_id = $1`, rec.EpisodeID)
	require.NoError(t, err)
}
