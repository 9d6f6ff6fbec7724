package record

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/castchunk/internal/episode"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/transcript"
)

func sampleChunks() []transcript.Chunk {
	return []transcript.Chunk{
		{Index: 0, Text: "Bună seara. Ăsta e primul fragment.", ApproxWordCount: 6},
		{Index: 1, Text: "primul fragment. Și <al doilea> & ultimul.", ApproxWordCount: 7},
	}
}

func TestBuild(t *testing.T) {
	ref := episode.Reference{
		URL:   "https://www.youtube.com/watch?v=abc123XYZ_-",
		Title: "Prea Mult Banciu - 5 Decembrie",
		Date:  "2024-12-05",
	}
	cleaned := "Bună seara. Ăsta e primul fragment. Și <al doilea> & ultimul."

	rec := Build(ref, cleaned, sampleChunks())

	assert.Equal(t, "abc123XYZ_-", rec.EpisodeID)
	assert.Equal(t, ref.URL, rec.URL)
	assert.Equal(t, ref.Title, rec.Title)
	assert.Equal(t, ref.Date, rec.Date)
	assert.Equal(t, len([]rune(cleaned)), rec.RawTextLength)
	assert.Equal(t, 2, rec.NumChunks)
	assert.Equal(t, sampleChunks(), rec.Chunks)
	assert.Equal(t, ref, rec.Reference())
}

func TestBuild_SlugFallback(t *testing.T) {
	ref := episode.Reference{URL: "https://example.org/ep/5", Title: "Prea Mult Banciu - 5 Decembrie", Date: "2024-12-05"}
	rec := Build(ref, "", nil)

	assert.Equal(t, "prea-mult-banciu-5-decembrie_2024-12-05", rec.EpisodeID)
	assert.Equal(t, 0, rec.NumChunks)
	assert.NotNil(t, rec.Chunks)
}

func TestBuild_SameIDAcrossURLShapes(t *testing.T) {
	urls := []string{
		"https://youtu.be/Q1w2E3r4T5y",
		"https://www.youtube.com/watch?v=Q1w2E3r4T5y",
		"https://www.youtube.com/embed/Q1w2E3r4T5y",
		"https://www.youtube.com/v/Q1w2E3r4T5y",
	}
	for _, u := range urls {
		rec := Build(episode.Reference{URL: u, Title: "t", Date: "2024-01-01"}, "x", nil)
		assert.Equal(t, "Q1w2E3r4T5y", rec.EpisodeID, u)
	}
}

func TestBuild_CopiesChunks(t *testing.T) {
	chunks := sampleChunks()
	rec := Build(episode.Reference{URL: "https://youtu.be/abc", Title: "t", Date: "2024-01-01"}, "x", chunks)
	chunks[0].Text = "changed"
	assert.NotEqual(t, "changed", rec.Chunks[0].Text)
}

func TestEncode_Format(t *testing.T) {
	rec := Build(episode.Reference{URL: "https://youtu.be/abc", Title: "Ediție <specială>", Date: "2024-12-05"},
		"Bună seara.", sampleChunks()[:1])

	data, err := Encode(rec)
	require.NoError(t, err)
	s := string(data)

	// Literal non-ASCII and HTML characters, two-space indent.
	assert.Contains(t, s, `"title": "Ediție <specială>"`)
	assert.Contains(t, s, "\n  \"episode_id\": \"abc\"")
	assert.Contains(t, s, `"text": "Bună seara. Ăsta e primul fragment."`)

	// Key order follows the artifact layout.
	keys := []string{"episode_id", "youtube_url", "title", "date", "raw_text_length", "num_chunks", "chunks", "chunk_index", "text", "approx_word_count"}
	last := -1
	for _, k := range keys {
		i := strings.Index(s, `"`+k+`"`)
		require.Greater(t, i, last, "key %s out of order", k)
		last = i
	}

	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Len(t, generic, 7)
}

func TestWriter_Idempotent(t *testing.T) {
	w := NewWriter(t.TempDir())
	ref := episode.Reference{URL: "https://youtu.be/idem", Title: "Prea Mult Banciu - 9 Octombrie", Date: "2024-10-09"}

	path1, err := w.Write(Build(ref, "Bună seara.", sampleChunks()))
	require.NoError(t, err)
	first, err := os.ReadFile(path1)
	require.NoError(t, err)

	path2, err := w.Write(Build(ref, "Bună seara.", sampleChunks()))
	require.NoError(t, err)
	second, err := os.ReadFile(path2)
	require.NoError(t, err)

	assert.Equal(t, path1, path2)
	assert.True(t, bytes.Equal(first, second), "re-running must produce byte-identical output")
	assert.True(t, strings.HasSuffix(path1, "idem.json"))
}

func TestWriter_OverwritesPrevious(t *testing.T) {
	w := NewWriter(t.TempDir())
	ref := episode.Reference{URL: "https://youtu.be/over", Title: "t", Date: "2024-01-01"}

	_, err := w.Write(Build(ref, "old", sampleChunks()))
	require.NoError(t, err)
	_, err = w.Write(Build(ref, "new text", sampleChunks()[:1]))
	require.NoError(t, err)

	got, err := w.Read("over")
	require.NoError(t, err)
	assert.Equal(t, 1, got.NumChunks)
	assert.Equal(t, 8, got.RawTextLength)
}

func TestWriter_ReadMissing(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Read("nope")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestWriter_RejectsEmptyID(t *testing.T) {
	w := NewWriter(t.TempDir())
	_, err := w.Write(&Record{})
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode(strings.NewReader("{not json"))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Decode(strings.NewReader(`{"title":"x"}`))
	assert.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestToSummary(t *testing.T) {
	rec := Build(episode.Reference{URL: "https://youtu.be/sum", Title: "t", Date: "2024-01-01"}, "abc", sampleChunks())
	s := rec.ToSummary()
	assert.Equal(t, "sum", s.EpisodeID)
	assert.Equal(t, 2, s.NumChunks)
	assert.Equal(t, 13, s.WordCount)
}

func TestMarkdown(t *testing.T) {
	rec := Build(episode.Reference{URL: "https://youtu.be/md", Title: "Prea Mult Banciu", Date: "2024-01-01"}, "abc", sampleChunks())
	md := Markdown(rec)

	assert.True(t, strings.HasPrefix(md, "# Prea Mult Banciu\n"))
	assert.Contains(t, md, "## Chunk 0 (6 words)")
	assert.Contains(t, md, "## Chunk 1 (7 words)")
	assert.Contains(t, md, "- **Source:** <https://youtu.be/md>")
}
