package record

import (
	"fmt"
	"strings"
)

// Markdown renders rec as a readable document: a title, a metadata list and
// one section per chunk. Chunk text is emitted as-is.
func Markdown(rec *Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", rec.Title)
	fmt.Fprintf(&b, "- **Episode:** `%s`\n", rec.EpisodeID)
	fmt.Fprintf(&b, "- **Date:** %s\n", rec.Date)
	fmt.Fprintf(&b, "- **Source:** <%s>\n", rec.URL)
	fmt.Fprintf(&b, "- **Characters:** %d\n", rec.RawTextLength)
	fmt.Fprintf(&b, "- **Chunks:** %d\n", rec.NumChunks)

	for _, c := range rec.Chunks {
		fmt.Fprintf(&b, "\n## Chunk %d (%d words)\n\n%s\n", c.Index, c.ApproxWordCount, c.Text)
	}

	return b.String()
}
