package ops

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/hpungsan/castchunk/internal/db"
	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string // optional, default: <first export dir>/chunks-<timestamp>.jsonl
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	Episodes   int    `json:"episodes"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	CastchunkExport bool   `json:"_castchunk_export"`
	SchemaVersion   string `json:"schema_version"`
	ExportedAt      int64  `json:"exported_at"`
}

// Export writes every indexed chunk to a JSONL file, one line per chunk with
// its episode metadata, for embedding pipelines. The file is replaced
// atomically so a failed export keeps any earlier file intact.
func Export(ctx context.Context, database *sql.DB, policy fsutil.ExportPolicy, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		if len(policy.Dirs) == 0 {
			return nil, errors.NewInvalidRequest("path is required")
		}
		exportPath = filepath.Join(policy.Dirs[0], "chunks-"+now.Format("2006-01-02T150405")+".jsonl")
	}

	if err := fsutil.ValidateExportPath(exportPath, policy); err != nil {
		return nil, err
	}

	out := &ExportOutput{Path: exportPath, ExportedAt: now.Unix()}
	episodes := make(map[string]bool)

	err := fsutil.WriteAtomic(exportPath, 0600, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)

		header := ExportHeader{CastchunkExport: true, SchemaVersion: "1.0", ExportedAt: out.ExportedAt}
		if err := enc.Encode(header); err != nil {
			return errors.NewInternal(err)
		}

		return db.StreamChunks(ctx, database, func(row db.ExportRow) error {
			if ctx.Err() != nil {
				return errors.NewCancelled("export")
			}
			if err := enc.Encode(row); err != nil {
				return errors.NewInternal(fmt.Errorf("write chunk %s#%d: %w", row.EpisodeID, row.ChunkIndex, err))
			}
			out.Count++
			episodes[row.EpisodeID] = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	out.Episodes = len(episodes)
	return out, nil
}
