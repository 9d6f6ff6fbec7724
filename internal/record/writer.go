package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"

	"github.com/hpungsan/castchunk/internal/errors"
	"github.com/hpungsan/castchunk/internal/fsutil"
	"github.com/hpungsan/castchunk/internal/transcript"
)

// Writer persists records as <Dir>/<episode_id>.json.
type Writer struct {
	Dir string
}

// NewWriter returns a Writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Path returns where the record with the given id is stored.
func (w *Writer) Path(episodeID string) string {
	return filepath.Join(w.Dir, fsutil.SanitizeForFilename(episodeID)+".json")
}

// Write stores rec, replacing any earlier artifact with the same id.
// Encoding is deterministic, so rewriting the same record yields the same
// bytes.
func (w *Writer) Write(rec *Record) (string, error) {
	if rec == nil || rec.EpisodeID == "" {
		return "", errors.NewInvalidRequest("record has no episode id")
	}

	data, err := Encode(rec)
	if err != nil {
		return "", err
	}

	path := w.Path(rec.EpisodeID)
	err = fsutil.WriteAtomic(path, 0644, func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// Read loads the record with the given id.
func (w *Writer) Read(episodeID string) (*Record, error) {
	path := w.Path(episodeID)
	f, err := fsutil.OpenNoFollowRead(path)
	if err != nil {
		if errors.Is(err, errors.ErrFileNotFound) {
			return nil, errors.NewNotFound(episodeID)
		}
		return nil, errors.NewInternal(err)
	}
	defer f.Close()
	return Decode(f)
}

// Encode renders rec as indented JSON with non-ASCII text kept literal.
func Encode(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("encode record: %w", err))
	}
	return buf.Bytes(), nil
}

// Decode parses a record artifact.
func Decode(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("invalid record: %v", err))
	}
	if rec.EpisodeID == "" {
		return nil, errors.NewInvalidRequest("invalid record: missing episode_id")
	}
	if rec.Chunks == nil {
		rec.Chunks = []transcript.Chunk{}
	}
	return &rec, nil
}
