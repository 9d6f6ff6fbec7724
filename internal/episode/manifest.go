package episode

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"github.com/hpungsan/castchunk/internal/errors"
)

// ManifestColumns is the header row of a manifest file, in write order.
var ManifestColumns = []string{"url", "title", "date"}

// Manifest is the parsed content of a manifest file.
type Manifest struct {
	// References holds every usable row in file order
	References []Reference

	// Skipped holds one MALFORMED_INPUT error per unusable row
	Skipped []error
}

// ReadManifest parses a url,title,date table with a header row. Column order
// is taken from the header; extra columns are ignored. Rows with an empty
// required field, or that cannot be parsed, are skipped and reported in
// Manifest.Skipped with their physical line number. A header that
// lacks a required column makes the whole input unusable.
func ReadManifest(r io.Reader) (*Manifest, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return &Manifest{}, nil
	}
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("read manifest header: %v", err))
	}

	pos := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	var missing []string
	for _, col := range ManifestColumns {
		if _, ok := pos[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewMalformedInput(1, missing)
	}

	m := &Manifest{}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !stderrors.As(err, &pe) {
				return nil, errors.NewInvalidRequest(fmt.Sprintf("read manifest: %v", err))
			}
			m.Skipped = append(m.Skipped, errors.NewUnreadableRow(pe.StartLine, pe.Err))
			continue
		}
		line, _ := reader.FieldPos(0)

		field := func(col string) string {
			i := pos[col]
			if i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		var empty []string
		for _, col := range ManifestColumns {
			if field(col) == "" {
				empty = append(empty, col)
			}
		}
		if len(empty) > 0 {
			m.Skipped = append(m.Skipped, errors.NewMalformedInput(line, empty))
			continue
		}

		ref := Reference{URL: field("url"), Title: field("title"), Date: field("date")}
		m.References = append(m.References, ref)
	}

	return m, nil
}

// WriteManifest writes refs as a url,title,date table with a header row.
func WriteManifest(w io.Writer, refs []Reference) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(ManifestColumns); err != nil {
		return err
	}
	for _, ref := range refs {
		if err := writer.Write([]string{ref.URL, ref.Title, ref.Date}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
