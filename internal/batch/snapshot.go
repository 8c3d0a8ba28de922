package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/atomicfile"
	"github.com/sells-group/orgenrich/internal/model"
)

// EncodeSnapshot renders records as a JSON array with sorted keys and
// 2-space indentation.
func EncodeSnapshot(records []model.Record) ([]byte, error) {
	if records == nil {
		records = []model.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, eris.Wrap(err, "batch: encode snapshot")
	}
	return buf.Bytes(), nil
}

// WriteSnapshot atomically replaces path with records.
func WriteSnapshot(path string, records []model.Record) error {
	data, err := EncodeSnapshot(records)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot written by WriteSnapshot. A missing file
// returns no records.
func ReadSnapshot(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read snapshot %s", path)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var records []model.Record
	if err := dec.Decode(&records); err != nil {
		return nil, eris.Wrapf(err, "batch: decode snapshot %s", path)
	}
	return records, nil
}
