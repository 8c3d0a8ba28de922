// Package dataset loads input records from JSON, CSV or XLSX files and
// fingerprints them so a resumed run can verify it sees the same input.
package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgenrich/internal/model"
)

// Formats accepted by Load.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Dataset is a loaded input file.
type Dataset struct {
	Path    string
	Format  string
	Records []model.Record
	// SHA256 fingerprints the records after mapping and limiting.
	SHA256 string
}

// Options controls loading.
type Options struct {
	// Mapping renames columns at load time. Nil keeps keys as they are.
	Mapping *Mapping
	// Limit keeps only the first Limit records when > 0.
	Limit int
}

// Load reads path, choosing the parser by file extension.
func Load(path string, opts Options) (*Dataset, error) {
	format := FormatOf(path)

	var (
		records []model.Record
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = readJSON(path)
	case FormatCSV:
		records, err = readCSV(path)
	case FormatXLSX:
		records, err = readXLSX(path)
	default:
		return nil, eris.Errorf("dataset: unsupported input format %q (want .json, .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	if opts.Mapping != nil {
		if err := opts.Mapping.Validate(); err != nil {
			return nil, err
		}
		for i, r := range records {
			records[i] = opts.Mapping.Apply(r)
		}
	}
	if opts.Limit > 0 && len(records) > opts.Limit {
		records = records[:opts.Limit]
	}

	sum, err := Fingerprint(records)
	if err != nil {
		return nil, err
	}
	return &Dataset{Path: path, Format: format, Records: records, SHA256: sum}, nil
}

// FormatOf returns the format implied by the file extension, or "".
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return ""
	}
}

// Fingerprint hashes the canonical JSON encoding of records.
func Fingerprint(records []model.Record) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", eris.Wrap(err, "dataset: encode records for fingerprint")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func readJSON(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read %s", path)
	}
	return DecodeJSON(data)
}

// DecodeJSON parses a JSON array of objects. Numbers stay json.Number so
// values such as EINs and ZIP codes round-trip unchanged.
func DecodeJSON(data []byte) ([]model.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "dataset: decode json array")
	}
	records := make([]model.Record, len(raw))
	for i, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, eris.Errorf("dataset: element %d is not an object", i)
		}
		records[i] = model.Record(obj)
	}
	return records, nil
}

// fromRows turns a header row plus data rows into records. Blank rows are
// skipped and short rows are padded with empty strings.
func fromRows(header []string, rows [][]string) []model.Record {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	records := make([]model.Record, 0, len(rows))
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		rec := make(model.Record, len(keys))
		for i, k := range keys {
			if k == "" {
				continue
			}
			v := ""
			if i < len(row) {
				v = strings.TrimSpace(row[i])
			}
			rec[k] = v
		}
		records = append(records, rec)
	}
	return records
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
