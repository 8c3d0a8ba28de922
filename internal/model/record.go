package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one opaque input row. Keys are column or property names, values
// are whatever the input format produced (strings for CSV/XLSX, any JSON value
// for JSON input). A Record is never mutated in place.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text returns the value at key as trimmed text. Numbers are formatted
// without exponent so numeric identifiers survive. Missing and null values
// return "".
func (r Record) Text(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Merge returns a copy of r with res stored under key. The result is stored
// in its generic JSON form so records merged in this process and records read
// back from a snapshot serialize identically.
func Merge(r Record, key string, res EnrichmentResult) (Record, error) {
	generic, err := ToGeneric(res)
	if err != nil {
		return nil, eris.Wrap(err, "model: merge enrichment")
	}
	out := r.Clone()
	out[key] = generic
	return out, nil
}

// ToGeneric round-trips v through JSON into maps, slices and json.Number.
func ToGeneric(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// StatusOf reads the enrichment status stored under key, as written by Merge
// or read back from a snapshot.
func StatusOf(r Record, key string) (Status, Reason) {
	sub, ok := r[key].(map[string]any)
	if !ok {
		return "", ""
	}
	status, _ := sub["status"].(string)
	reason, _ := sub["reason"].(string)
	return Status(status), Reason(reason)
}
