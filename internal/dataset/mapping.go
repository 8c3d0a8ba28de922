package dataset

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/orgenrich/internal/model"
)

// Mapping renames input columns, e.g.
//
//	columns:
//	  "Company Name": name
//	  "Tax ID": ein
type Mapping struct {
	Columns map[string]string `yaml:"columns"`
}

// LoadMapping reads a YAML mapping file.
func LoadMapping(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read mapping %s", path)
	}
	var m Mapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse mapping %s", path)
	}
	if err := m.Validate(); err != nil {
		return nil, eris.Wrapf(err, "dataset: mapping %s", path)
	}
	return &m, nil
}

// Validate rejects empty targets and targets shared by several columns.
func (m *Mapping) Validate() error {
	sources := make(map[string][]string, len(m.Columns))
	for from, to := range m.Columns {
		if to == "" {
			return eris.Errorf("dataset: mapping for column %q has an empty target", from)
		}
		sources[to] = append(sources[to], from)
	}
	for to, from := range sources {
		if len(from) > 1 {
			sort.Strings(from)
			return eris.Errorf("dataset: columns %q all map to %q", from, to)
		}
	}
	return nil
}

// Apply returns a copy of r with mapped keys renamed. A renamed column
// replaces any existing key of the same name.
func (m *Mapping) Apply(r model.Record) model.Record {
	out := make(model.Record, len(r))
	for k, v := range r {
		if _, mapped := m.Columns[k]; !mapped {
			out[k] = v
		}
	}
	for k, v := range r {
		if to, mapped := m.Columns[k]; mapped {
			out[to] = v
		}
	}
	return out
}
