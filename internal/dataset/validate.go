package dataset

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sells-group/orgenrich/internal/model"
)

// Issue is one record that fails validation.
type Issue struct {
	Index   int
	Message string
}

// Validator checks records against a JSON schema requiring a usable name or
// EIN.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator builds the schema for the given identity columns.
func NewValidator(nameFields []string, einField string) (*Validator, error) {
	var anyOf []any
	for _, f := range nameFields {
		anyOf = append(anyOf, requiredNonBlank(f))
	}
	if einField != "" {
		anyOf = append(anyOf, requiredNonBlank(einField))
	}
	if len(anyOf) == 0 {
		return nil, eris.New("dataset: no identity fields configured")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(map[string]any{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type":    "object",
		"anyOf":   anyOf,
	}))
	if err != nil {
		return nil, eris.Wrap(err, "dataset: compile record schema")
	}
	return &Validator{schema: schema}, nil
}

// requiredNonBlank matches objects where field is a number or a string with
// a non-space character.
func requiredNonBlank(field string) map[string]any {
	return map[string]any{
		"required": []string{field},
		"properties": map[string]any{
			field: map[string]any{
				"anyOf": []any{
					map[string]any{"type": "number"},
					map[string]any{"type": "string", "pattern": `\S`},
				},
			},
		},
	}
}

// Validate returns one issue per invalid record.
func (v *Validator) Validate(records []model.Record) ([]Issue, error) {
	var issues []Issue
	for i, r := range records {
		res, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]any(r)))
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: validate record %d", i)
		}
		if res.Valid() {
			continue
		}
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		issues = append(issues, Issue{Index: i, Message: strings.Join(msgs, "; ")})
	}
	return issues, nil
}

func (i Issue) String() string {
	return fmt.Sprintf("record %d: %s", i.Index, i.Message)
}
