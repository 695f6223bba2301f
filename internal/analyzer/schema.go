package analyzer

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/markbunyevacz/lambda-extract/internal/registry"
)

// buildResponseSchema returns the JSON-Schema the model's reply must satisfy:
// an object with a "fields" map restricted to the registry's keys and a
// numeric "confidence" in [0,1].
func buildResponseSchema(reg *registry.Registry) map[string]any {
	fieldProps := make(map[string]any, reg.Len())
	for _, f := range reg.Fields {
		switch f.Kind {
		case registry.KindNumber:
			fieldProps[f.Key] = map[string]any{"type": []string{"number", "string"}}
		default:
			fieldProps[f.Key] = map[string]any{"type": "string", "minLength": 1}
		}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"fields", "confidence"},
		"properties": map[string]any{
			"fields": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties":           fieldProps,
			},
			"confidence": map[string]any{
				"type": "number", "minimum": 0.0, "maximum": 1.0,
			},
		},
	}
}

// validateAgainstSchema validates data against schemaMap.
func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return eris.Wrap(err, "analyzer: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("response.json", bytes.NewReader(b)); err != nil {
		return eris.Wrap(err, "analyzer: add schema resource")
	}
	schema, err := compiler.Compile("response.json")
	if err != nil {
		return eris.Wrap(err, "analyzer: compile schema")
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return eris.Wrap(err, "analyzer: unmarshal reply")
	}
	if err := schema.Validate(v); err != nil {
		return eris.Wrap(err, "analyzer: reply does not match schema")
	}
	return nil
}
