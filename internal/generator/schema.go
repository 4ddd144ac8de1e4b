package generator

import (
	"fmt"

	"github.com/goliatone/go-translations/translation"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Per-kind output schemas. additionalProperties is false everywhere: a
// backend inventing fields is as wrong as one dropping them.
var (
	simpleSchema = jsonschema.MustCompileString("simple.json", `{
		"type": "object",
		"properties": {
			"name":        {"type": "string", "minLength": 1},
			"description": {"type": "string"}
		},
		"required": ["name"],
		"additionalProperties": false
	}`)

	longformSchema = jsonschema.MustCompileString("longform.json", `{
		"type": "object",
		"properties": {
			"title": {"type": "string", "minLength": 1},
			"body":  {"type": "string", "minLength": 1}
		},
		"required": ["title", "body"],
		"additionalProperties": false
	}`)

	markupSchema = jsonschema.MustCompileString("markup.json", `{
		"type": "object",
		"properties": {
			"body": {"type": "string", "minLength": 1}
		},
		"required": ["body"],
		"additionalProperties": false
	}`)
)

func schemaFor(kind translation.EntityKind) (*jsonschema.Schema, error) {
	switch kind {
	case translation.KindSimple:
		return simpleSchema, nil
	case translation.KindLongform:
		return longformSchema, nil
	case translation.KindMarkup:
		return markupSchema, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrKindUnknown, kind)
}

func validateShape(kind translation.EntityKind, fields map[string]any) error {
	schema, err := schemaFor(kind)
	if err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("%w: no fields", ErrOutputShape)
	}
	if err := schema.Validate(normalizeForSchema(fields)); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputShape, err)
	}
	return nil
}

// normalizeForSchema rebuilds the field map as plain interface values so the
// validator sees the same shapes a JSON decode would produce.
func normalizeForSchema(fields map[string]any) any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
