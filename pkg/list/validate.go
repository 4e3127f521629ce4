package list

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/bobboyms/docstore/pkg/errors"
	"github.com/bobboyms/docstore/pkg/types"
)

// SchemaValidator valida documentos contra um JSON Schema.
type SchemaValidator struct {
	collection string
	schema     *gojsonschema.Schema
}

// NewSchemaValidator compila o schema uma única vez na construção.
func NewSchemaValidator(collection string, schema map[string]any) (*SchemaValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, err
	}
	return &SchemaValidator{collection: collection, schema: compiled}, nil
}

// Validate retorna *errors.ValidationError com os campos ofensores quando o
// documento viola o schema.
func (v *SchemaValidator) Validate(record types.Record) error {
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(map[string]any(record)))
	if err != nil {
		return &errors.ValidationError{Collection: v.collection, Reason: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		reasons = append(reasons, desc.String())
	}
	return &errors.ValidationError{
		Collection: v.collection,
		Reason:     strings.Join(reasons, "; "),
	}
}

// PredicateValidator adapta um predicado arbitrário ao contrato de
// validação, para schemas opacos fornecidos pelo chamador.
type PredicateValidator struct {
	Collection string
	Fn         func(record types.Record) bool
}

func (v *PredicateValidator) Validate(record types.Record) error {
	if v.Fn == nil || v.Fn(record) {
		return nil
	}
	return &errors.ValidationError{Collection: v.Collection, Reason: "record rejected by validator"}
}
