package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is returned when a filter JSON document does not
// match the expected structure.
var ErrInvalidDocument = errors.New("invalid filter document")

const documentSchema = `{
	"type": "object",
	"required": ["logic", "conditions"],
	"additionalProperties": false,
	"properties": {
		"logic": {
			"type": "string",
			"enum": ["AND", "OR"]
		},
		"conditions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["column", "operator", "value"],
				"additionalProperties": false,
				"properties": {
					"column": {"type": "string", "minLength": 1},
					"operator": {
						"type": "string",
						"enum": ["==", "<", ">", "<=", ">=", "contains"]
					},
					"value": {
						"type": ["string", "number", "boolean"]
					}
				}
			}
		}
	}
}`

var schemaLoader = gojsonschema.NewStringLoader(documentSchema)

// ValidateDocument checks the structural shape of a raw filter JSON
// document before it is bound to a definition. Structural problems are
// reported together, joined into one error.
func ValidateDocument(raw []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, err.Error())
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(messages, "; "))
}
