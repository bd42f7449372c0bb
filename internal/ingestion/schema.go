package ingestion

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed webhook_response.schema.json
var webhookResponseSchema []byte

var webhookSchemaLoader = gojsonschema.NewBytesLoader(webhookResponseSchema)

// ValidateWebhookResponse checks a raw webhook response body against the expected shape.
func ValidateWebhookResponse(body []byte) error {
	result, err := gojsonschema.Validate(webhookSchemaLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("failed to validate webhook response: %w", err)
	}
	if result.Valid() {
		return nil
	}

	schemaErr := &SchemaError{Errors: make([]FieldError, 0, len(result.Errors()))}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		schemaErr.Errors = append(schemaErr.Errors, FieldError{
			Field:   field,
			Message: desc.Description(),
		})
	}
	return schemaErr
}
