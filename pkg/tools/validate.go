package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidArguments = errors.New("invalid arguments")

// ValidateArguments checks the JSON-encoded arguments of a call against
// the tool's parameter schema. Empty or null arguments are validated as {}.
func ValidateArguments(tool *Tool, arguments string) error {
	schema, err := SchemaToMap(tool.Parameters)
	if err != nil {
		return fmt.Errorf("converting schema of %s: %w", tool.Name, err)
	}
	if trimmed := strings.TrimSpace(arguments); trimmed == "" || trimmed == "null" {
		arguments = "{}"
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewStringLoader(arguments))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, len(result.Errors()))
	for i, e := range result.Errors() {
		msgs[i] = e.String()
	}
	return fmt.Errorf("%w: %s", ErrInvalidArguments, strings.Join(msgs, "; "))
}
