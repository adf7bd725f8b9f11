package tools

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// MustSchemaFor derives a tool's parameter schema from the argument struct
// T, using its json and jsonschema tags. It panics if T cannot be described.
func MustSchemaFor[T any]() any {
	schema, err := jsonschema.For[T](&jsonschema.ForOptions{})
	if err != nil {
		panic(fmt.Sprintf("tools: schema for %T: %v", *new(T), err))
	}
	return schema
}

// SchemaToMap renders a parameter schema as the JSON object advertised to
// MCP and HTTP clients. A nil schema is an empty object schema. Properties
// without a type, at any depth, are typed as objects.
func SchemaToMap(params any) (map[string]any, error) {
	m := map[string]any{}
	if params != nil {
		buf, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(buf, &m); err != nil {
			return nil, err
		}
	}

	if m["type"] == nil {
		m["type"] = "object"
	}
	if m["properties"] == nil {
		m["properties"] = map[string]any{}
	}
	if m["required"] == nil {
		delete(m, "required")
	}

	walkProperties(m, func(prop map[string]any) {
		if prop["type"] == nil {
			prop["type"] = "object"
		}
	})
	return m, nil
}

// walkProperties calls fn on every property schema below schema, including
// those of nested objects and array items.
func walkProperties(schema map[string]any, fn func(map[string]any)) {
	props, _ := schema["properties"].(map[string]any)
	for _, v := range props {
		prop, ok := v.(map[string]any)
		if !ok {
			continue
		}
		fn(prop)
		walkProperties(prop, fn)
		if items, ok := prop["items"].(map[string]any); ok {
			walkProperties(items, fn)
		}
	}
}
