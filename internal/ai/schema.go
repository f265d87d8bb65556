package ai

import "strings"

// SchemaType names a JSON Schema primitive.
type SchemaType string

const (
	SchemaString SchemaType = "string"
	SchemaNumber SchemaType = "number"
	SchemaArray  SchemaType = "array"
	SchemaObject SchemaType = "object"
)

// Property is a named object member, kept in declaration order.
type Property struct {
	Name   string
	Schema *Schema
}

// Schema is the provider-neutral response contract of a prompt.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  []Property
	Items       *Schema
	Enum        []string
	Minimum     *float64
	Maximum     *float64
}

func floatPtr(value float64) *float64 {
	return &value
}

// geminiJSON renders the OpenAPI subset accepted by generationConfig.responseSchema.
func (s *Schema) geminiJSON() map[string]any {
	rendered := map[string]any{"type": strings.ToUpper(string(s.Type))}
	if s.Description != "" {
		rendered["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		rendered["enum"] = append([]string(nil), s.Enum...)
	}
	if s.Minimum != nil {
		rendered["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		rendered["maximum"] = *s.Maximum
	}
	if s.Items != nil {
		rendered["items"] = s.Items.geminiJSON()
	}
	if len(s.Properties) > 0 {
		properties := make(map[string]any, len(s.Properties))
		names := make([]string, 0, len(s.Properties))
		for _, property := range s.Properties {
			properties[property.Name] = property.Schema.geminiJSON()
			names = append(names, property.Name)
		}
		rendered["properties"] = properties
		rendered["required"] = names
		rendered["propertyOrdering"] = names
	}
	return rendered
}

// openAIJSON renders a strict JSON Schema for response_format.json_schema.
func (s *Schema) openAIJSON() map[string]any {
	rendered := map[string]any{"type": string(s.Type)}
	if s.Description != "" {
		rendered["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		rendered["enum"] = append([]string(nil), s.Enum...)
	}
	if s.Minimum != nil {
		rendered["minimum"] = *s.Minimum
	}
	if s.Maximum != nil {
		rendered["maximum"] = *s.Maximum
	}
	if s.Items != nil {
		rendered["items"] = s.Items.openAIJSON()
	}
	if s.Type == SchemaObject {
		properties := make(map[string]any, len(s.Properties))
		names := make([]string, 0, len(s.Properties))
		for _, property := range s.Properties {
			properties[property.Name] = property.Schema.openAIJSON()
			names = append(names, property.Name)
		}
		rendered["properties"] = properties
		rendered["required"] = names
		rendered["additionalProperties"] = false
	}
	return rendered
}
