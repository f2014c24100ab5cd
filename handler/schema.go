package handler

import (
	"fmt"
)

// Schema describes a handler's per-invocation options. Property types use
// JSON-schema primitive names so the schema can be exported to external
// configuration tooling as-is.
type Schema struct {
	Title      string              `json:"title,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a single option field
type Property struct {
	Type        string `json:"type"` // "string", "integer", "number", "boolean"
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// ValidationError describes one invalid option field.
//
// Codes are machine-readable: "required" (missing mandatory field),
// "unknown" (field not in the schema), "type" (value has the wrong type).
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return e.Message
}

// ValidateAndApply checks options against the schema and returns the
// effective option map: declared defaults overlaid with the provided
// values. Unknown fields and missing required fields are rejected; a
// handler's options are a closed record, not an open bag.
func (s Schema) ValidateAndApply(options map[string]any) (map[string]any, []ValidationError) {
	var errs []ValidationError

	for _, required := range s.Required {
		if _, exists := options[required]; !exists {
			errs = append(errs, ValidationError{
				Field:   required,
				Message: fmt.Sprintf("field %q is required", required),
				Code:    "required",
			})
		}
	}

	effective := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		if prop.Default != nil {
			effective[name] = prop.Default
		}
	}

	for name, value := range options {
		prop, exists := s.Properties[name]
		if !exists {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: fmt.Sprintf("unknown field %q", name),
				Code:    "unknown",
			})
			continue
		}
		if err := validateType(name, value, prop.Type); err != nil {
			errs = append(errs, *err)
			continue
		}
		effective[name] = value
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return effective, nil
}

// validateType checks the value against a JSON-schema primitive type.
// Integer accepts float64 because decoded JSON carries all numbers that way.
func validateType(field string, value any, propType string) *ValidationError {
	switch propType {
	case "string":
		if _, ok := value.(string); !ok {
			return typeError(field, "a string")
		}
	case "integer":
		switch v := value.(type) {
		case int, int32, int64:
		case float64:
			if v != float64(int64(v)) {
				return typeError(field, "an integer")
			}
		default:
			return typeError(field, "an integer")
		}
	case "number":
		switch value.(type) {
		case int, int32, int64, float32, float64:
		default:
			return typeError(field, "a number")
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return typeError(field, "a boolean")
		}
	}
	return nil
}

func typeError(field, want string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("field %q must be %s", field, want),
		Code:    "type",
	}
}
