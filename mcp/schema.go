package mcp

import (
	gateway "github.com/iotaevm/gateway"
)

// InputSchema is the JSON Schema subset a tool declares for its arguments:
// a flat object whose properties are strings, numbers, booleans, or arrays,
// optionally constrained by an enum. It both serializes into tools/list and
// drives argument validation before a handler runs.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one argument. Items is set for arrays; an array with
// string Items admits only strings, an array without Items admits any JSON
// values (the ABI argument of the contract analyzer uses that form).
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty"`
	Items       *Property `json:"items,omitempty"`
}

// ObjectSchema builds the standard tool schema shape.
func ObjectSchema(props map[string]Property, required ...string) InputSchema {
	return InputSchema{Type: "object", Properties: props, Required: required}
}

// Validate checks decoded arguments against the schema. Violations return
// gateway.ErrValidation so the dispatcher can surface them verbatim in the
// tool envelope without invoking the handler.
func (s InputSchema) Validate(args map[string]any) error {
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return gateway.Validationf("missing required argument %q", name)
		}
	}
	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			return gateway.Validationf("unknown argument %q", name)
		}
		if err := prop.check(name, value); err != nil {
			return err
		}
	}
	return nil
}

func (p Property) check(name string, value any) error {
	switch p.Type {
	case "string":
		str, ok := value.(string)
		if !ok {
			return gateway.Validationf("argument %q must be a string", name)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, str) {
			return gateway.Validationf("argument %q must be one of %v, got %q", name, p.Enum, str)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return gateway.Validationf("argument %q must be a number", name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return gateway.Validationf("argument %q must be a boolean", name)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return gateway.Validationf("argument %q must be an array", name)
		}
		if p.Items != nil && p.Items.Type == "string" {
			for i, item := range items {
				if _, ok := item.(string); !ok {
					return gateway.Validationf("argument %q element %d must be a string", name, i)
				}
			}
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return gateway.Validationf("argument %q must be an object", name)
		}
	default:
		return gateway.Validationf("argument %q has unsupported schema type %q", name, p.Type)
	}
	return nil
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Typed argument accessors for handlers. Validation has already enforced
// the schema types, so these only distinguish absent from present.
// ---------------------------------------------------------------------------

// StringArg returns a string argument or the fallback when absent.
func StringArg(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return fallback
}

// NumberArg returns a numeric argument or the fallback when absent.
func NumberArg(args map[string]any, name string, fallback float64) float64 {
	if v, ok := args[name].(float64); ok {
		return v
	}
	return fallback
}

// BoolArg returns a boolean argument or the fallback when absent.
func BoolArg(args map[string]any, name string, fallback bool) bool {
	if v, ok := args[name].(bool); ok {
		return v
	}
	return fallback
}

// StringSliceArg returns a string-array argument; nil when absent.
func StringSliceArg(args map[string]any, name string) []string {
	raw, ok := args[name].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SliceArg returns a JSON-array argument as decoded values; nil when absent.
func SliceArg(args map[string]any, name string) []any {
	raw, ok := args[name].([]any)
	if !ok {
		return nil
	}
	return raw
}
