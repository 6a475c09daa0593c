package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// inputSchema is the subset of JSON Schema that tool manifests may use for
// their input: an object schema with typed properties, required names, and
// additionalProperties strictness. Anything beyond that is intentionally
// unsupported; manifests are validated structurally, not by a full draft
// implementation.
type inputSchema struct {
	Type                 string                     `json:"type,omitempty"`
	Properties           map[string]json.RawMessage `json:"properties,omitempty"`
	Required             []string                   `json:"required,omitempty"`
	AdditionalProperties *bool                      `json:"additionalProperties,omitempty"`
}

// CheckSchema verifies that a manifest input schema is within the supported
// subset without validating any arguments against it. Manifest loading calls
// this so a broken schema fails at registration, not at the first call.
func CheckSchema(schema json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	var s inputSchema
	if err := json.Unmarshal(schema, &s); err != nil {
		return fmt.Errorf("manifest schema is not valid JSON: %w", err)
	}
	if s.Type != "" && s.Type != "object" {
		return fmt.Errorf("manifest schema root must be an object schema, got %q", s.Type)
	}
	return nil
}

// ValidateArgs checks args against a manifest input schema. A nil args value
// is treated as the empty object, so legacy name-only calls validate against
// any schema that permits an empty argument object. The returned error is
// descriptive and safe to surface to the agent.
func ValidateArgs(schema, args json.RawMessage) error {
	var s inputSchema
	if len(schema) > 0 {
		if err := json.Unmarshal(schema, &s); err != nil {
			return fmt.Errorf("manifest schema is not valid JSON: %w", err)
		}
	}
	if s.Type != "" && s.Type != "object" {
		return fmt.Errorf("manifest schema root must be an object schema, got %q", s.Type)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var got map[string]json.RawMessage
	if err := json.Unmarshal(args, &got); err != nil {
		return fmt.Errorf("arguments must be a JSON object: %w", err)
	}

	var missing []string
	for _, name := range s.Required {
		if _, ok := got[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}

	strict := s.AdditionalProperties != nil && !*s.AdditionalProperties
	for name, value := range got {
		prop, declared := s.Properties[name]
		if !declared {
			if strict {
				return fmt.Errorf("unexpected argument %q", name)
			}
			continue
		}
		if err := validateValue(name, prop, value); err != nil {
			return err
		}
	}

	return nil
}

// propSchema is the per-property slice of the schema subset.
type propSchema struct {
	Type string   `json:"type,omitempty"`
	Enum []string `json:"enum,omitempty"`
}

func validateValue(name string, prop, value json.RawMessage) error {
	var ps propSchema
	if err := json.Unmarshal(prop, &ps); err != nil {
		// Non-object property schemas (e.g. booleans) place no constraint.
		return nil
	}
	if ps.Type == "" && len(ps.Enum) == 0 {
		return nil
	}

	if ps.Type != "" {
		if err := checkType(name, ps.Type, value); err != nil {
			return err
		}
	}

	if len(ps.Enum) > 0 {
		var str string
		if err := json.Unmarshal(value, &str); err != nil {
			return fmt.Errorf("argument %q must be one of %v", name, ps.Enum)
		}
		if !slices.Contains(ps.Enum, str) {
			return fmt.Errorf("argument %q must be one of %v, got %q", name, ps.Enum, str)
		}
	}

	return nil
}

func checkType(name, want string, value json.RawMessage) error {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return fmt.Errorf("argument %q is not valid JSON: %w", name, err)
	}

	ok := false
	switch want {
	case "string":
		_, ok = v.(string)
	case "boolean":
		_, ok = v.(bool)
	case "number":
		_, ok = v.(float64)
	case "integer":
		f, isNum := v.(float64)
		ok = isNum && f == math.Trunc(f)
	case "object":
		_, ok = v.(map[string]any)
	case "array":
		_, ok = v.([]any)
	case "null":
		ok = v == nil
	default:
		return fmt.Errorf("argument %q has unsupported schema type %q", name, want)
	}

	if !ok {
		return fmt.Errorf("argument %q must be of type %s", name, want)
	}
	return nil
}
