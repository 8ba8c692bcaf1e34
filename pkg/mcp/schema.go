package mcp

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// JSON Schema type names used by the parameter model.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Parameter declares one input of a tool or prompt.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Default     interface{}
	// Enum restricts string parameters to a finite value set.
	Enum []string
	// ItemsType is the element type for array parameters.
	ItemsType string
}

// Injected parameter names. They never appear in the public schema;
// the protocol handler supplies them for tools that require auth.
const (
	paramExternalAccessToken = "_external_access_token"
	paramUserID              = "_user_id"
)

// hidden reports whether the parameter is schema-invisible.
func (p *Parameter) hidden() bool {
	return strings.HasPrefix(p.Name, "_")
}

// JSONSchema renders the parameter as a JSON Schema property.
func (p *Parameter) JSONSchema() map[string]interface{} {
	schema := map[string]interface{}{"type": p.Type}
	if p.Type == TypeArray && p.ItemsType != "" {
		schema["items"] = map[string]interface{}{"type": p.ItemsType}
	}
	if p.Description != "" {
		schema["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		enum := make([]interface{}, len(p.Enum))
		for i, v := range p.Enum {
			enum[i] = v
		}
		schema["enum"] = enum
	}
	if p.Default != nil {
		schema["default"] = p.Default
	}
	return schema
}

// buildInputSchema renders a parameter list as an MCP inputSchema
// object. Hidden parameters are excluded.
func buildInputSchema(params []*Parameter) map[string]interface{} {
	properties := map[string]interface{}{}
	var required []string
	for _, p := range params {
		if p.hidden() {
			continue
		}
		properties[p.Name] = p.JSONSchema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// validateArguments checks and coerces the client's argument object
// against the declared parameters. The returned map contains every
// declared parameter that has a value: supplied, coerced, or default.
// Undeclared arguments pass through untouched so injected values
// survive.
func validateArguments(owner string, params []*Parameter, args map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}

	for _, p := range params {
		raw, present := args[p.Name]
		if !present {
			if p.Default != nil {
				out[p.Name] = p.Default
				continue
			}
			if p.Required && !p.hidden() {
				return nil, formatMissingArgumentError(owner, p)
			}
			continue
		}

		coerced, err := p.Coerce(raw)
		if err != nil {
			return nil, err
		}
		out[p.Name] = coerced
	}
	return out, nil
}

// Coerce converts a raw JSON value to the parameter's declared type,
// enforcing enum membership. Conversions follow the JSON-Schema-lite
// rules: strict integers (42.7 is rejected), permissive booleans
// (yes/no/on/off/0/1), and strings that parse as the target type.
func (p *Parameter) Coerce(value interface{}) (interface{}, error) {
	coerced, err := coerceType(p.Name, p.Type, p.ItemsType, value)
	if err != nil {
		return nil, err
	}
	if len(p.Enum) > 0 {
		s, ok := coerced.(string)
		if !ok {
			s = fmt.Sprint(coerced)
		}
		for _, allowed := range p.Enum {
			if s == allowed {
				return coerced, nil
			}
		}
		return nil, invalidParamsf("Invalid value for '%s': %v is not one of [%s]",
			p.Name, value, strings.Join(p.Enum, ", "))
	}
	return coerced, nil
}

func coerceType(name, typ, itemsType string, value interface{}) (interface{}, error) {
	switch typ {
	case TypeInteger:
		return coerceInteger(name, value)
	case TypeNumber:
		return coerceNumber(name, value)
	case TypeBoolean:
		return coerceBoolean(name, value)
	case TypeString:
		return coerceString(value), nil
	case TypeArray:
		return coerceArray(name, itemsType, value)
	case TypeObject:
		return coerceObject(name, value)
	default:
		return value, nil
	}
}

func coerceInteger(name string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v == math.Trunc(v) {
			return int64(v), nil
		}
		return nil, invalidParamsf("Invalid value for '%s': expected integer, got non-integral number %v", name, v)
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case json.Number:
		return coerceInteger(name, jsonNumberValue(v))
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f == math.Trunc(f) {
			return int64(f), nil
		}
		return nil, invalidParamsf("Invalid value for '%s': expected integer, got %q", name, v)
	default:
		return nil, invalidParamsf("Invalid value for '%s': expected integer, got %T", name, value)
	}
}

func coerceNumber(name string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return float64(1), nil
		}
		return float64(0), nil
	case json.Number:
		return coerceNumber(name, jsonNumberValue(v))
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, nil
		}
		return nil, invalidParamsf("Invalid value for '%s': expected number, got %q", name, v)
	default:
		return nil, invalidParamsf("Invalid value for '%s': expected number, got %T", name, value)
	}
}

func coerceBoolean(name string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, invalidParamsf("Invalid value for '%s': expected boolean, got %q", name, v)
	case float64:
		if v == 0 {
			return false, nil
		}
		if v == 1 {
			return true, nil
		}
		return nil, invalidParamsf("Invalid value for '%s': expected boolean, got %v", name, v)
	case int:
		return coerceBoolean(name, float64(v))
	case int64:
		return coerceBoolean(name, float64(v))
	default:
		return nil, invalidParamsf("Invalid value for '%s': expected boolean, got %T", name, value)
	}
}

func coerceString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func coerceArray(name, itemsType string, value interface{}) (interface{}, error) {
	var arr []interface{}
	switch v := value.(type) {
	case []interface{}:
		arr = v
	case string:
		if err := json.Unmarshal([]byte(v), &arr); err != nil {
			return nil, invalidParamsf("Invalid value for '%s': expected array, got unparseable string", name)
		}
	default:
		return nil, invalidParamsf("Invalid value for '%s': expected array, got %T", name, value)
	}

	if itemsType == "" {
		return arr, nil
	}
	out := make([]interface{}, len(arr))
	for i, item := range arr {
		coerced, err := coerceType(fmt.Sprintf("%s[%d]", name, i), itemsType, "", item)
		if err != nil {
			return nil, err
		}
		out[i] = coerced
	}
	return out, nil
}

func coerceObject(name string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case map[string]interface{}:
		return v, nil
	case string:
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(v), &obj); err != nil {
			return nil, invalidParamsf("Invalid value for '%s': expected object, got unparseable string", name)
		}
		return obj, nil
	default:
		return nil, invalidParamsf("Invalid value for '%s': expected object, got %T", name, value)
	}
}

func jsonNumberValue(n json.Number) interface{} {
	if i, err := n.Int64(); err == nil {
		return i
	}
	f, _ := n.Float64()
	return f
}
