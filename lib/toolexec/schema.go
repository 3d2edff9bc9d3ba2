// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Type is a JSON Schema primitive type.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Property describes one argument.
type Property struct {
	Type        Type
	Description string

	// Enum restricts string values.
	Enum []string

	// MinLength applies to strings.
	MinLength int

	// Minimum and Maximum bound numbers and integers, inclusive.
	Minimum *float64
	Maximum *float64

	// Items describes array elements.
	Items *Property
}

// Bound returns a pointer to value, for Minimum and Maximum.
func Bound(value float64) *float64 {
	return &value
}

// Schema describes an operation's argument object.
type Schema struct {
	Properties map[string]Property
	Required   []string

	// AllowAdditional accepts keys not listed in Properties.
	AllowAdditional bool
}

// ValidationError reports the first argument that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (err *ValidationError) Error() string {
	if err.Field == "" {
		return err.Reason
	}
	return fmt.Sprintf("%s: %s", err.Field, err.Reason)
}

// check verifies the schema is self-consistent.
func (schema Schema) check() error {
	for _, name := range schema.Required {
		if _, ok := schema.Properties[name]; !ok {
			return fmt.Errorf("required field %q has no property definition", name)
		}
	}
	for name, property := range schema.Properties {
		switch property.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		default:
			return fmt.Errorf("property %q has unsupported type %q", name, property.Type)
		}
	}
	return nil
}

// Validate checks arguments against the schema. A null value is
// treated as absent. Fields are checked in name order so the reported
// error is deterministic.
func (schema Schema) Validate(arguments map[string]any) error {
	for _, name := range schema.Required {
		if value, ok := arguments[name]; !ok || value == nil {
			return &ValidationError{Field: name, Reason: "required field is missing"}
		}
	}

	names := make([]string, 0, len(arguments))
	for name := range arguments {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := arguments[name]
		property, ok := schema.Properties[name]
		if !ok {
			if schema.AllowAdditional {
				continue
			}
			return &ValidationError{Field: name, Reason: "unknown field"}
		}
		if value == nil {
			continue
		}
		if reason := property.check(value); reason != "" {
			return &ValidationError{Field: name, Reason: reason}
		}
	}
	return nil
}

// check returns a non-empty reason when value does not satisfy the
// property.
func (property Property) check(value any) string {
	switch property.Type {
	case TypeString:
		text, ok := value.(string)
		if !ok {
			return fmt.Sprintf("expected string, got %s", jsonTypeName(value))
		}
		if len(text) < property.MinLength {
			return fmt.Sprintf("must be at least %d characters", property.MinLength)
		}
		if len(property.Enum) > 0 && !slices.Contains(property.Enum, text) {
			return fmt.Sprintf("must be one of %v", property.Enum)
		}

	case TypeNumber, TypeInteger:
		number, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("expected %s, got %s", property.Type, jsonTypeName(value))
		}
		if property.Type == TypeInteger && math.Trunc(number) != number {
			return fmt.Sprintf("expected integer, got %v", number)
		}
		if property.Minimum != nil && number < *property.Minimum {
			return fmt.Sprintf("must be >= %v", *property.Minimum)
		}
		if property.Maximum != nil && number > *property.Maximum {
			return fmt.Sprintf("must be <= %v", *property.Maximum)
		}

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Sprintf("expected boolean, got %s", jsonTypeName(value))
		}

	case TypeArray:
		items, ok := value.([]any)
		if !ok {
			return fmt.Sprintf("expected array, got %s", jsonTypeName(value))
		}
		if property.Items != nil {
			for index, item := range items {
				if reason := property.Items.check(item); reason != "" {
					return fmt.Sprintf("item %d: %s", index, reason)
				}
			}
		}

	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Sprintf("expected object, got %s", jsonTypeName(value))
		}
	}
	return ""
}

// JSON renders the schema as a JSON Schema object for the provider.
func (schema Schema) JSON() json.RawMessage {
	document := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": schema.AllowAdditional,
	}
	properties := document["properties"].(map[string]any)
	for name, property := range schema.Properties {
		properties[name] = property.document()
	}
	if len(schema.Required) > 0 {
		document["required"] = schema.Required
	}
	data, err := json.Marshal(document)
	if err != nil {
		panic("toolexec: marshaling schema: " + err.Error())
	}
	return data
}

func (property Property) document() map[string]any {
	document := map[string]any{"type": string(property.Type)}
	if property.Description != "" {
		document["description"] = property.Description
	}
	if len(property.Enum) > 0 {
		document["enum"] = property.Enum
	}
	if property.MinLength > 0 {
		document["minLength"] = property.MinLength
	}
	if property.Minimum != nil {
		document["minimum"] = *property.Minimum
	}
	if property.Maximum != nil {
		document["maximum"] = *property.Maximum
	}
	if property.Items != nil {
		document["items"] = property.Items.document()
	}
	return document
}

func toFloat(value any) (float64, bool) {
	switch number := value.(type) {
	case float64:
		return number, true
	case float32:
		return float64(number), true
	case int:
		return float64(number), true
	case int64:
		return float64(number), true
	case uint64:
		return float64(number), true
	case json.Number:
		parsed, err := number.Float64()
		return parsed, err == nil
	}
	return 0, false
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", value)
	}
}
