// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

import (
	"encoding/json"
	"errors"
	"testing"
)

var searchSchema = Schema{
	Properties: map[string]Property{
		"query":    {Type: TypeString, MinLength: 1},
		"maxPrice": {Type: TypeNumber, Minimum: Bound(0)},
		"limit":    {Type: TypeInteger, Minimum: Bound(1), Maximum: Bound(50)},
		"sort":     {Type: TypeString, Enum: []string{"price", "name"}},
		"tags":     {Type: TypeArray, Items: &Property{Type: TypeString}},
		"inStock":  {Type: TypeBoolean},
	},
	Required: []string{"query"},
}

func TestSchemaValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		arguments map[string]any
		field     string
	}{
		{"minimal", map[string]any{"query": "pens"}, ""},
		{"all fields", map[string]any{
			"query": "pens", "maxPrice": 5.0, "limit": 10.0, "sort": "price",
			"tags": []any{"office"}, "inStock": true,
		}, ""},
		{"null optional", map[string]any{"query": "pens", "maxPrice": nil}, ""},
		{"missing required", map[string]any{"maxPrice": 5.0}, "query"},
		{"null required", map[string]any{"query": nil}, "query"},
		{"nil arguments", nil, "query"},
		{"wrong type", map[string]any{"query": 42.0}, "query"},
		{"empty string", map[string]any{"query": ""}, "query"},
		{"negative price", map[string]any{"query": "pens", "maxPrice": -1.0}, "maxPrice"},
		{"fractional integer", map[string]any{"query": "pens", "limit": 2.5}, "limit"},
		{"integer above maximum", map[string]any{"query": "pens", "limit": 51.0}, "limit"},
		{"enum mismatch", map[string]any{"query": "pens", "sort": "rating"}, "sort"},
		{"array item type", map[string]any{"query": "pens", "tags": []any{"ok", 3.0}}, "tags"},
		{"boolean type", map[string]any{"query": "pens", "inStock": "yes"}, "inStock"},
		{"unknown field", map[string]any{"query": "pens", "color": "blue"}, "color"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			err := searchSchema.Validate(test.arguments)
			if test.field == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			var validationError *ValidationError
			if !errors.As(err, &validationError) {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if validationError.Field != test.field {
				t.Errorf("field = %q, want %q (%v)", validationError.Field, test.field, err)
			}
		})
	}
}

func TestSchemaAllowAdditional(t *testing.T) {
	t.Parallel()

	schema := Schema{AllowAdditional: true}
	if err := schema.Validate(map[string]any{"anything": 1.0}); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestSchemaJSON(t *testing.T) {
	t.Parallel()

	var document struct {
		Type       string                    `json:"type"`
		Required   []string                  `json:"required"`
		Properties map[string]map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(searchSchema.JSON(), &document); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if document.Type != "object" {
		t.Errorf("type = %q, want object", document.Type)
	}
	if len(document.Required) != 1 || document.Required[0] != "query" {
		t.Errorf("required = %v, want [query]", document.Required)
	}
	limit := document.Properties["limit"]
	if limit["type"] != "integer" || limit["minimum"] != 1.0 || limit["maximum"] != 50.0 {
		t.Errorf("limit property = %v", limit)
	}
	if items, _ := document.Properties["tags"]["items"].(map[string]any); items["type"] != "string" {
		t.Errorf("tags items = %v", document.Properties["tags"]["items"])
	}
}

func TestSchemaCheckRejectsInconsistentSchemas(t *testing.T) {
	t.Parallel()

	for _, schema := range []Schema{
		{Required: []string{"ghost"}},
		{Properties: map[string]Property{"x": {Type: "decimal"}}},
	} {
		if err := schema.check(); err == nil {
			t.Errorf("check(%+v) = nil, want error", schema)
		}
	}
}
