// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolexec

// Arguments is a validated argument object. The accessors assume the
// schema has already checked types, and return the fallback for
// absent or null keys.
type Arguments map[string]any

// String returns a string argument.
func (arguments Arguments) String(key, fallback string) string {
	if value, ok := arguments[key].(string); ok {
		return value
	}
	return fallback
}

// Float returns a number argument.
func (arguments Arguments) Float(key string, fallback float64) float64 {
	if value, ok := toFloat(arguments[key]); ok {
		return value
	}
	return fallback
}

// Int returns an integer argument.
func (arguments Arguments) Int(key string, fallback int) int {
	if value, ok := toFloat(arguments[key]); ok {
		return int(value)
	}
	return fallback
}

// Bool returns a boolean argument.
func (arguments Arguments) Bool(key string, fallback bool) bool {
	if value, ok := arguments[key].(bool); ok {
		return value
	}
	return fallback
}

// Has reports whether key is present and not null.
func (arguments Arguments) Has(key string) bool {
	value, ok := arguments[key]
	return ok && value != nil
}
